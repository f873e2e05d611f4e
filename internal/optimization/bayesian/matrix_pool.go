package bayesian

import "gonum.org/v1/gonum/mat"

// MatrixPool keeps released matrices keyed by shape so repeated kernel
// evaluations of the same size reuse their backing storage. Matrices handed
// out may hold stale values; callers overwrite every element. A pool is not
// safe for concurrent use.
//
// The pool only retains matrices with a side equal to the current training
// size, at most one per shape, and no more than retainLimit elements in
// total. Resize drops everything when the training size changes.
type MatrixPool struct {
	size     int
	retained int
	sym      map[int]*mat.SymDense
	dense    map[[2]int]*mat.Dense
}

// NewMatrixPool creates a new MatrixPool
func NewMatrixPool() *MatrixPool {
	return &MatrixPool{
		sym:   make(map[int]*mat.SymDense),
		dense: make(map[[2]int]*mat.Dense),
	}
}

// Resize sets the training size the pool serves. Matrices of the previous
// size are released to the garbage collector.
func (p *MatrixPool) Resize(n int) {
	if n == p.size {
		return
	}
	p.size = n
	p.retained = 0
	clear(p.sym)
	clear(p.dense)
}

// Retained returns the number of float64 elements held by the pool.
func (p *MatrixPool) Retained() int {
	return p.retained
}

func (p *MatrixPool) retainLimit() int {
	return 4 * (p.size*p.size + p.size)
}

func (p *MatrixPool) admit(r, c int) bool {
	if p.size == 0 || (r != p.size && c != p.size) {
		return false
	}
	return p.retained+r*c <= p.retainLimit()
}

// GetSymDense returns an n×n symmetric matrix from the pool or creates a new one
func (p *MatrixPool) GetSymDense(n int) *mat.SymDense {
	if m, ok := p.sym[n]; ok {
		delete(p.sym, n)
		p.retained -= n * n
		return m
	}
	return mat.NewSymDense(n, nil)
}

// PutSymDense returns a symmetric matrix to the pool
func (p *MatrixPool) PutSymDense(m *mat.SymDense) {
	if m == nil {
		return
	}
	n := m.SymmetricDim()
	if _, ok := p.sym[n]; ok || !p.admit(n, n) {
		return
	}
	p.sym[n] = m
	p.retained += n * n
}

// GetDense returns an r×c dense matrix from the pool or creates a new one
func (p *MatrixPool) GetDense(r, c int) *mat.Dense {
	key := [2]int{r, c}
	if m, ok := p.dense[key]; ok {
		delete(p.dense, key)
		p.retained -= r * c
		return m
	}
	return mat.NewDense(r, c, nil)
}

// PutDense returns a dense matrix to the pool
func (p *MatrixPool) PutDense(m *mat.Dense) {
	if m == nil {
		return
	}
	r, c := m.Dims()
	key := [2]int{r, c}
	if _, ok := p.dense[key]; ok || !p.admit(r, c) {
		return
	}
	p.dense[key] = m
	p.retained += r * c
}
