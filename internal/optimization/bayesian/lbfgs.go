package bayesian

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/bayesopt/internal/optimization"
)

const (
	// DefaultLBFGSEpsilon is the gradient-norm convergence threshold.
	DefaultLBFGSEpsilon = 1e-5
	// DefaultLBFGSMaxIterations caps the major iterations of one local search.
	DefaultLBFGSMaxIterations = 100
)

// LBFGS is the production optimization.LocalOptimizer: a thin adapter over
// gonum's limited-memory BFGS. It is bound-agnostic; feasibility is the
// objective's concern.
type LBFGS struct {
	// Epsilon stops the search once the gradient infinity norm drops below it.
	Epsilon float64
	// MaxIterations caps the number of major iterations.
	MaxIterations int
}

var _ optimization.LocalOptimizer = (*LBFGS)(nil)

// NewLBFGS returns an L-BFGS optimizer. Non-positive arguments select the
// defaults.
func NewLBFGS(maxIterations int, epsilon float64) *LBFGS {
	if maxIterations <= 0 {
		maxIterations = DefaultLBFGSMaxIterations
	}
	if epsilon <= 0 {
		epsilon = DefaultLBFGSEpsilon
	}
	return &LBFGS{Epsilon: epsilon, MaxIterations: maxIterations}
}

// Minimize runs L-BFGS on fn from x0. When gonum stops early (line search
// failure, iteration limit) the best location reached so far is returned
// together with the error; the caller decides whether it is usable.
func (l *LBFGS) Minimize(fn optimization.ObjectiveGradFunc, x0 []float64) ([]float64, float64, error) {
	// gonum asks for the value and the gradient at the same point in two
	// calls; evaluate once and serve both from the cache.
	var (
		cacheX    []float64
		cacheF    float64
		cacheGrad = make([]float64, len(x0))
	)
	eval := func(x []float64) {
		if cacheX != nil && floats.Equal(x, cacheX) {
			return
		}
		cacheF = fn(x, cacheGrad)
		cacheX = append(cacheX[:0], x...)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			eval(x)
			return cacheF
		},
		Grad: func(grad, x []float64) {
			eval(x)
			copy(grad, cacheGrad)
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: l.Epsilon,
		MajorIterations:   l.MaxIterations,
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{})
	if result == nil {
		return nil, math.NaN(), err
	}
	return result.X, result.F, err
}
