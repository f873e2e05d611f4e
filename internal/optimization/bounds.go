package optimization

import "math"

// Bounds holds one [low, high] interval per dimension. The feasible domain is
// the axis-aligned box formed by their Cartesian product.
type Bounds [][2]float64

// Dims returns the dimensionality of the domain.
func (b Bounds) Dims() int {
	return len(b)
}

// Validate checks that the domain has at least one dimension and that every
// interval is finite with low <= high.
func (b Bounds) Validate() error {
	const op = "Bounds.Validate"

	if len(b) == 0 {
		return WrapError(ErrInvalidBounds, "at least one dimension is required").
			WithOperation(op).WithComponent("optimization")
	}
	for i, bound := range b {
		low, high := bound[0], bound[1]
		if math.IsNaN(low) || math.IsNaN(high) || math.IsInf(low, 0) || math.IsInf(high, 0) {
			return WrapErrorf(ErrInvalidBounds, "dimension %d has non-finite interval [%v, %v]", i, low, high).
				WithOperation(op).WithComponent("optimization")
		}
		if low > high {
			return WrapErrorf(ErrInvalidBounds, "dimension %d has low %v > high %v", i, low, high).
				WithOperation(op).WithComponent("optimization")
		}
	}
	return nil
}

// Contains reports whether x lies inside the box, endpoints included.
// A vector of the wrong length is never contained.
func (b Bounds) Contains(x []float64) bool {
	if len(x) != len(b) {
		return false
	}
	for i, v := range x {
		// NaN fails both comparisons, so test for membership rather than exclusion.
		if !(v >= b[i][0] && v <= b[i][1]) {
			return false
		}
	}
	return true
}

// CheckDims returns ErrDimensionMismatch when x does not have one component
// per dimension.
func (b Bounds) CheckDims(op string, x []float64) error {
	if len(x) != len(b) {
		return dimensionError(op, "x", len(x), len(b))
	}
	return nil
}

// Clone returns a deep copy of the bounds.
func (b Bounds) Clone() Bounds {
	return append(Bounds(nil), b...)
}
