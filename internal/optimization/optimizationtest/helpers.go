package optimizationtest

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// QuadraticObjective returns the sum of squares of x.
func QuadraticObjective(x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum, nil
}

// NegatedQuadratic returns -sum(x_i^2); its maximum is 0 at the origin.
func NegatedQuadratic(x []float64) (float64, error) {
	v, err := QuadraticObjective(x)
	return -v, err
}

// AssertFloat64SlicesEqual checks if two float64 slices are approximately equal
func AssertFloat64SlicesEqual(t testing.TB, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// AssertMatEqual checks if two matrices are approximately equal
func AssertMatEqual(t testing.TB, got, want mat.Matrix, tol float64) {
	t.Helper()

	rg, cg := got.Dims()
	rw, cw := want.Dims()
	if rg != rw || cg != cw {
		t.Fatalf("matrix dimensions mismatch: got %dx%d, want %dx%d", rg, cg, rw, cw)
	}

	for i := 0; i < rg; i++ {
		for j := 0; j < cg; j++ {
			g := got.At(i, j)
			w := want.At(i, j)
			if math.Abs(g-w) > tol {
				t.Fatalf("at (%d,%d): got %v, want %v (tolerance %v)", i, j, g, w, tol)
			}
		}
	}
}

// RandomMatrix generates a rows×cols matrix with entries in [min, max).
func RandomMatrix(rng *rand.Rand, rows, cols int, min, max float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = min + rng.Float64()*(max-min)
	}
	return mat.NewDense(rows, cols, data)
}
