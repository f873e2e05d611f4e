// Package optimizationtest provides deterministic test doubles for the
// optimization capabilities and shared assertion helpers.
package optimizationtest

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/bayesopt/internal/optimization"
)

// StubSurrogate is a Surrogate whose predictive distribution is given by
// plain functions of the query point.
type StubSurrogate struct {
	// MeanFunc returns μ(x). Nil means zero.
	MeanFunc func(x []float64) float64
	// StdFunc returns σ(x). Nil means one.
	StdFunc func(x []float64) float64
	// FitErr, when set, is returned by every call to Fit.
	FitErr error

	// FitCalls counts calls to Fit; X and Y hold the last training data.
	FitCalls int
	X, Y     *mat.Dense
}

var _ optimization.Surrogate = (*StubSurrogate)(nil)

// Fit records the training data.
func (s *StubSurrogate) Fit(X, y *mat.Dense) error {
	s.FitCalls++
	if s.FitErr != nil {
		return s.FitErr
	}
	s.X = mat.DenseCopyOf(X)
	s.Y = mat.DenseCopyOf(y)
	return nil
}

// Predict evaluates MeanFunc and StdFunc at every row of X.
func (s *StubSurrogate) Predict(X *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	n, _ := X.Dims()
	mean := mat.NewVecDense(n, nil)
	std := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x := X.RawRowView(i)
		mean.SetVec(i, s.mean(x))
		std.SetVec(i, s.std(x))
	}
	return mean, std, nil
}

// PredictMean evaluates MeanFunc at every row of X.
func (s *StubSurrogate) PredictMean(X *mat.Dense) (*mat.VecDense, error) {
	n, _ := X.Dims()
	mean := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		mean.SetVec(i, s.mean(X.RawRowView(i)))
	}
	return mean, nil
}

// ApproxGradient uses a forward difference with a known origin.
func (s *StubSurrogate) ApproxGradient(x []float64, f func([]float64) float64, f0 float64) []float64 {
	return fd.Gradient(nil, f, x, &fd.Settings{OriginKnown: true, OriginValue: f0})
}

func (s *StubSurrogate) mean(x []float64) float64 {
	if s.MeanFunc == nil {
		return 0
	}
	return s.MeanFunc(x)
}

func (s *StubSurrogate) std(x []float64) float64 {
	if s.StdFunc == nil {
		return 1
	}
	return s.StdFunc(x)
}

// StubOptimizer is a LocalOptimizer that records its starting points. By
// default it performs no search and returns the start point with its
// objective value.
type StubOptimizer struct {
	// MinimizeFunc replaces the default behaviour when set.
	MinimizeFunc func(fn optimization.ObjectiveGradFunc, x0 []float64) ([]float64, float64, error)

	Starts [][]float64
}

var _ optimization.LocalOptimizer = (*StubOptimizer)(nil)

// Minimize records x0 and delegates to MinimizeFunc or returns x0.
func (o *StubOptimizer) Minimize(fn optimization.ObjectiveGradFunc, x0 []float64) ([]float64, float64, error) {
	o.Starts = append(o.Starts, append([]float64(nil), x0...))
	if o.MinimizeFunc != nil {
		return o.MinimizeFunc(fn, x0)
	}
	x := append([]float64(nil), x0...)
	return x, fn(x, nil), nil
}
