package optimization

import "gonum.org/v1/gonum/mat"

// Surrogate is a probabilistic regression model of the objective. It is
// fitted on the observed samples and queried for its predictive
// distribution at arbitrary points.
type Surrogate interface {
	// Fit refits the model in place on an n×d input matrix and an n×1
	// output matrix. Identical inputs must produce an identical model.
	Fit(X, y *mat.Dense) error

	// Predict returns the predictive mean and standard deviation at each
	// row of X.
	Predict(X *mat.Dense) (mean, std *mat.VecDense, err error)

	// PredictMean returns only the predictive mean at each row of X.
	PredictMean(X *mat.Dense) (*mat.VecDense, error)

	// ApproxGradient estimates the gradient of f at x by finite
	// differences. f0 is the already computed value f(x).
	ApproxGradient(x []float64, f func([]float64) float64, f0 float64) []float64
}

// ObjectiveGradFunc evaluates an objective at x and, when grad is non-nil,
// stores its gradient there. grad has the same length as x.
type ObjectiveGradFunc func(x, grad []float64) float64

// LocalOptimizer minimizes an objective from a starting point. It knows
// nothing about bounds; infeasibility is expressed through the objective.
type LocalOptimizer interface {
	// Minimize returns the best point it reached and the objective there.
	// A non-nil error with a non-nil x reports an early stop whose point is
	// still usable.
	Minimize(fn ObjectiveGradFunc, x0 []float64) (x []float64, fx float64, err error)
}
