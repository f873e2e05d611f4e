package bayesian

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/bayesopt/internal/optimization"
	"github.com/copyleftdev/bayesopt/internal/optimization/kernels"
)

const (
	// gradientStep is sqrt(machine epsilon), the usual forward-difference step.
	gradientStep = 1.4901161193847656e-08

	// Jitter added to the covariance diagonal when the factorization fails.
	initialJitter  = 1e-10
	maxJitterTries = 8

	// Hyperparameters are searched in log space within [-logParamLimit, logParamLimit].
	logParamLimit   = 7.0
	hyperIterations = 200

	log2Pi = 1.8378770664093453
)

// GP is a zero-mean Gaussian process regressor. It is the production
// optimization.Surrogate: Fit conditions it on observed samples and Predict
// returns the posterior of the latent function.
type GP struct {
	// Kernel function and the hyperparameters every fit starts from
	kernel    kernels.Kernel
	initHyper []float64

	// Observation noise added to the training covariance diagonal
	alpha float64

	// Whether Fit maximizes the marginal likelihood over the kernel hyperparameters
	fitHyper bool

	// Training data
	X *mat.Dense    // Input points (n_samples, n_features)
	y *mat.VecDense // Target values (n_samples)

	// Precomputed values
	weights *mat.VecDense // (K + alpha*I)^-1 y
	chol    *mat.Cholesky

	// Matrix pool for reusing matrix allocations
	matrixPool *MatrixPool

	// Logger for structured logging
	logger *zap.Logger
}

var _ optimization.Surrogate = (*GP)(nil)

// GPOption configures a GP.
type GPOption func(*GP)

// WithGPLogger sets the logger used for fit diagnostics.
func WithGPLogger(logger *zap.Logger) GPOption {
	return func(gp *GP) {
		if logger != nil {
			gp.logger = logger.Named("gaussian_process")
		}
	}
}

// WithHyperparameterFit enables or disables marginal-likelihood fitting of
// the kernel hyperparameters. It is enabled by default.
func WithHyperparameterFit(enabled bool) GPOption {
	return func(gp *GP) {
		gp.fitHyper = enabled
	}
}

// NewGP creates a new Gaussian Process model with observation noise alpha.
func NewGP(kernel kernels.Kernel, alpha float64, opts ...GPOption) *GP {
	gp := &GP{
		kernel:     kernel,
		initHyper:  kernel.Hyperparameters(),
		alpha:      alpha,
		fitHyper:   true,
		matrixPool: NewMatrixPool(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(gp)
	}
	return gp
}

// Kernel returns the kernel with the hyperparameters of the last fit.
func (gp *GP) Kernel() kernels.Kernel {
	return gp.kernel
}

// Fit fits the GP model to the training data. y must be a single column.
//
// Every fit starts from the kernel's initial hyperparameters, so the fitted
// model depends only on X, y and alpha.
func (gp *GP) Fit(X, y *mat.Dense) error {
	const op = "GP.Fit"

	if X == nil || y == nil {
		err := errors.New("input matrices must not be nil")
		return optimization.WrapError(err, "gaussian_process: "+op)
	}
	if X.IsEmpty() || y.IsEmpty() {
		err := errors.New("input matrix X must not be empty")
		return optimization.WrapError(err, "gaussian_process: "+op)
	}

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples != yRows {
		err := fmt.Errorf("dimension mismatch: X has %d samples but y has %d rows", nSamples, yRows)
		return optimization.WrapError(err, "gaussian_process: "+op)
	}
	if yCols != 1 {
		err := fmt.Errorf("%w: y has %d columns, only single-output models are supported", optimization.ErrDimensionMismatch, yCols)
		return optimization.WrapError(err, "gaussian_process: "+op)
	}

	gp.logger.Debug("Fitting GP model",
		zap.Int("samples", nSamples),
		zap.Int("features", nFeatures),
		zap.Float64("alpha", gp.alpha),
	)

	gp.X = mat.DenseCopyOf(X)
	gp.y = mat.VecDenseCopyOf(y.ColView(0))
	gp.matrixPool.Resize(nSamples)
	gp.weights = nil
	gp.chol = nil

	if err := gp.kernel.SetHyperparameters(gp.initHyper); err != nil {
		return optimization.WrapError(err, "gaussian_process: "+op)
	}
	if gp.fitHyper && nSamples > 1 {
		gp.optimizeHyperparameters()
	}

	chol, jitter, err := gp.factorize()
	if err != nil {
		return optimization.WrapError(err, "gaussian_process: "+op)
	}

	weights := mat.NewVecDense(nSamples, nil)
	if err := chol.SolveVecTo(weights, gp.y); err != nil {
		return optimization.WrapError(fmt.Errorf("failed to solve linear system: %w", err), "gaussian_process: "+op)
	}
	gp.chol = chol
	gp.weights = weights

	gp.logger.Debug("Successfully fitted GP model",
		zap.Int("samples", nSamples),
		zap.Float64s("hyperparameters", gp.kernel.Hyperparameters()),
		zap.Float64("jitter", jitter),
	)
	return nil
}

// kernelMatrix computes k(X, X) + noise*I into a pooled matrix. The caller
// returns it to the pool.
func (gp *GP) kernelMatrix(noise float64) *mat.SymDense {
	n, _ := gp.X.Dims()
	K := gp.matrixPool.GetSymDense(n)
	for i := 0; i < n; i++ {
		xi := gp.X.RawRowView(i)
		K.SetSym(i, i, gp.kernel.Eval(xi, xi)+noise)
		for j := i + 1; j < n; j++ {
			K.SetSym(i, j, gp.kernel.Eval(xi, gp.X.RawRowView(j)))
		}
	}
	return K
}

// factorize computes the Cholesky factor of k(X, X) + alpha*I, adding
// growing diagonal jitter while the matrix is not numerically positive
// definite.
func (gp *GP) factorize() (*mat.Cholesky, float64, error) {
	jitter := 0.0
	for attempt := 0; attempt <= maxJitterTries; attempt++ {
		K := gp.kernelMatrix(gp.alpha + jitter)
		var chol mat.Cholesky
		ok := chol.Factorize(K)
		gp.matrixPool.PutSymDense(K)
		if ok {
			if jitter > 0 {
				gp.logger.Warn("Added jitter to factorize kernel matrix",
					zap.Float64("jitter", jitter),
					zap.Int("attempt", attempt))
			}
			return &chol, jitter, nil
		}
		if jitter == 0 {
			jitter = initialJitter
		} else {
			jitter *= 10
		}
	}
	return nil, jitter, errors.New("Cholesky decomposition failed: matrix is not positive definite")
}

// negLogMarginalLikelihood evaluates -log p(y | X) at the kernel's current
// hyperparameters. Non-factorizable covariances return +Inf.
func (gp *GP) negLogMarginalLikelihood() float64 {
	n := gp.y.Len()
	K := gp.kernelMatrix(gp.alpha + initialJitter)
	defer gp.matrixPool.PutSymDense(K)

	var chol mat.Cholesky
	if !chol.Factorize(K) {
		return math.Inf(1)
	}
	var a mat.VecDense
	if err := chol.SolveVecTo(&a, gp.y); err != nil {
		return math.Inf(1)
	}
	return 0.5*mat.Dot(gp.y, &a) + 0.5*chol.LogDet() + 0.5*float64(n)*log2Pi
}

// optimizeHyperparameters minimizes the negative log marginal likelihood
// over the log kernel hyperparameters with Nelder-Mead. The kernel is left at
// the best point found, or at its initial values if the search fails.
func (gp *GP) optimizeHyperparameters() {
	toParams := func(logp []float64) []float64 {
		p := make([]float64, len(logp))
		for i, v := range logp {
			p[i] = math.Exp(math.Max(-logParamLimit, math.Min(v, logParamLimit)))
		}
		return p
	}

	start := make([]float64, len(gp.initHyper))
	for i, v := range gp.initHyper {
		start[i] = math.Log(v)
	}

	problem := optimize.Problem{
		Func: func(logp []float64) float64 {
			if err := gp.kernel.SetHyperparameters(toParams(logp)); err != nil {
				return math.Inf(1)
			}
			return gp.negLogMarginalLikelihood()
		},
	}
	settings := &optimize.Settings{
		MajorIterations: hyperIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-8,
			Relative:   1e-8,
			Iterations: 25,
		},
	}

	result, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
	if result == nil || math.IsInf(result.F, 0) || math.IsNaN(result.F) {
		gp.logger.Warn("Hyperparameter search failed, keeping initial values", zap.Error(err))
		_ = gp.kernel.SetHyperparameters(gp.initHyper)
		return
	}
	if err := gp.kernel.SetHyperparameters(toParams(result.X)); err != nil {
		_ = gp.kernel.SetHyperparameters(gp.initHyper)
		return
	}
	gp.logger.Debug("Fitted kernel hyperparameters",
		zap.Float64s("hyperparameters", gp.kernel.Hyperparameters()),
		zap.Float64("neg_log_likelihood", result.F),
		zap.String("status", result.Status.String()),
	)
}

// checkQuery validates a prediction request against the fitted state.
func (gp *GP) checkQuery(op string, X *mat.Dense) error {
	if X == nil {
		return optimization.WrapError(errors.New("input matrix X is nil"), "gaussian_process: "+op)
	}
	if gp.X == nil || gp.weights == nil {
		return optimization.WrapError(errors.New("model not trained or no training data"), "gaussian_process: "+op)
	}
	_, nFeatures := gp.X.Dims()
	if _, c := X.Dims(); c != nFeatures {
		err := fmt.Errorf("%w: X has %d features, model was fitted on %d", optimization.ErrDimensionMismatch, c, nFeatures)
		return optimization.WrapError(err, "gaussian_process: "+op)
	}
	return nil
}

// crossKernel computes k(X, Xtrain) into a pooled matrix.
func (gp *GP) crossKernel(X *mat.Dense) *mat.Dense {
	nTest, _ := X.Dims()
	nTrain, _ := gp.X.Dims()
	Kstar := gp.matrixPool.GetDense(nTest, nTrain)
	for i := 0; i < nTest; i++ {
		xStar := X.RawRowView(i)
		for j := 0; j < nTrain; j++ {
			Kstar.Set(i, j, gp.kernel.Eval(xStar, gp.X.RawRowView(j)))
		}
	}
	return Kstar
}

// PredictMean returns the posterior mean at the rows of X.
func (gp *GP) PredictMean(X *mat.Dense) (*mat.VecDense, error) {
	if err := gp.checkQuery("GP.PredictMean", X); err != nil {
		return nil, err
	}
	nTest, _ := X.Dims()
	Kstar := gp.crossKernel(X)
	defer gp.matrixPool.PutDense(Kstar)

	mean := mat.NewVecDense(nTest, nil)
	mean.MulVec(Kstar, gp.weights)
	return mean, nil
}

// Predict returns the posterior mean and standard deviation of the latent
// function at the rows of X.
func (gp *GP) Predict(X *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	const op = "GP.Predict"

	if err := gp.checkQuery(op, X); err != nil {
		return nil, nil, err
	}
	nTest, _ := X.Dims()
	nTrain, _ := gp.X.Dims()
	Kstar := gp.crossKernel(X)
	defer gp.matrixPool.PutDense(Kstar)

	mean := mat.NewVecDense(nTest, nil)
	mean.MulVec(Kstar, gp.weights)

	// v = K^-1 K*^T, so diag(K* K^-1 K*^T)_i = K*_i · v_i
	v := gp.matrixPool.GetDense(nTrain, nTest)
	defer gp.matrixPool.PutDense(v)
	if err := gp.chol.SolveTo(v, Kstar.T()); err != nil {
		return nil, nil, optimization.WrapError(fmt.Errorf("failed to solve linear system: %w", err), "gaussian_process: "+op)
	}

	std := mat.NewVecDense(nTest, nil)
	for i := 0; i < nTest; i++ {
		xStar := X.RawRowView(i)
		explained := 0.0
		for j := 0; j < nTrain; j++ {
			explained += Kstar.At(i, j) * v.At(j, i)
		}
		variance := gp.kernel.Eval(xStar, xStar) - explained
		if variance < 0 {
			// Round-off at training points; the true variance is ~0.
			variance = 0
		}
		std.SetVec(i, math.Sqrt(variance))
	}
	return mean, std, nil
}

// ApproxGradient estimates the gradient of f at x with a forward difference
// of step sqrt(eps), reusing f0 = f(x).
func (gp *GP) ApproxGradient(x []float64, f func([]float64) float64, f0 float64) []float64 {
	return fd.Gradient(nil, f, x, &fd.Settings{
		Formula:     fd.Forward,
		Step:        gradientStep,
		OriginKnown: true,
		OriginValue: f0,
	})
}
