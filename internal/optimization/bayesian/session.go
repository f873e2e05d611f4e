package bayesian

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/bayesopt/internal/optimization"
	"github.com/copyleftdev/bayesopt/internal/optimization/acquisition"
	"github.com/copyleftdev/bayesopt/internal/optimization/kernels"
)

// DefaultXi is the default exploration offset of Expected Improvement.
const DefaultXi = 0.01

// Session is one sequential Bayesian optimization run. The caller asks for a
// point with NextSample, evaluates the objective itself and reports the result
// with AddSample.
//
// A Session is not safe for concurrent use.
type Session struct {
	bounds optimization.Bounds
	alpha  float64
	xi     float64

	store    *optimization.SampleStore
	model    optimization.Surrogate
	acq      *acquisition.ExpectedImprovement
	local    optimization.LocalOptimizer
	sampler  *optimization.BoundedSampler
	proposer *Proposer

	restarts int
	penalty  float64
	logger   *zap.Logger
}

type sessionOptions struct {
	surrogate    optimization.Surrogate
	local        optimization.LocalOptimizer
	source       rand.Source
	kernel       string
	fitHyper     bool
	restarts     int
	penalty      float64
	lbfgsIters   int
	lbfgsEpsilon float64
	logger       *zap.Logger
}

// Option configures a Session.
type Option func(*sessionOptions)

// WithSurrogate replaces the Gaussian process with another model.
func WithSurrogate(s optimization.Surrogate) Option {
	return func(o *sessionOptions) { o.surrogate = s }
}

// WithLocalOptimizer replaces the L-BFGS local optimizer.
func WithLocalOptimizer(l optimization.LocalOptimizer) Option {
	return func(o *sessionOptions) { o.local = l }
}

// WithSource sets the random source that seeds restarts.
func WithSource(src rand.Source) Option {
	return func(o *sessionOptions) { o.source = src }
}

// WithSeed seeds the session's random source.
func WithSeed(seed int64) Option {
	return func(o *sessionOptions) { o.source = newSource(seed) }
}

// WithKernel selects the Gaussian process kernel by name (see kernels.New).
func WithKernel(name string) Option {
	return func(o *sessionOptions) { o.kernel = name }
}

// WithFitHyperparameters toggles marginal-likelihood fitting of the kernel.
func WithFitHyperparameters(enabled bool) Option {
	return func(o *sessionOptions) { o.fitHyper = enabled }
}

// WithRestarts sets the number of local searches per proposal.
func WithRestarts(n int) Option {
	return func(o *sessionOptions) { o.restarts = n }
}

// WithPenalty sets the objective value assigned to points outside the bounds.
func WithPenalty(penalty float64) Option {
	return func(o *sessionOptions) { o.penalty = penalty }
}

// WithLBFGS sets the iteration cap and gradient tolerance of the default
// local optimizer.
func WithLBFGS(maxIterations int, epsilon float64) Option {
	return func(o *sessionOptions) {
		o.lbfgsIters = maxIterations
		o.lbfgsEpsilon = epsilon
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *sessionOptions) { o.logger = logger }
}

func newSource(seed int64) rand.Source {
	return rand.NewPCG(uint64(seed), uint64(seed))
}

// NewSession creates a session over bounds. alpha is the surrogate noise and
// xi the exploration offset; both must be non-negative.
func NewSession(bounds optimization.Bounds, alpha, xi float64, opts ...Option) (*Session, error) {
	const op = "NewSession"

	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if !(alpha >= 0) {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidParameter, "alpha must be non-negative, got %v", alpha).
			WithOperation(op).WithComponent("bayesian")
	}
	if !(xi >= 0) {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidParameter, "xi must be non-negative, got %v", xi).
			WithOperation(op).WithComponent("bayesian")
	}

	o := sessionOptions{
		kernel:   kernels.RBF,
		fitHyper: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.restarts < 0 {
		return nil, optimization.WrapErrorf(optimization.ErrInvalidParameter, "restarts must be non-negative, got %d", o.restarts).
			WithOperation(op).WithComponent("bayesian")
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.source == nil {
		o.source = newSource(time.Now().UnixNano())
	}
	if o.local == nil {
		o.local = NewLBFGS(o.lbfgsIters, o.lbfgsEpsilon)
	}
	if o.surrogate == nil {
		kernel, err := kernels.New(o.kernel, 1.0, 1.0)
		if err != nil {
			return nil, optimization.WrapError(optimization.ErrInvalidParameter, err.Error()).
				WithOperation(op).WithComponent("bayesian")
		}
		o.surrogate = NewGP(kernel, alpha, WithGPLogger(o.logger), WithHyperparameterFit(o.fitHyper))
	}

	s := &Session{
		bounds:   bounds.Clone(),
		alpha:    alpha,
		xi:       xi,
		store:    optimization.NewSampleStore(bounds.Dims()),
		model:    o.surrogate,
		acq:      acquisition.NewExpectedImprovement(xi),
		local:    o.local,
		restarts: o.restarts,
		penalty:  o.penalty,
		logger:   o.logger.Named("session"),
	}
	s.setSource(o.source)
	return s, nil
}

func (s *Session) setSource(src rand.Source) {
	s.sampler = optimization.NewBoundedSampler(s.bounds, src)
	s.proposer = NewProposer(s.bounds, s.acq, s.local, s.sampler, s.restarts, s.penalty, s.logger)
}

// Seed replaces the random source with one seeded by seed. Two sessions with
// the same samples and seed propose the same points.
func (s *Session) Seed(seed int64) {
	s.setSource(newSource(seed))
}

// AddSample records a scalar observation y at x.
func (s *Session) AddSample(x []float64, y float64) error {
	return s.AddSampleVector(x, []float64{y})
}

// AddSampleVector records a vector observation at x. The first sample fixes
// the output width. Only the first component is modeled.
func (s *Session) AddSampleVector(x, y []float64) error {
	if err := s.store.Add(x, y); err != nil {
		return err
	}
	s.logger.Debug("Added sample",
		zap.Float64s("x", x),
		zap.Float64s("y", y),
		zap.Int("samples", s.store.Len()))
	return nil
}

// NextSample refits the surrogate on every sample and returns the point that
// maximizes Expected Improvement.
func (s *Session) NextSample(ctx context.Context) ([]float64, error) {
	p, err := s.Propose(ctx)
	if err != nil {
		return nil, err
	}
	return p.X, nil
}

// Propose is NextSample with the proposal details.
func (s *Session) Propose(ctx context.Context) (Proposal, error) {
	const op = "Session.NextSample"

	X, Y, err := s.store.Matrices()
	if err != nil {
		return Proposal{}, err
	}
	if n, w := Y.Dims(); w != 1 {
		// Multi-output samples are modeled on their first component.
		Y = mat.DenseCopyOf(Y.Slice(0, n, 0, 1))
	}
	if err := s.model.Fit(X, Y); err != nil {
		s.logger.Warn("Surrogate fit failed", zap.Error(err))
		return Proposal{}, optimization.WrapError(fmt.Errorf("%w: %w", optimization.ErrModelFit, err), "surrogate fit").
			WithOperation(op).WithComponent("bayesian")
	}
	return s.proposer.Propose(ctx, s.model, X)
}

// Clear drops every sample. Bounds, xi and the random source are kept.
func (s *Session) Clear() {
	s.store.Clear()
}

// Len returns the number of samples.
func (s *Session) Len() int {
	return s.store.Len()
}

// Samples returns copies of the samples in insertion order.
func (s *Session) Samples() []optimization.Sample {
	return s.store.Samples()
}

// Best returns the sample with the largest first output.
func (s *Session) Best() (optimization.Sample, bool) {
	return s.store.Best()
}

// Bounds returns a copy of the session's bounds.
func (s *Session) Bounds() optimization.Bounds {
	return s.bounds.Clone()
}

// Xi returns the exploration offset.
func (s *Session) Xi() float64 {
	return s.xi
}

// Alpha returns the surrogate noise.
func (s *Session) Alpha() float64 {
	return s.alpha
}

// Restarts returns the number of local searches per proposal.
func (s *Session) Restarts() int {
	return s.proposer.Restarts()
}
