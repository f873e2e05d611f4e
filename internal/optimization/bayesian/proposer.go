package bayesian

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/bayesopt/internal/optimization"
	"github.com/copyleftdev/bayesopt/internal/optimization/acquisition"
)

// DefaultRestarts is the number of local searches per proposal.
const DefaultRestarts = 25

// Proposal is the outcome of one acquisition maximization.
type Proposal struct {
	// X is the proposed point, always inside the bounds.
	X []float64
	// ExpectedImprovement is EI at X.
	ExpectedImprovement float64
	// Feasible counts the restarts that ended on an acceptable point.
	Feasible int
}

// Proposer maximizes Expected Improvement over a box by minimizing -EI from
// several random starting points. Points outside the box score the penalty
// value so the local optimizer is pushed back inside without needing a
// constrained solver.
type Proposer struct {
	bounds   optimization.Bounds
	acq      *acquisition.ExpectedImprovement
	local    optimization.LocalOptimizer
	sampler  *optimization.BoundedSampler
	restarts int
	penalty  float64
	logger   *zap.Logger
}

// NewProposer builds a proposer. A non-positive restart count selects
// DefaultRestarts and a non-positive penalty selects math.MaxFloat64.
func NewProposer(
	bounds optimization.Bounds,
	acq *acquisition.ExpectedImprovement,
	local optimization.LocalOptimizer,
	sampler *optimization.BoundedSampler,
	restarts int,
	penalty float64,
	logger *zap.Logger,
) *Proposer {
	if restarts <= 0 {
		restarts = DefaultRestarts
	}
	if !(penalty > 0) {
		penalty = math.MaxFloat64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proposer{
		bounds:   bounds,
		acq:      acq,
		local:    local,
		sampler:  sampler,
		restarts: restarts,
		penalty:  penalty,
		logger:   logger,
	}
}

// Restarts returns the number of local searches per proposal.
func (p *Proposer) Restarts() int {
	return p.restarts
}

// Propose returns the point with the largest EI found across all restarts.
// model must already be fitted on observed. ctx is checked before every
// restart.
func (p *Proposer) Propose(ctx context.Context, model optimization.Surrogate, observed *mat.Dense) (Proposal, error) {
	const op = "Proposer.Propose"

	best, err := p.acq.Incumbent(model, observed)
	if err != nil {
		return Proposal{}, optimization.WrapError(err, "incumbent").
			WithOperation(op).WithComponent("bayesian")
	}

	dims := p.bounds.Dims()
	query := mat.NewDense(1, dims, nil)
	var predictErr error

	negEI := func(x []float64) float64 {
		query.SetRow(0, x)
		mu, sigma, err := model.Predict(query)
		if err != nil {
			if predictErr == nil {
				predictErr = err
			}
			return p.penalty
		}
		return -p.acq.Compute(mu.AtVec(0), sigma.AtVec(0), best)
	}
	objective := func(x, grad []float64) float64 {
		f := negEI(x)
		if grad != nil {
			copy(grad, model.ApproxGradient(x, negEI, f))
		}
		if !p.bounds.Contains(x) {
			return p.penalty
		}
		return f
	}

	var (
		bestX    []float64
		bestF    = math.Inf(1)
		feasible int
	)
	for r := 0; r < p.restarts; r++ {
		if err := ctx.Err(); err != nil {
			return Proposal{}, err
		}

		start := p.sampler.Sample()
		x, fx, err := p.local.Minimize(objective, start)
		if predictErr != nil {
			return Proposal{}, optimization.WrapError(predictErr, "surrogate prediction failed").
				WithOperation(op).WithComponent("bayesian")
		}
		if err != nil {
			p.logger.Debug("Local search stopped early",
				zap.Int("restart", r),
				zap.Error(err))
		}
		if x == nil || !p.bounds.Contains(x) || math.IsNaN(fx) || math.IsInf(fx, 0) || fx >= p.penalty {
			continue
		}
		feasible++
		if fx < bestF {
			bestF = fx
			bestX = append(bestX[:0], x...)
		}
	}

	if bestX == nil {
		return Proposal{}, optimization.WrapErrorf(optimization.ErrNoFeasibleProposal,
			"none of %d restarts ended inside the bounds", p.restarts).
			WithOperation(op).WithComponent("bayesian")
	}

	ei := math.Max(-bestF, 0)
	p.logger.Debug("Proposed next sample",
		zap.Float64s("x", bestX),
		zap.Float64("expected_improvement", ei),
		zap.Int("feasible_restarts", feasible),
	)
	return Proposal{
		X:                   bestX,
		ExpectedImprovement: ei,
		Feasible:            feasible,
	}, nil
}
