package bayesian

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/bayesopt/internal/optimization"
)

// Tuner drives a complete optimization run against an in-process objective:
// a Latin-hypercube initial design followed by one Session proposal per
// iteration.
type Tuner struct {
	// Configuration
	config optimization.OptimizerConfig

	logger *zap.Logger

	mu sync.Mutex

	// Best solution found
	bestSolution *optimization.Solution

	// History of evaluations
	history []optimization.Evaluation

	// For cancellation
	cancel context.CancelFunc
}

var _ optimization.Optimizer = (*Tuner)(nil)

// NewTuner creates a new Tuner
func NewTuner(config optimization.OptimizerConfig, logger *zap.Logger) (*Tuner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tuner{
		config: withDefaults(config),
		logger: logger.Named("tuner"),
	}, nil
}

// withDefaults fills in the run length and seed. Alpha and Xi are passed to
// the session unchanged: zero is valid for both and negatives are rejected
// there.
func withDefaults(config optimization.OptimizerConfig) optimization.OptimizerConfig {
	if config.NInitialPoints < 1 {
		config.NInitialPoints = 10 // Default value
	}
	if config.MaxIterations < 1 {
		config.MaxIterations = 50 // Default value
	}
	if config.RandomSeed == 0 {
		config.RandomSeed = time.Now().UnixNano()
	}
	return config
}

// Optimize runs the optimization process. A config with a non-nil Objective
// replaces the one given to NewTuner. The history is reset.
func (t *Tuner) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	if config.Objective != nil {
		t.config = withDefaults(config)
	}
	cfg := t.config
	if cfg.Objective == nil {
		return nil, optimization.WrapError(optimization.ErrInvalidParameter, "objective function is required").
			WithOperation("Tuner.Optimize").WithComponent("bayesian")
	}

	session, err := NewSession(cfg.Bounds, cfg.Alpha, cfg.Xi,
		WithSeed(cfg.RandomSeed),
		WithRestarts(cfg.Restarts),
		WithLogger(t.logger),
	)
	if err != nil {
		return nil, err
	}

	// Create a cancellable context
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	t.cancel = cancel
	t.bestSolution = nil
	t.history = make([]optimization.Evaluation, 0, cfg.MaxIterations+cfg.NInitialPoints)
	t.mu.Unlock()

	design := optimization.NewBoundedSampler(cfg.Bounds, rand.NewPCG(uint64(cfg.RandomSeed), 1)).
		LatinHypercube(cfg.NInitialPoints)

	for i, x := range design {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := t.evaluate(session, i, x); err != nil {
			return nil, err
		}
	}

	for i := 0; i < cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next, err := session.NextSample(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("error proposing next sample: %w", err)
		}
		if err := t.evaluate(session, cfg.NInitialPoints+i, next); err != nil {
			return nil, err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return &optimization.OptimizationResult{
		BestSolution: t.bestSolution,
		History:      append([]optimization.Evaluation(nil), t.history...),
		Iterations:   len(t.history),
		Completed:    true,
	}, nil
}

// evaluate runs the objective at x and feeds the result back to the session.
// The session always maximizes, so minimized objectives are negated.
func (t *Tuner) evaluate(session *Session, iteration int, x []float64) error {
	value, err := t.config.Objective(x)
	if err != nil {
		t.record(iteration, x, value, err)
		return fmt.Errorf("error evaluating objective function: %w", err)
	}

	observed := value
	if t.config.Minimize {
		observed = -value
	}
	if err := session.AddSample(x, observed); err != nil {
		return err
	}

	t.record(iteration, x, value, nil)
	t.logger.Debug("Evaluated objective",
		zap.Int("iteration", iteration),
		zap.Float64s("x", x),
		zap.Float64("value", value))
	return nil
}

func (t *Tuner) record(iteration int, x []float64, value float64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	params := append([]float64(nil), x...)
	t.history = append(t.history, optimization.Evaluation{
		Iteration: iteration,
		Solution: &optimization.Solution{
			Parameters: params,
			Value:      value,
		},
		Error: err,
	})
	if err != nil {
		return
	}
	if t.bestSolution == nil || t.better(value, t.bestSolution.Value) {
		t.bestSolution = &optimization.Solution{
			Parameters: append([]float64(nil), params...),
			Value:      value,
		}
	}
}

func (t *Tuner) better(a, b float64) bool {
	if t.config.Minimize {
		return a < b
	}
	return a > b
}

// GetBestSolution returns the best solution found so far
func (t *Tuner) GetBestSolution() *optimization.Solution {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bestSolution
}

// GetHistory returns the history of evaluations
func (t *Tuner) GetHistory() []optimization.Evaluation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]optimization.Evaluation(nil), t.history...)
}

// Stop stops the optimization process
func (t *Tuner) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}
