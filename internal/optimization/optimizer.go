package optimization

import (
	"context"
)

// Optimizer drives a complete optimization run against an in-process
// objective: it proposes points, evaluates them and feeds the results back.
type Optimizer interface {
	// Optimize runs the optimization process
	Optimize(ctx context.Context, config OptimizerConfig) (*OptimizationResult, error)

	// GetBestSolution returns the best solution found so far
	GetBestSolution() *Solution

	// GetHistory returns the history of evaluations
	GetHistory() []Evaluation

	// Stop gracefully stops the optimization process
	Stop()
}

// OptimizerConfig contains configuration for the optimizer
type OptimizerConfig struct {
	// Objective function to optimize
	Objective ObjectiveFunction

	// Bounds for each dimension [min, max]
	Bounds Bounds

	// Minimize flips the goal; by default the objective is maximized.
	Minimize bool

	// Maximum number of proposal rounds after the initial design
	MaxIterations int

	// Number of initial Latin-hypercube points to evaluate
	NInitialPoints int

	// Alpha is the observation noise added to the surrogate's covariance.
	Alpha float64

	// Xi is the exploration offset of Expected Improvement.
	Xi float64

	// Restarts is the number of local searches per proposal.
	Restarts int

	// Random seed for reproducibility; zero picks a time-based seed.
	RandomSeed int64
}

// ObjectiveFunction defines the function to be optimized
type ObjectiveFunction func([]float64) (float64, error)

// Solution represents a solution in the optimization space
type Solution struct {
	Parameters []float64
	Value      float64
}

// Evaluation represents a single evaluation of the objective function
type Evaluation struct {
	Iteration int
	Solution  *Solution
	Error     error
}

// OptimizationResult contains the result of an optimization run
type OptimizationResult struct {
	BestSolution *Solution
	History      []Evaluation
	Iterations   int
	Completed    bool
}
