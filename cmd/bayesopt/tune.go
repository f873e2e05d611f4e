package main

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/bayesopt/internal/logging"
	"github.com/copyleftdev/bayesopt/internal/optimization"
	"github.com/copyleftdev/bayesopt/internal/optimization/bayesian"
)

// benchmark is a synthetic objective to minimize.
type benchmark struct {
	fn     func(x []float64) float64
	bounds func(dims int) optimization.Bounds
	// fixed dimensionality, 0 if any
	dims int
}

func box(lo, hi float64) func(int) optimization.Bounds {
	return func(dims int) optimization.Bounds {
		b := make(optimization.Bounds, dims)
		for i := range b {
			b[i] = [2]float64{lo, hi}
		}
		return b
	}
}

var benchmarks = map[string]benchmark{
	"sphere": {
		fn: func(x []float64) float64 {
			sum := 0.0
			for _, v := range x {
				sum += v * v
			}
			return sum
		},
		bounds: box(-5, 5),
	},
	"rosenbrock": {
		fn: func(x []float64) float64 {
			sum := 0.0
			for i := 0; i < len(x)-1; i++ {
				a := 1 - x[i]
				b := x[i+1] - x[i]*x[i]
				sum += a*a + 100*b*b
			}
			return sum
		},
		bounds: box(-2, 2),
	},
	"branin": {
		fn: func(x []float64) float64 {
			const (
				a = 1.0
				b = 5.1 / (4 * math.Pi * math.Pi)
				c = 5 / math.Pi
				r = 6.0
				s = 10.0
				t = 1 / (8 * math.Pi)
			)
			u := x[1] - b*x[0]*x[0] + c*x[0] - r
			return a*u*u + s*(1-t)*math.Cos(x[0]) + s
		},
		bounds: func(int) optimization.Bounds {
			return optimization.Bounds{{-5, 10}, {0, 15}}
		},
		dims: 2,
	},
}

func benchmarkNames() string {
	names := make([]string, 0, len(benchmarks))
	for name := range benchmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

var (
	tuneFunction   string
	tuneDims       int
	tuneIterations int
	tuneInitial    int
	tuneSeed       int64
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Run a closed-loop optimization of a built-in benchmark",
	RunE: func(cmd *cobra.Command, args []string) error {
		bench, ok := benchmarks[tuneFunction]
		if !ok {
			return fmt.Errorf("unknown function %q (available: %s)", tuneFunction, benchmarkNames())
		}
		dims := tuneDims
		if bench.dims > 0 {
			dims = bench.dims
		}
		if dims < 1 {
			return fmt.Errorf("dims must be positive, got %d", dims)
		}

		opt := cfg.Optimization
		config := optimization.OptimizerConfig{
			Objective: func(x []float64) (float64, error) {
				return bench.fn(x), nil
			},
			Bounds:         bench.bounds(dims),
			Minimize:       true,
			MaxIterations:  tuneIterations,
			NInitialPoints: tuneInitial,
			Alpha:          opt.Alpha,
			Xi:             opt.Xi,
			Restarts:       opt.Restarts,
			RandomSeed:     tuneSeed,
		}

		tuner, err := bayesian.NewTuner(config, logging.NewZapLogger(logger))
		if err != nil {
			return err
		}
		result, err := tuner.Optimize(cmd.Context(), config)
		if err != nil {
			return err
		}

		logger.Info("Optimization finished", map[string]interface{}{
			"function":   tuneFunction,
			"iterations": result.Iterations,
			"best":       result.BestSolution.Value,
		})

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"function":   tuneFunction,
			"x":          result.BestSolution.Parameters,
			"value":      result.BestSolution.Value,
			"iterations": result.Iterations,
		})
	},
}

func init() {
	tuneCmd.Flags().StringVar(&tuneFunction, "function", "branin", "Benchmark to minimize ("+benchmarkNames()+")")
	tuneCmd.Flags().IntVar(&tuneDims, "dims", 2, "Dimensionality for sphere and rosenbrock")
	tuneCmd.Flags().IntVar(&tuneIterations, "iters", 30, "Proposal rounds after the initial design")
	tuneCmd.Flags().IntVar(&tuneInitial, "initial", 5, "Latin-hypercube initial points")
	tuneCmd.Flags().Int64Var(&tuneSeed, "seed", 42, "Random seed")
	rootCmd.AddCommand(tuneCmd)
}
