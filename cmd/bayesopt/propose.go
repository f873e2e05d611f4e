package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/bayesopt/internal/config"
	"github.com/copyleftdev/bayesopt/internal/logging"
	"github.com/copyleftdev/bayesopt/internal/optimization/bayesian"
)

var problemPath string

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose the next point for a problem file",
	Long: `Reads a YAML or JSON problem file (bounds, settings and observed samples),
fits the surrogate and prints the point maximizing expected improvement as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(problemPath)
		if err != nil {
			return fmt.Errorf("failed to open problem: %w", err)
		}
		defer f.Close()

		p, err := loadProblem(f)
		if err != nil {
			return err
		}

		out, err := propose(cmd.Context(), p, cfg.Optimization, logging.NewZapLogger(logger))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	proposeCmd.Flags().StringVarP(&problemPath, "file", "f", "", "Problem file (YAML or JSON, required)")
	_ = proposeCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(proposeCmd)
}

type proposeOutput struct {
	X                   []float64 `json:"x"`
	ExpectedImprovement float64   `json:"expected_improvement"`
	Samples             int       `json:"samples"`
	FeasibleRestarts    int       `json:"feasible_restarts"`
}

// propose replays the problem's samples into a fresh session and asks for
// the next point.
func propose(ctx context.Context, p *Problem, defaults config.OptimizationConfig, zl *zap.Logger) (*proposeOutput, error) {
	alpha, xi := defaults.Alpha, defaults.Xi
	if p.Alpha != nil {
		alpha = *p.Alpha
	}
	if p.Xi != nil {
		xi = *p.Xi
	}
	restarts := defaults.Restarts
	if p.Restarts > 0 {
		restarts = p.Restarts
	}
	kernel := defaults.Kernel
	if p.Kernel != "" {
		kernel = p.Kernel
	}
	fit := defaults.FitHyperparameters
	if p.FitHyperparameters != nil {
		fit = *p.FitHyperparameters
	}

	opts := []bayesian.Option{
		bayesian.WithKernel(kernel),
		bayesian.WithFitHyperparameters(fit),
		bayesian.WithRestarts(restarts),
		bayesian.WithPenalty(defaults.Penalty),
		bayesian.WithLBFGS(defaults.LBFGSMaxIterations, defaults.LBFGSEpsilon),
		bayesian.WithLogger(zl),
	}
	if p.Seed != nil {
		opts = append(opts, bayesian.WithSeed(*p.Seed))
	}

	session, err := bayesian.NewSession(p.bounds(), alpha, xi, opts...)
	if err != nil {
		return nil, err
	}
	for i, s := range p.Samples {
		if err := session.AddSampleVector(s.X, s.Y); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}

	proposal, err := session.Propose(ctx)
	if err != nil {
		return nil, err
	}
	return &proposeOutput{
		X:                   proposal.X,
		ExpectedImprovement: proposal.ExpectedImprovement,
		Samples:             session.Len(),
		FeasibleRestarts:    proposal.Feasible,
	}, nil
}
