package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/bayesopt/internal/config"
	"github.com/copyleftdev/bayesopt/internal/logging"
)

var (
	logLevel string
	cfg      *config.Config
	logger   *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bayesopt",
	Short: "Sequential Bayesian optimization service",
	Long: `bayesopt proposes the next point to evaluate for an expensive black-box
objective. A Gaussian-process surrogate is fitted to the observations and the
proposal maximizes expected improvement inside the search bounds.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			c.Logging.Level = logLevel
		}

		l, err := logging.NewLogger(c.LoggerConfig())
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, logger = c, l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}
