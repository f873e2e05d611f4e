// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/bayesopt/internal/logging"
	"github.com/copyleftdev/bayesopt/internal/optimization/kernels"
)

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Port            int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// LoggingConfig selects the log level, format and destination.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
	Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
}

// OptimizationConfig holds the defaults applied to new sessions. A zero
// Penalty selects math.MaxFloat64.
type OptimizationConfig struct {
	Alpha              float64 `env:"OPT_ALPHA" envDefault:"1e-6"`
	Xi                 float64 `env:"OPT_XI" envDefault:"0.01"`
	Restarts           int     `env:"OPT_RESTARTS" envDefault:"25"`
	LBFGSMaxIterations int     `env:"OPT_LBFGS_MAX_ITERATIONS" envDefault:"100"`
	LBFGSEpsilon       float64 `env:"OPT_LBFGS_EPSILON" envDefault:"1e-5"`
	Penalty            float64 `env:"OPT_PENALTY" envDefault:"0"`
	MaxSessions        int     `env:"OPT_MAX_SESSIONS" envDefault:"1000"`
	FitHyperparameters bool    `env:"OPT_FIT_HYPERPARAMETERS" envDefault:"true"`
	Kernel             string  `env:"OPT_KERNEL" envDefault:"rbf"`
}

type Config struct {
	Environment  string `env:"ENV" envDefault:"development"`
	HTTP         HTTPConfig
	Logging      LoggingConfig
	Optimization OptimizationConfig
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	// Development defaults to verbose logging unless LOG_LEVEL was set
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.HTTP.Port <= 0 || c.HTTP.Port > 65535:
		return fmt.Errorf("invalid HTTP_PORT %d", c.HTTP.Port)
	case c.Optimization.Alpha < 0:
		return fmt.Errorf("OPT_ALPHA must be non-negative, got %g", c.Optimization.Alpha)
	case c.Optimization.Xi < 0:
		return fmt.Errorf("OPT_XI must be non-negative, got %g", c.Optimization.Xi)
	case c.Optimization.Restarts <= 0:
		return fmt.Errorf("OPT_RESTARTS must be positive, got %d", c.Optimization.Restarts)
	case c.Optimization.LBFGSMaxIterations <= 0:
		return fmt.Errorf("OPT_LBFGS_MAX_ITERATIONS must be positive, got %d", c.Optimization.LBFGSMaxIterations)
	case c.Optimization.LBFGSEpsilon < 0:
		return fmt.Errorf("OPT_LBFGS_EPSILON must be non-negative, got %g", c.Optimization.LBFGSEpsilon)
	case c.Optimization.Penalty < 0:
		return fmt.Errorf("OPT_PENALTY must be non-negative, got %g", c.Optimization.Penalty)
	case c.Optimization.MaxSessions <= 0:
		return fmt.Errorf("OPT_MAX_SESSIONS must be positive, got %d", c.Optimization.MaxSessions)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if _, err := kernels.New(c.Optimization.Kernel, 1, 1); err != nil {
		return fmt.Errorf("OPT_KERNEL: %w", err)
	}
	return nil
}

// LoggerConfig returns the logger configuration.
func (c *Config) LoggerConfig() *logging.Config {
	return &logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}
