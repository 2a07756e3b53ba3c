// Package config holds the daemon configuration, loaded from environment
// variables with the EXPENSED_ prefix.
package config

import (
	"fmt"
	"time"

	"github.com/kestrelhq/expensed/internal/env"
)

// Config holds the full daemon configuration.
type Config struct {
	// Env selects runtime behaviour: dev gets text logs, prod JSON.
	Env string `env:"EXPENSED_ENV" default:"dev"`

	// ShutdownTimeout bounds how long in-flight executions may run after
	// a termination signal.
	ShutdownTimeout time.Duration `env:"EXPENSED_SHUTDOWN_TIMEOUT" default:"30s"`

	// CleanupInterval is how often history cleanup runs when enabled in
	// preferences.
	CleanupInterval time.Duration `env:"EXPENSED_CLEANUP_INTERVAL" default:"24h"`

	Storage       StorageConfig
	Expense       ExpenseServiceConfig
	Observability ObservabilityConfig
	Limits        Limits
}

// Load parses environment variables into a Config. Limits start from
// their documented defaults; everything else defaults through struct tags.
func Load() (*Config, error) {
	cfg := &Config{Limits: DefaultLimits()}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks top-level settings. Nested sections validate themselves
// during env.Parse.
func (c *Config) Validate() error {
	if c.Env != "dev" && c.Env != "prod" {
		return fmt.Errorf("unsupported EXPENSED_ENV: %s", c.Env)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("EXPENSED_SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}
