package config

import (
	"fmt"
	"time"
)

// ExpenseServiceConfig configures the outbound expense client.
type ExpenseServiceConfig struct {
	// BaseURL is the expense service root, e.g. https://expenses.internal.
	BaseURL string `env:"EXPENSED_EXPENSE_URL"`

	// Token is the static bearer token. Rotating tokens plug in through
	// the client's TokenProvider instead.
	Token string `env:"EXPENSED_EXPENSE_TOKEN"`

	Timeout       time.Duration `env:"EXPENSED_EXPENSE_TIMEOUT" default:"30s"`
	RetryAttempts int           `env:"EXPENSED_EXPENSE_RETRIES" default:"3"`
	RetryInitial  time.Duration `env:"EXPENSED_EXPENSE_RETRY_INITIAL" default:"1s"`
	RetryMax      time.Duration `env:"EXPENSED_EXPENSE_RETRY_MAX" default:"10s"`

	// RateRPS and RateBurst bound outbound requests.
	RateRPS   int `env:"EXPENSED_EXPENSE_RPS" default:"5"`
	RateBurst int `env:"EXPENSED_EXPENSE_BURST" default:"10"`
}

// Validate checks client settings.
func (c *ExpenseServiceConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("EXPENSED_EXPENSE_URL is required")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("EXPENSED_EXPENSE_RETRIES must be at least 1, got %d", c.RetryAttempts)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("EXPENSED_EXPENSE_TIMEOUT must be positive, got %s", c.Timeout)
	}
	return nil
}
