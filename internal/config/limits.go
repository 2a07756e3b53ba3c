package config

import (
	"fmt"
	"time"
)

// Limits holds the tunable caps and windows of the scheduling core.
type Limits struct {
	// MaxTemplates is the per-user template creation quota.
	MaxTemplates int `env:"EXPENSED_MAX_TEMPLATES"`

	// MaxNameLen caps template name length.
	MaxNameLen int `env:"EXPENSED_MAX_NAME_LEN"`

	// MaxTags and MaxTagLen cap template tags.
	MaxTags   int `env:"EXPENSED_MAX_TAGS"`
	MaxTagLen int `env:"EXPENSED_MAX_TAG_LEN"`

	// MaxHistory caps execution history entries per template.
	MaxHistory int `env:"EXPENSED_MAX_HISTORY"`

	// MinCustomInterval and MaxCustomInterval bound custom schedules.
	MinCustomInterval time.Duration `env:"EXPENSED_MIN_INTERVAL"`
	MaxCustomInterval time.Duration `env:"EXPENSED_MAX_INTERVAL"`

	// DedupWindow suppresses duplicate timer callbacks for one template.
	DedupWindow time.Duration `env:"EXPENSED_DEDUP_WINDOW"`

	// RetentionDays is the default history cleanup horizon.
	RetentionDays int `env:"EXPENSED_RETENTION_DAYS"`

	// Timezone names the zone for wall-clock schedule interpretation.
	// Empty means the host's local zone.
	Timezone string `env:"EXPENSED_TIMEZONE"`
}

// DefaultLimits returns the documented defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxTemplates:      5,
		MaxNameLen:        100,
		MaxTags:           10,
		MaxTagLen:         30,
		MaxHistory:        100,
		MinCustomInterval: 5 * time.Minute,
		MaxCustomInterval: 365 * 24 * time.Hour,
		DedupWindow:       30 * time.Second,
		RetentionDays:     90,
	}
}

// Validate checks limit consistency. Called automatically by env.Load.
func (l *Limits) Validate() error {
	if l.MaxTemplates < 1 {
		return fmt.Errorf("EXPENSED_MAX_TEMPLATES must be at least 1, got %d", l.MaxTemplates)
	}
	if l.MaxHistory < 1 {
		return fmt.Errorf("EXPENSED_MAX_HISTORY must be at least 1, got %d", l.MaxHistory)
	}
	if l.MinCustomInterval <= 0 || l.MaxCustomInterval <= l.MinCustomInterval {
		return fmt.Errorf("custom interval bounds are inverted: min=%s max=%s", l.MinCustomInterval, l.MaxCustomInterval)
	}
	if l.DedupWindow <= 0 {
		return fmt.Errorf("EXPENSED_DEDUP_WINDOW must be positive, got %s", l.DedupWindow)
	}
	if l.Timezone != "" {
		if _, err := time.LoadLocation(l.Timezone); err != nil {
			return fmt.Errorf("invalid EXPENSED_TIMEZONE %q: %w", l.Timezone, err)
		}
	}
	return nil
}

// Location resolves the configured timezone, falling back to the host's
// local zone.
func (l *Limits) Location() *time.Location {
	if l.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
