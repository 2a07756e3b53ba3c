// Package schedule computes firing instants for template schedules.
// Calculations are pure: the same schedule, reference instant and timezone
// always produce the same result.
package schedule

import (
	"fmt"
	"time"

	"github.com/kestrelhq/expensed/internal/domain"
)

// Custom-interval bounds applied when the caller does not override them.
const (
	DefaultMinCustomInterval = 5 * time.Minute
	DefaultMaxCustomInterval = 365 * 24 * time.Hour
)

// Calculator computes next firing instants in a fixed timezone. The zero
// value is not usable; construct with New.
type Calculator struct {
	loc       *time.Location
	minCustom time.Duration
	maxCustom time.Duration
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithCustomIntervalBounds overrides the accepted range for custom
// intervals.
func WithCustomIntervalBounds(min, max time.Duration) Option {
	return func(c *Calculator) {
		c.minCustom = min
		c.maxCustom = max
	}
}

// New creates a Calculator interpreting wall-clock times in loc. A nil loc
// falls back to the host's local zone.
func New(loc *time.Location, opts ...Option) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	c := &Calculator{
		loc:       loc,
		minCustom: DefaultMinCustomInterval,
		maxCustom: DefaultMaxCustomInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Location returns the calculator's timezone.
func (c *Calculator) Location() *time.Location {
	return c.loc
}

// Next returns the first firing instant strictly after now, or nil when the
// schedule is disabled or paused. It fails with domain.ErrScheduling when
// the configuration is malformed or the next candidate would exceed the
// schedule's end date.
func (c *Calculator) Next(s *domain.Schedule, now time.Time) (*time.Time, error) {
	if !s.Active() {
		return nil, nil
	}
	if err := c.Validate(s); err != nil {
		return nil, err
	}

	var next time.Time
	switch s.Interval {
	case domain.IntervalDaily:
		next = c.nextDaily(s, now)
	case domain.IntervalWeekly:
		var ok bool
		next, ok = c.nextWeekly(s, now)
		if !ok {
			return nil, schedErr("daysOfWeek", "no valid firing day before end date")
		}
	case domain.IntervalMonthly:
		next = c.nextMonthly(s, now)
	case domain.IntervalCustom:
		next = nextCustom(s, now)
	default:
		return nil, schedErr("interval", fmt.Sprintf("unknown interval %q", s.Interval))
	}

	if s.EndDate != nil && next.After(*s.EndDate) {
		return nil, schedErr("endDate", "next firing falls after the schedule end date")
	}
	return &next, nil
}

// nextDaily fires today at the configured time, or tomorrow if that has
// already passed.
func (c *Calculator) nextDaily(s *domain.Schedule, now time.Time) time.Time {
	local := now.In(c.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(),
		s.ExecutionTime.Hour, s.ExecutionTime.Minute, 0, 0, c.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// nextWeekly walks forward from today looking for the first configured
// weekday whose firing time is still ahead. Eight iterations cover the case
// where today's slot has already passed.
func (c *Calculator) nextWeekly(s *domain.Schedule, now time.Time) (time.Time, bool) {
	target, _ := s.TargetWeekdays()
	local := now.In(c.loc)
	for i := 0; i < 8; i++ {
		day := local.AddDate(0, 0, i)
		candidate := time.Date(day.Year(), day.Month(), day.Day(),
			s.ExecutionTime.Hour, s.ExecutionTime.Minute, 0, 0, c.loc)
		if candidate.After(now) && target[candidate.Weekday()] {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// nextMonthly handles short months by advancing until a month accepts the
// configured day, so day-31 schedules skip February cleanly.
func (c *Calculator) nextMonthly(s *domain.Schedule, now time.Time) time.Time {
	local := now.In(c.loc)

	if s.DayOfMonth == domain.LastDayOfMonth {
		next := lastOfMonth(local.Year(), local.Month(), s.ExecutionTime, c.loc)
		if !next.After(now) {
			first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, c.loc).AddDate(0, 1, 0)
			next = lastOfMonth(first.Year(), first.Month(), s.ExecutionTime, c.loc)
		}
		return next
	}

	// Anchor on the first of the month so AddDate never rolls over.
	cursor := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, c.loc)
	for {
		candidate := time.Date(cursor.Year(), cursor.Month(), s.DayOfMonth,
			s.ExecutionTime.Hour, s.ExecutionTime.Minute, 0, 0, c.loc)
		// time.Date normalises overflow (Feb 31 becomes Mar 3); a changed
		// day means this month is too short.
		if candidate.Day() == s.DayOfMonth && candidate.After(now) {
			return candidate
		}
		cursor = cursor.AddDate(0, 1, 0)
	}
}

func lastOfMonth(year int, month time.Month, at domain.ExecutionTime, loc *time.Location) time.Time {
	firstOfNext := time.Date(year, month, 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
	last := firstOfNext.AddDate(0, 0, -1)
	return time.Date(last.Year(), last.Month(), last.Day(), at.Hour, at.Minute, 0, 0, loc)
}

// nextCustom is grid-aligned: every firing lies on the lattice
// startDate + k*interval, so rescheduling never drifts.
func nextCustom(s *domain.Schedule, now time.Time) time.Time {
	start := *s.StartDate
	if now.Before(start) {
		return start
	}
	elapsed := now.Sub(start)
	intervalsPassed := elapsed / s.CustomInterval
	return start.Add((intervalsPassed + 1) * s.CustomInterval)
}

// Validate checks the schedule configuration. It returns a
// domain.ValidationError wrapping domain.ErrScheduling listing every
// violated field.
func (c *Calculator) Validate(s *domain.Schedule) error {
	var fields []domain.FieldError

	if s.Interval != domain.IntervalCustom {
		if s.ExecutionTime.Hour < 0 || s.ExecutionTime.Hour > 23 {
			fields = append(fields, domain.FieldError{Field: "executionTime.hour", Message: "must be between 0 and 23"})
		}
		if s.ExecutionTime.Minute < 0 || s.ExecutionTime.Minute > 59 {
			fields = append(fields, domain.FieldError{Field: "executionTime.minute", Message: "must be between 0 and 59"})
		}
	}

	switch s.Interval {
	case domain.IntervalDaily:
		// Nothing beyond the execution time.
	case domain.IntervalWeekly:
		if len(s.DaysOfWeek) == 0 {
			fields = append(fields, domain.FieldError{Field: "daysOfWeek", Message: "at least one day is required"})
		} else if _, ok := s.TargetWeekdays(); !ok {
			fields = append(fields, domain.FieldError{Field: "daysOfWeek", Message: "unrecognised day name"})
		}
	case domain.IntervalMonthly:
		if s.DayOfMonth != domain.LastDayOfMonth && (s.DayOfMonth < 1 || s.DayOfMonth > 31) {
			fields = append(fields, domain.FieldError{Field: "dayOfMonth", Message: "must be 1-31 or last"})
		}
	case domain.IntervalCustom:
		if s.StartDate == nil {
			fields = append(fields, domain.FieldError{Field: "startDate", Message: "required for custom intervals"})
		}
		if s.CustomInterval < c.minCustom || s.CustomInterval > c.maxCustom {
			fields = append(fields, domain.FieldError{
				Field:   "customInterval",
				Message: fmt.Sprintf("must be between %s and %s", c.minCustom, c.maxCustom),
			})
		}
	default:
		fields = append(fields, domain.FieldError{Field: "interval", Message: fmt.Sprintf("unknown interval %q", s.Interval)})
	}

	if s.StartDate != nil && s.EndDate != nil && !s.StartDate.Before(*s.EndDate) {
		fields = append(fields, domain.FieldError{Field: "startDate", Message: "must be before endDate"})
	}

	if len(fields) > 0 {
		return &domain.ValidationError{Kind: domain.ErrScheduling, Fields: fields}
	}
	return nil
}

func schedErr(field, msg string) error {
	return &domain.ValidationError{
		Kind:   domain.ErrScheduling,
		Fields: []domain.FieldError{{Field: field, Message: msg}},
	}
}
