package domain

import (
	"strings"
	"time"
)

// Interval is the recurrence kind of a schedule.
type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
	IntervalCustom  Interval = "custom"
)

// LastDayOfMonth is the DayOfMonth sentinel for "last day of the month".
const LastDayOfMonth = -1

// ExecutionTime is a wall-clock time of day in the configured timezone.
type ExecutionTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Schedule is the recurrence rule attached to a template. The variant
// fields (DaysOfWeek, DayOfMonth, CustomInterval) are interpreted per
// Interval; the rest apply to every kind.
type Schedule struct {
	Enabled  bool     `json:"enabled"`
	Paused   bool     `json:"paused"`
	Interval Interval `json:"interval"`

	// ExecutionTime is ignored for IntervalCustom, which fires on a fixed
	// lattice anchored at StartDate instead.
	ExecutionTime ExecutionTime `json:"executionTime"`

	// DaysOfWeek applies to IntervalWeekly: day names, case-insensitive.
	DaysOfWeek []string `json:"daysOfWeek,omitempty"`

	// DayOfMonth applies to IntervalMonthly: 1..31 or LastDayOfMonth.
	DayOfMonth int `json:"dayOfMonth,omitempty"`

	// CustomInterval applies to IntervalCustom.
	CustomInterval time.Duration `json:"customInterval,omitempty"`

	StartDate     *time.Time `json:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	NextExecution *time.Time `json:"nextExecution,omitempty"`
}

// Active reports whether the schedule should fire at all.
func (s *Schedule) Active() bool {
	return s != nil && s.Enabled && !s.Paused
}

// weekdayNames maps accepted day names to time.Weekday.
var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
}

// ParseWeekday resolves a case-insensitive day name ("friday", "fri") to a
// time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// TargetWeekdays resolves DaysOfWeek into a weekday set. Unrecognised names
// are reported via ok=false.
func (s *Schedule) TargetWeekdays() (map[time.Weekday]bool, bool) {
	days := make(map[time.Weekday]bool, len(s.DaysOfWeek))
	for _, name := range s.DaysOfWeek {
		d, ok := ParseWeekday(name)
		if !ok {
			return nil, false
		}
		days[d] = true
	}
	return days, true
}

// Clone returns a deep copy so callers can mutate schedules without
// aliasing stored state.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	out := *s
	out.DaysOfWeek = append([]string(nil), s.DaysOfWeek...)
	if s.StartDate != nil {
		d := *s.StartDate
		out.StartDate = &d
	}
	if s.EndDate != nil {
		d := *s.EndDate
		out.EndDate = &d
	}
	if s.NextExecution != nil {
		d := *s.NextExecution
		out.NextExecution = &d
	}
	return &out
}
