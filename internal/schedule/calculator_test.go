package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/expensed/internal/domain"
)

func at(h, m int) domain.ExecutionTime {
	return domain.ExecutionTime{Hour: h, Minute: m}
}

func TestNext_Daily(t *testing.T) {
	calc := New(time.UTC)
	sched := &domain.Schedule{
		Enabled:       true,
		Interval:      domain.IntervalDaily,
		ExecutionTime: at(14, 30),
	}

	// Before today's slot: fires today.
	now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	next, err := calc.Next(sched, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 8, 1, 14, 30, 0, 0, time.UTC), *next)

	// After today's slot: fires tomorrow.
	now = time.Date(2025, 8, 1, 16, 0, 0, 0, time.UTC)
	next, err = calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 2, 14, 30, 0, 0, time.UTC), *next)

	// Exactly at the slot: the firing is not strictly in the future.
	now = time.Date(2025, 8, 1, 14, 30, 0, 0, time.UTC)
	next, err = calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 2, 14, 30, 0, 0, time.UTC), *next)
}

func TestNext_DailyPastEndDate(t *testing.T) {
	calc := New(time.UTC)
	end := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	sched := &domain.Schedule{
		Enabled:       true,
		Interval:      domain.IntervalDaily,
		ExecutionTime: at(14, 30),
		EndDate:       &end,
	}

	now := time.Date(2025, 8, 1, 13, 0, 0, 0, time.UTC)
	_, err := calc.Next(sched, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrScheduling)
}

func TestNext_Weekly(t *testing.T) {
	calc := New(time.UTC)
	sched := &domain.Schedule{
		Enabled:       true,
		Interval:      domain.IntervalWeekly,
		ExecutionTime: at(14, 30),
		DaysOfWeek:    []string{"friday"},
	}

	// Thursday morning: fires Friday.
	now := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	next, err := calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 3, 14, 30, 0, 0, time.UTC), *next)

	// Friday evening, slot passed: fires next Friday.
	now = time.Date(2025, 1, 3, 16, 0, 0, 0, time.UTC)
	next, err = calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 10, 14, 30, 0, 0, time.UTC), *next)
}

func TestNext_WeeklyCaseInsensitiveDayNames(t *testing.T) {
	calc := New(time.UTC)
	sched := &domain.Schedule{
		Enabled:       true,
		Interval:      domain.IntervalWeekly,
		ExecutionTime: at(9, 0),
		DaysOfWeek:    []string{"MON", "Wednesday"},
	}

	// Sunday: fires Monday.
	now := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)
	next, err := calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), *next)
}

func TestNext_WeeklyEmptyDaysIsError(t *testing.T) {
	calc := New(time.UTC)
	sched := &domain.Schedule{
		Enabled:       true,
		Interval:      domain.IntervalWeekly,
		ExecutionTime: at(9, 0),
	}

	_, err := calc.Next(sched, time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrScheduling)
}

func TestNext_MonthlySkipsShortMonths(t *testing.T) {
	calc := New(time.UTC)
	sched := &domain.Schedule{
		Enabled:       true,
		Interval:      domain.IntervalMonthly,
		ExecutionTime: at(14, 30),
		DayOfMonth:    31,
	}

	// Jan 31 after the slot, non-leap year: February has no 31st, so the
	// next firing is March 31.
	now := time.Date(2025, 1, 31, 16, 0, 0, 0, time.UTC)
	next, err := calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 31, 14, 30, 0, 0, time.UTC), *next)

	// After March 31: April is short too, so May 31.
	now = time.Date(2025, 3, 31, 16, 0, 0, 0, time.UTC)
	next, err = calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 31, 14, 30, 0, 0, time.UTC), *next)
}

func TestNext_MonthlyLastDay(t *testing.T) {
	calc := New(time.UTC)
	sched := &domain.Schedule{
		Enabled:       true,
		Interval:      domain.IntervalMonthly,
		ExecutionTime: at(8, 0),
		DayOfMonth:    domain.LastDayOfMonth,
	}

	// Mid-February 2024 (leap year): fires Feb 29.
	now := time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)
	next, err := calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC), *next)

	// After Feb 29's slot: fires Mar 31.
	now = time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC)
	next, err = calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 31, 8, 0, 0, 0, time.UTC), *next)
}

func TestNext_CustomGridAligned(t *testing.T) {
	calc := New(time.UTC)
	start := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	sched := &domain.Schedule{
		Enabled:        true,
		Interval:       domain.IntervalCustom,
		CustomInterval: time.Hour,
		StartDate:      &start,
	}

	// 12:35 is between the 12:00 and 13:00 lattice points: next is 13:00,
	// not 13:35.
	now := time.Date(2025, 8, 1, 12, 35, 0, 0, time.UTC)
	next, err := calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 1, 13, 0, 0, 0, time.UTC), *next)

	// Before the anchor: the first firing is the anchor itself.
	now = time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	next, err = calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, start, *next)

	// Drift between adjacent firings is exactly one interval.
	prev := start
	now = start
	for k := 0; k < 5; k++ {
		next, err := calc.Next(sched, now)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, next.Sub(prev))
		prev = *next
		now = next.Add(37 * time.Second) // simulate late wake-up
	}
}

func TestNext_DisabledOrPausedReturnsNil(t *testing.T) {
	calc := New(time.UTC)
	now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)

	sched := &domain.Schedule{Interval: domain.IntervalDaily, ExecutionTime: at(9, 0)}
	next, err := calc.Next(sched, now)
	require.NoError(t, err)
	assert.Nil(t, next)

	sched = &domain.Schedule{Enabled: true, Paused: true, Interval: domain.IntervalDaily, ExecutionTime: at(9, 0)}
	next, err = calc.Next(sched, now)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNext_WallClockInConfiguredZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	calc := New(ny)
	sched := &domain.Schedule{
		Enabled:       true,
		Interval:      domain.IntervalDaily,
		ExecutionTime: at(14, 30),
	}

	// 17:00 UTC on Aug 1 is 13:00 in New York, so the 14:30 slot is still
	// ahead on the same local day.
	now := time.Date(2025, 8, 1, 17, 0, 0, 0, time.UTC)
	next, err := calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 1, 14, 30, 0, 0, ny).UTC(), next.UTC())

	// 20:00 UTC is 16:00 in New York: the slot has passed locally even
	// though UTC has not reached 14:30 of the following day.
	now = time.Date(2025, 8, 1, 20, 0, 0, 0, time.UTC)
	next, err = calc.Next(sched, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 2, 14, 30, 0, 0, ny).UTC(), next.UTC())
}

func TestValidate(t *testing.T) {
	calc := New(time.UTC)
	start := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		sched   *domain.Schedule
		wantErr bool
	}{
		{
			name:  "valid daily",
			sched: &domain.Schedule{Interval: domain.IntervalDaily, ExecutionTime: at(14, 30)},
		},
		{
			name:    "hour out of range",
			sched:   &domain.Schedule{Interval: domain.IntervalDaily, ExecutionTime: at(24, 0)},
			wantErr: true,
		},
		{
			name:    "minute out of range",
			sched:   &domain.Schedule{Interval: domain.IntervalDaily, ExecutionTime: at(12, 60)},
			wantErr: true,
		},
		{
			name:    "weekly without days",
			sched:   &domain.Schedule{Interval: domain.IntervalWeekly, ExecutionTime: at(9, 0)},
			wantErr: true,
		},
		{
			name:    "weekly unknown day",
			sched:   &domain.Schedule{Interval: domain.IntervalWeekly, ExecutionTime: at(9, 0), DaysOfWeek: []string{"someday"}},
			wantErr: true,
		},
		{
			name:  "monthly last day",
			sched: &domain.Schedule{Interval: domain.IntervalMonthly, ExecutionTime: at(9, 0), DayOfMonth: domain.LastDayOfMonth},
		},
		{
			name:    "monthly day zero",
			sched:   &domain.Schedule{Interval: domain.IntervalMonthly, ExecutionTime: at(9, 0), DayOfMonth: 0},
			wantErr: true,
		},
		{
			name:    "monthly day 32",
			sched:   &domain.Schedule{Interval: domain.IntervalMonthly, ExecutionTime: at(9, 0), DayOfMonth: 32},
			wantErr: true,
		},
		{
			name:  "custom in range",
			sched: &domain.Schedule{Interval: domain.IntervalCustom, CustomInterval: time.Hour, StartDate: &start},
		},
		{
			name:    "custom below floor",
			sched:   &domain.Schedule{Interval: domain.IntervalCustom, CustomInterval: time.Minute, StartDate: &start},
			wantErr: true,
		},
		{
			name:    "custom without start date",
			sched:   &domain.Schedule{Interval: domain.IntervalCustom, CustomInterval: time.Hour},
			wantErr: true,
		},
		{
			name:    "start after end",
			sched:   &domain.Schedule{Interval: domain.IntervalDaily, ExecutionTime: at(9, 0), StartDate: &start, EndDate: &end},
			wantErr: true,
		},
		{
			name:    "unknown interval",
			sched:   &domain.Schedule{Interval: "hourly", ExecutionTime: at(9, 0)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := calc.Validate(tt.sched)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrScheduling)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
