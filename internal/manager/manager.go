// Package manager coordinates template lifecycle operations: validation,
// persistence, schedule management and history bookkeeping. It owns no
// timers; the engine reacts to schedule changes made here.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelhq/expensed/internal/domain"
	"github.com/kestrelhq/expensed/internal/schedule"
	"github.com/kestrelhq/expensed/internal/store"
	"github.com/kestrelhq/expensed/internal/validate"
)

// Manager is the entry point for template operations.
type Manager struct {
	store     *store.Store
	validator *validate.Validator
	calc      *schedule.Calculator
	clock     func() time.Time
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source. Tests use this to pin "now".
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a Manager over the given store and calculator.
func New(s *store.Store, calc *schedule.Calculator, opts ...Option) *Manager {
	m := &Manager{
		store:     s,
		validator: validate.New(s.Limits()),
		calc:      calc,
		clock:     time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateResult is the outcome of a successful creation.
type CreateResult struct {
	Template *domain.Template
	Warnings []string
}

// Create validates the request and persists a new template. The creation
// quota is enforced by the store inside the write transaction.
func (m *Manager) Create(ctx context.Context, req validate.CreateRequest) (*CreateResult, error) {
	res, err := m.validator.ValidateCreate(req)
	if err != nil {
		return nil, err
	}

	now := m.clock().UTC()
	tmpl := &domain.Template{
		ID:            domain.NewTemplateID(now),
		Name:          res.Normalized.Name,
		SchemaVersion: domain.SchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpenseData:   res.Normalized.ExpenseData,
		Metadata: domain.Metadata{
			SourceExpenseID: res.Normalized.SourceExpenseID,
			CreatedFrom:     res.Normalized.CreatedFrom,
			Tags:            res.Normalized.Tags,
			Favorite:        res.Normalized.Favorite,
		},
	}

	if err := m.store.Create(ctx, tmpl); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "template created",
		slog.String("template_id", tmpl.ID),
		slog.String("created_from", string(tmpl.Metadata.CreatedFrom)))
	return &CreateResult{Template: tmpl.Clone(), Warnings: res.Warnings}, nil
}

// UpdateRequest is a partial update: nil fields are left untouched.
type UpdateRequest struct {
	Name        *string
	ExpenseData *domain.ExpenseData
	Tags        *[]string
	Favorite    *bool
}

// Update applies a partial update. Identity fields and scheduling are
// never touched here; use the schedule operations for the latter.
func (m *Manager) Update(ctx context.Context, id string, req UpdateRequest) (*domain.Template, error) {
	if req.Name != nil {
		if err := m.validator.ValidateName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Tags != nil {
		if err := m.validator.ValidateTags(*req.Tags); err != nil {
			return nil, err
		}
	}

	return m.store.Update(ctx, id, func(tmpl *domain.Template) error {
		if req.Name != nil {
			tmpl.Name = *req.Name
		}
		if req.ExpenseData != nil {
			tmpl.ExpenseData = *req.ExpenseData
		}
		if req.Tags != nil {
			tmpl.Metadata.Tags = *req.Tags
		}
		if req.Favorite != nil {
			tmpl.Metadata.Favorite = *req.Favorite
		}
		return nil
	})
}

// Get returns a template by id.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Template, error) {
	return m.store.Get(ctx, id)
}

// List returns a page of templates.
func (m *Manager) List(ctx context.Context, opts domain.ListOptions) (*domain.ListResult, error) {
	return m.store.List(ctx, opts)
}

// Delete removes a template with its history and queue entry.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "template deleted", slog.String("template_id", id))
	return nil
}

// SetSchedule validates the schedule, computes its next execution and
// persists it. The schedule arrives enabled and unpaused.
func (m *Manager) SetSchedule(ctx context.Context, id string, sched *domain.Schedule) (*domain.Template, error) {
	if sched == nil {
		return nil, fmt.Errorf("%w: schedule must not be nil", domain.ErrInvalidRequest)
	}

	s := sched.Clone()
	s.Enabled = true
	s.Paused = false
	if err := m.calc.Validate(s); err != nil {
		return nil, err
	}

	next, err := m.calc.Next(s, m.clock())
	if err != nil {
		return nil, err
	}
	s.NextExecution = next

	tmpl, err := m.store.UpdateScheduling(ctx, id, s)
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "schedule set",
		slog.String("template_id", id),
		slog.String("interval", string(s.Interval)),
		slog.Any("next_execution", next))
	return tmpl, nil
}

// RemoveSchedule clears a template's schedule entirely.
func (m *Manager) RemoveSchedule(ctx context.Context, id string) (*domain.Template, error) {
	tmpl, err := m.store.UpdateScheduling(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "schedule removed", slog.String("template_id", id))
	return tmpl, nil
}

// PauseSchedule suspends firing without recomputing anything. The stored
// next execution is kept as a frozen marker of where the schedule stopped.
func (m *Manager) PauseSchedule(ctx context.Context, id string) (*domain.Template, error) {
	sched, err := m.loadSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	sched.Paused = true
	return m.store.UpdateScheduling(ctx, id, sched)
}

// ResumeSchedule lifts a pause and recomputes the next execution from now,
// so missed occurrences during the pause are not replayed.
func (m *Manager) ResumeSchedule(ctx context.Context, id string) (*domain.Template, error) {
	sched, err := m.loadSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	sched.Paused = false

	next, err := m.calc.Next(sched, m.clock())
	if err != nil {
		return nil, err
	}
	sched.NextExecution = next
	return m.store.UpdateScheduling(ctx, id, sched)
}

func (m *Manager) loadSchedule(ctx context.Context, id string) (*domain.Schedule, error) {
	tmpl, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tmpl.Scheduling == nil {
		return nil, fmt.Errorf("%w: template %s has no schedule", domain.ErrInvalidRequest, id)
	}
	return tmpl.Scheduling, nil
}

// IncrementUsage records a manual application of the template: bumps the
// use counter and refreshes lastUsed.
func (m *Manager) IncrementUsage(ctx context.Context, id string) error {
	now := m.clock().UTC()
	_, err := m.store.Update(ctx, id, func(tmpl *domain.Template) error {
		tmpl.Metadata.UseCount++
		tmpl.Metadata.LastUsed = &now
		return nil
	})
	return err
}

// RecordExecution appends an execution record to the template's history.
func (m *Manager) RecordExecution(ctx context.Context, id string, rec domain.ExecutionRecord) error {
	return m.store.AppendExecution(ctx, id, rec)
}

// History returns the template's execution history, newest first.
func (m *Manager) History(ctx context.Context, id string) ([]domain.ExecutionRecord, error) {
	return m.store.GetHistory(ctx, id)
}

// Preferences returns the stored user preferences.
func (m *Manager) Preferences(ctx context.Context) (domain.Preferences, error) {
	return m.store.GetPreferences(ctx)
}

// UpdatePreferences applies mutate to the stored preferences.
func (m *Manager) UpdatePreferences(ctx context.Context, mutate func(*domain.Preferences) error) (domain.Preferences, error) {
	return m.store.UpdatePreferences(ctx, mutate)
}

// Cleanup prunes execution history older than the retention horizon.
// A non-positive retentionDays falls back to the stored preference.
func (m *Manager) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		prefs, err := m.store.GetPreferences(ctx)
		if err != nil {
			return 0, err
		}
		retentionDays = prefs.RetentionDays
	}

	cutoff := m.clock().UTC().AddDate(0, 0, -retentionDays)
	removed, err := m.store.PruneHistory(ctx, cutoff)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		m.logger.InfoContext(ctx, "history pruned",
			slog.Int("removed", removed),
			slog.Int("retention_days", retentionDays))
	}
	return removed, nil
}
