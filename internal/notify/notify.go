// Package notify delivers user-facing notifications about scheduled
// executions. Delivery failures never affect execution outcomes.
package notify

import (
	"context"
	"log/slog"

	"github.com/kestrelhq/expensed/internal/domain"
)

// Event describes a finished scheduled execution.
type Event struct {
	TemplateID   string
	TemplateName string
	Status       domain.ExecutionStatus
	ExpenseID    string
	Error        string
}

// Notifier receives execution events. Implementations must be safe for
// concurrent use.
type Notifier interface {
	ExecutionFinished(ctx context.Context, e Event)
}

// Log is a Notifier that writes events to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging notifier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) ExecutionFinished(ctx context.Context, e Event) {
	if e.Status == domain.ExecutionSuccess {
		l.logger.InfoContext(ctx, "scheduled expense created",
			slog.String("template_id", e.TemplateID),
			slog.String("template_name", e.TemplateName),
			slog.String("expense_id", e.ExpenseID))
		return
	}
	l.logger.WarnContext(ctx, "scheduled expense failed",
		slog.String("template_id", e.TemplateID),
		slog.String("template_name", e.TemplateName),
		slog.String("error", e.Error))
}

// Discard is a Notifier that drops every event. Used when notifications
// are disabled in preferences.
type Discard struct{}

func (Discard) ExecutionFinished(context.Context, Event) {}
