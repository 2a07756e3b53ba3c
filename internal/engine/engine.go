// Package engine turns persisted schedules into fired expenses. It owns
// the timers, executes templates when they come due, records outcomes and
// arms the next occurrence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kestrelhq/expensed/internal/domain"
	"github.com/kestrelhq/expensed/internal/expense"
	"github.com/kestrelhq/expensed/internal/notify"
	"github.com/kestrelhq/expensed/internal/schedule"
	"github.com/kestrelhq/expensed/internal/store"
	"github.com/kestrelhq/expensed/internal/timer"
)

const timerPrefix = "template_schedule_"

func timerName(id string) string { return timerPrefix + id }

func templateIDFromTimer(name string) (string, bool) {
	if !strings.HasPrefix(name, timerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(name, timerPrefix), true
}

// Engine drives scheduled executions. One timer is armed per actively
// scheduled template; firing executes the template and re-arms the next
// occurrence.
type Engine struct {
	store    *store.Store
	calc     *schedule.Calculator
	timers   timer.Timers
	expenses expense.Service
	notifier notify.Notifier
	clock    func() time.Time
	logger   *slog.Logger

	// dedup suppresses duplicate firings of the same template inside the
	// configured window, so a replaced timer racing its predecessor cannot
	// execute twice.
	dedup *gocache.Cache

	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	initialized bool
	closed      bool

	wg sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine. Call Initialize before relying on it.
func New(s *store.Store, calc *schedule.Calculator, timers timer.Timers, expenses expense.Service, notifier notify.Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		calc:     calc,
		timers:   timers,
		expenses: expenses,
		notifier: notifier,
		clock:    time.Now,
		logger:   slog.Default(),
		dedup:    gocache.New(s.Limits().DedupWindow, 5*time.Minute),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize registers the firing handler and rebuilds timers from the
// persisted queue. Entries already due are caught up with exactly one
// execution each; future entries get a timer. Once it has succeeded,
// calling Initialize again is a no-op; after a failure it can be retried.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.initialized = true
	e.mu.Unlock()

	e.timers.OnFire(e.handleFire)

	queue, err := e.store.GetQueue(ctx)
	if err != nil {
		e.reset()
		return fmt.Errorf("failed to load scheduling queue: %w", err)
	}

	now := e.clock()
	caughtUp := 0
	for _, entry := range queue {
		if entry.ScheduledFor.After(now) {
			if err := e.timers.Create(timerName(entry.TemplateID), entry.ScheduledFor); err != nil {
				e.reset()
				return fmt.Errorf("failed to arm timer for %s: %w", entry.TemplateID, err)
			}
			continue
		}
		// Missed while the process was down. The queue holds one entry per
		// template, so this executes at most once per template.
		caughtUp++
		e.spawn(entry.TemplateID, entry.ScheduledFor)
	}

	e.logger.InfoContext(ctx, "scheduling engine initialized",
		slog.Int("queued", len(queue)),
		slog.Int("caught_up", caughtUp))
	return nil
}

// reset clears the initialized flag so a failed Initialize can be retried.
func (e *Engine) reset() {
	e.mu.Lock()
	e.initialized = false
	e.mu.Unlock()
}

// Bind arms or clears the timer for a template after its schedule changed.
func (e *Engine) Bind(ctx context.Context, id string) error {
	tmpl, err := e.store.Get(ctx, id)
	if errors.Is(err, domain.ErrTemplateNotFound) {
		return e.timers.Clear(timerName(id))
	}
	if err != nil {
		return err
	}

	if !tmpl.ActivelyScheduled() {
		return e.timers.Clear(timerName(id))
	}
	return e.timers.Create(timerName(id), *tmpl.Scheduling.NextExecution)
}

// Unbind clears the timer for a template.
func (e *Engine) Unbind(id string) error {
	return e.timers.Clear(timerName(id))
}

// Scheduled returns the armed firing instants keyed by template id.
func (e *Engine) Scheduled() (map[string]time.Time, error) {
	all, err := e.timers.GetAll()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(all))
	for name, when := range all {
		if id, ok := templateIDFromTimer(name); ok {
			out[id] = when
		}
	}
	return out, nil
}

// Shutdown stops accepting firings and waits for in-flight executions to
// finish, up to the context deadline.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	if err := e.timers.Close(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executions still in flight at shutdown: %w", ctx.Err())
	}
}

func (e *Engine) handleFire(name string, scheduledFor time.Time) {
	id, ok := templateIDFromTimer(name)
	if !ok {
		return
	}
	e.spawn(id, scheduledFor)
}

// spawn runs one execution on its own goroutine, tracked for shutdown.
func (e *Engine) spawn(id string, scheduledFor time.Time) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		e.execute(context.Background(), id, scheduledFor)
	}()
}

func (e *Engine) templateLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}

// execute fires one template: submit the expense, record the outcome,
// notify, and arm the next occurrence. Failures are recorded and the
// schedule continues; only a passed end date stops it.
func (e *Engine) execute(ctx context.Context, id string, scheduledFor time.Time) {
	// Add is atomic, so parallel callbacks for the same template admit
	// exactly one execution.
	if err := e.dedup.Add(id, struct{}{}, gocache.DefaultExpiration); err != nil {
		e.logger.DebugContext(ctx, "duplicate firing suppressed", slog.String("template_id", id))
		return
	}

	lock := e.templateLock(id)
	lock.Lock()
	defer lock.Unlock()

	tmpl, err := e.store.Get(ctx, id)
	if errors.Is(err, domain.ErrTemplateNotFound) {
		// Deleted between arming and firing.
		_ = e.timers.Clear(timerName(id))
		return
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to load template for execution",
			slog.String("template_id", id), slog.String("error", err.Error()))
		return
	}
	if !tmpl.ActivelyScheduled() {
		_ = e.timers.Clear(timerName(id))
		return
	}

	if err := e.store.MarkQueueEntry(ctx, id, domain.QueueInFlight); err != nil {
		e.logger.WarnContext(ctx, "failed to mark queue entry in-flight",
			slog.String("template_id", id), slog.String("error", err.Error()))
	}

	now := e.clock()
	rec := domain.ExecutionRecord{
		ID:         domain.NewExecutionID(),
		ExecutedAt: now.UTC(),
		Status:     domain.ExecutionSuccess,
		Type:       domain.ExecutionScheduled,
	}

	result, err := e.expenses.CreateExpense(ctx, expense.PayloadFrom(tmpl, now))
	if err != nil {
		rec.Status = domain.ExecutionFailed
		rec.Error = err.Error()
		e.logger.WarnContext(ctx, "scheduled execution failed",
			slog.String("template_id", id), slog.String("error", err.Error()))
	} else {
		rec.ExpenseID = result.ExpenseID
	}

	if err := e.store.AppendExecution(ctx, id, rec); err != nil {
		e.logger.ErrorContext(ctx, "failed to record execution",
			slog.String("template_id", id), slog.String("error", err.Error()))
	}
	if rec.Status == domain.ExecutionFailed {
		if err := e.store.MarkQueueEntry(ctx, id, domain.QueueFailed); err != nil {
			e.logger.WarnContext(ctx, "failed to mark queue entry failed",
				slog.String("template_id", id), slog.String("error", err.Error()))
		}
	}

	e.notifyOutcome(ctx, tmpl, rec)
	e.reschedule(ctx, tmpl, now)
}

func (e *Engine) notifyOutcome(ctx context.Context, tmpl *domain.Template, rec domain.ExecutionRecord) {
	prefs, err := e.store.GetPreferences(ctx)
	if err != nil || !prefs.NotificationsEnabled {
		return
	}
	e.notifier.ExecutionFinished(ctx, notify.Event{
		TemplateID:   tmpl.ID,
		TemplateName: tmpl.Name,
		Status:       rec.Status,
		ExpenseID:    rec.ExpenseID,
		Error:        rec.Error,
	})
}

// reschedule computes the next occurrence and persists it. A schedule
// whose end date has passed is disabled rather than deleted.
func (e *Engine) reschedule(ctx context.Context, tmpl *domain.Template, now time.Time) {
	sched := tmpl.Scheduling.Clone()

	next, err := e.calc.Next(sched, now)
	if err != nil {
		if errors.Is(err, domain.ErrScheduling) {
			sched.Enabled = false
			sched.NextExecution = nil
			if _, uerr := e.store.UpdateScheduling(ctx, tmpl.ID, sched); uerr != nil {
				e.logger.ErrorContext(ctx, "failed to disable finished schedule",
					slog.String("template_id", tmpl.ID), slog.String("error", uerr.Error()))
				return
			}
			_ = e.timers.Clear(timerName(tmpl.ID))
			e.logger.InfoContext(ctx, "schedule reached its end date",
				slog.String("template_id", tmpl.ID))
			return
		}
		e.logger.ErrorContext(ctx, "failed to compute next execution",
			slog.String("template_id", tmpl.ID), slog.String("error", err.Error()))
		return
	}

	sched.NextExecution = next
	if _, err := e.store.UpdateScheduling(ctx, tmpl.ID, sched); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist next execution",
			slog.String("template_id", tmpl.ID), slog.String("error", err.Error()))
		return
	}
	if err := e.timers.Create(timerName(tmpl.ID), *next); err != nil {
		e.logger.ErrorContext(ctx, "failed to arm next timer",
			slog.String("template_id", tmpl.ID), slog.String("error", err.Error()))
	}
}
