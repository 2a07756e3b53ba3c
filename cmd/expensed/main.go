// Command expensed runs the recurring expense scheduling daemon: it loads
// templates, arms their timers, fires expenses when they come due and
// cleans up old execution history.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kestrelhq/expensed/internal/config"
	"github.com/kestrelhq/expensed/internal/engine"
	"github.com/kestrelhq/expensed/internal/expense"
	"github.com/kestrelhq/expensed/internal/manager"
	"github.com/kestrelhq/expensed/internal/notify"
	"github.com/kestrelhq/expensed/internal/schedule"
	"github.com/kestrelhq/expensed/internal/storage"
	fsbackend "github.com/kestrelhq/expensed/internal/storage/fs"
	"github.com/kestrelhq/expensed/internal/storage/memory"
	"github.com/kestrelhq/expensed/internal/storage/postgres"
	"github.com/kestrelhq/expensed/internal/storage/sqlite"
	"github.com/kestrelhq/expensed/internal/store"
	"github.com/kestrelhq/expensed/internal/timer"
	"github.com/kestrelhq/expensed/pkg/observability"
)

const serviceName = "expensed"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lp, logger, err := observability.InitLogger(ctx, serviceName, cfg.Env, cfg.Observability.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown logger provider", "error", err)
		}
	}()
	slog.SetDefault(logger)

	tp, err := observability.InitTracerProvider(ctx, serviceName, cfg.Observability.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to init tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown tracer provider", "error", err)
		}
	}()

	mp, err := observability.InitMeterProvider(ctx, serviceName, cfg.Observability.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to init meter provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown meter provider", "error", err)
		}
	}()

	slog.InfoContext(ctx, "starting expensed", "env", cfg.Env, "storage", cfg.Storage.Type)

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage backend: %w", err)
	}
	defer backend.Close()

	st := store.New(backend, cfg.Limits)
	calc := schedule.New(cfg.Limits.Location(),
		schedule.WithCustomIntervalBounds(cfg.Limits.MinCustomInterval, cfg.Limits.MaxCustomInterval))
	mgr := manager.New(st, calc, manager.WithLogger(logger))

	client := expense.NewClient(cfg.Expense.BaseURL, expense.StaticToken(cfg.Expense.Token),
		expense.WithTimeout(cfg.Expense.Timeout),
		expense.WithRetry(uint(cfg.Expense.RetryAttempts), cfg.Expense.RetryInitial, cfg.Expense.RetryMax),
		expense.WithRateLimit(float64(cfg.Expense.RateRPS), cfg.Expense.RateBurst),
		expense.WithClientLogger(logger))

	eng := engine.New(st, calc, timer.NewInProcess(), client, notify.NewLog(logger),
		engine.WithLogger(logger))
	if err := eng.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize scheduling engine: %w", err)
	}

	go runCleanupLoop(ctx, mgr, cfg.CleanupInterval, logger)

	<-ctx.Done()
	slog.InfoContext(ctx, "shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		slog.WarnContext(shutdownCtx, "engine shutdown incomplete", "error", err)
		return nil
	}
	slog.InfoContext(shutdownCtx, "engine shutdown complete")
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Type {
	case config.StorageMemory:
		return memory.NewStore(), nil
	case config.StorageFS:
		return fsbackend.NewStore(cfg.Storage.FSDir)
	case config.StorageSQLite:
		return sqlite.NewStore(ctx, cfg.Storage.SQLitePath)
	case config.StoragePostgres:
		slog.InfoContext(ctx, "connecting to postgres", "dsn", maskPassword(cfg.Storage.DSN))
		return postgres.NewStore(ctx, postgres.DBConfig{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.ConnMaxLifetime) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.ConnMaxIdleTime) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// runCleanupLoop prunes old execution history on a fixed interval, when
// preferences allow it. Preferences are re-read every tick so changes take
// effect without a restart.
func runCleanupLoop(ctx context.Context, mgr *manager.Manager, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prefs, err := mgr.Preferences(ctx)
			if err != nil {
				logger.WarnContext(ctx, "failed to load preferences for cleanup", "error", err)
				continue
			}
			if !prefs.AutoCleanupEnabled {
				continue
			}
			if _, err := mgr.Cleanup(ctx, prefs.RetentionDays); err != nil {
				logger.WarnContext(ctx, "history cleanup failed", "error", err)
			}
		}
	}
}

// maskPassword masks the password in a connection string for logging.
func maskPassword(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil {
		return "[REDACTED]"
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "xxxxxx")
		}
	}
	return u.String()
}
