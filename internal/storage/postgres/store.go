// Package postgres provides a PostgreSQL storage backend for multi-process
// deployments. Versioned rows give the optimistic concurrency the template
// store's transactions rely on.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"

	"github.com/kestrelhq/expensed/internal/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DBConfig holds PostgreSQL connection configuration.
type DBConfig struct {
	DSN             string
	MaxOpenConns    int           // default: 25
	MaxIdleConns    int           // default: 5
	ConnMaxLifetime time.Duration // default: 5min
	ConnMaxIdleTime time.Duration // default: 1min
}

// Store is a PostgreSQL implementation of storage.Backend.
type Store struct {
	db *sql.DB
}

// NewStore opens a PostgreSQL connection pool and runs migrations.
func NewStore(ctx context.Context, cfg DBConfig) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}
	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 5 * time.Minute
	}
	connMaxIdleTime := cfg.ConnMaxIdleTime
	if connMaxIdleTime <= 0 {
		connMaxIdleTime = 1 * time.Minute
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	goose.SetBaseFS(embedMigrations)
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (storage.Record, error) {
	var rec storage.Record
	rec.Key = key
	err := s.db.QueryRowContext(ctx,
		`SELECT value, version FROM kv WHERE key = $1`, key,
	).Scan(&rec.Value, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Record{}, storage.ErrKeyNotFound
	}
	if err != nil {
		return storage.Record{}, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.Record, error) {
	// The >= bound narrows the index scan; the exact prefix match happens
	// here so the result does not depend on collation. LIKE is out because
	// underscores in keys would act as wildcards.
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, version FROM kv WHERE key >= $1 ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	var records []storage.Record
	for rows.Next() {
		var rec storage.Record
		if err := rows.Scan(&rec.Key, &rec.Value, &rec.Version); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if !strings.HasPrefix(rec.Key, prefix) {
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) Commit(ctx context.Context, ops []storage.Op, preconditions []storage.Precondition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, pre := range preconditions {
		var version int64
		// FOR UPDATE serialises concurrent commits touching the same key.
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM kv WHERE key = $1 FOR UPDATE`, pre.Key).Scan(&version)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if pre.Version != 0 {
				return storage.ErrVersionConflict
			}
		case err != nil:
			return fmt.Errorf("failed to check %s: %w", pre.Key, err)
		case version != pre.Version:
			return storage.ErrVersionConflict
		}
	}

	for _, op := range ops {
		if op.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = $1`, op.Key); err != nil {
				return fmt.Errorf("failed to delete %s: %w", op.Key, err)
			}
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value, version) VALUES ($1, $2, 1)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, version = kv.version + 1`,
			op.Key, op.Value)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", op.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
