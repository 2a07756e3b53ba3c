package config

import (
	"errors"
	"fmt"
)

// Storage backend identifiers.
const (
	StorageMemory   = "memory"
	StorageFS       = "fs"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// ErrDSNRequired is returned when the postgres backend is selected without
// a connection string.
var ErrDSNRequired = errors.New("EXPENSED_DB_DSN is required when EXPENSED_STORAGE_TYPE is 'postgres'")

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Type is one of memory, fs, sqlite, postgres.
	Type string `env:"EXPENSED_STORAGE_TYPE" default:"fs"`

	// FSDir is the data directory for the fs backend.
	FSDir string `env:"EXPENSED_FS_DIR" default:"./expensed-data"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `env:"EXPENSED_SQLITE_PATH" default:"./expensed.db"`

	// DSN is the postgres connection string.
	DSN string `env:"EXPENSED_DB_DSN"`

	// Connection pool settings for the postgres backend.
	MaxOpenConns    int `env:"EXPENSED_DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int `env:"EXPENSED_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime int `env:"EXPENSED_DB_CONN_MAX_LIFETIME_SEC" default:"300"`
	ConnMaxIdleTime int `env:"EXPENSED_DB_CONN_MAX_IDLE_TIME_SEC" default:"60"`
}

// Validate checks that the selected backend has what it needs.
func (c *StorageConfig) Validate() error {
	switch c.Type {
	case StorageMemory:
	case StorageFS:
		if c.FSDir == "" {
			return fmt.Errorf("EXPENSED_FS_DIR is required when EXPENSED_STORAGE_TYPE is 'fs'")
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("EXPENSED_SQLITE_PATH is required when EXPENSED_STORAGE_TYPE is 'sqlite'")
		}
	case StoragePostgres:
		if c.DSN == "" {
			return ErrDSNRequired
		}
	default:
		return fmt.Errorf("unsupported EXPENSED_STORAGE_TYPE: %s", c.Type)
	}
	return nil
}
