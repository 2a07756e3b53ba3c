package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/expensed/internal/storage"
	"github.com/kestrelhq/expensed/internal/storage/compliance"
)

// TestPostgresStore_Compliance needs a live database; set
// EXPENSED_TEST_POSTGRES_DSN to run it.
func TestPostgresStore_Compliance(t *testing.T) {
	dsn := os.Getenv("EXPENSED_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EXPENSED_TEST_POSTGRES_DSN not set")
	}

	compliance.RunBackendComplianceTest(t, func() (storage.Backend, func()) {
		ctx := context.Background()
		store, err := NewStore(ctx, DBConfig{DSN: dsn})
		require.NoError(t, err)

		// Each sub-test expects a clean keyspace.
		_, err = store.db.ExecContext(ctx, `DELETE FROM kv`)
		require.NoError(t, err)

		return store, func() { store.Close() }
	})
}
