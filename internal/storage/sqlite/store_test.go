package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/expensed/internal/storage"
	"github.com/kestrelhq/expensed/internal/storage/compliance"
)

func TestSQLiteStore_Compliance(t *testing.T) {
	compliance.RunBackendComplianceTest(t, func() (storage.Backend, func()) {
		path := filepath.Join(t.TempDir(), "expensed.db")
		store, err := NewStore(context.Background(), path)
		require.NoError(t, err)
		return store, func() { store.Close() }
	})
}
