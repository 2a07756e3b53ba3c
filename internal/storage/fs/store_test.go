package fs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/expensed/internal/storage"
	"github.com/kestrelhq/expensed/internal/storage/compliance"
)

func TestFSStore_Compliance(t *testing.T) {
	compliance.RunBackendComplianceTest(t, func() (storage.Backend, func()) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)
		return store, func() { store.Close() }
	})
}
