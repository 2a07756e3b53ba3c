package memory

import (
	"testing"

	"github.com/kestrelhq/expensed/internal/storage"
	"github.com/kestrelhq/expensed/internal/storage/compliance"
)

func TestMemoryStore_Compliance(t *testing.T) {
	compliance.RunBackendComplianceTest(t, func() (storage.Backend, func()) {
		store := NewStore()
		return store, func() { store.Close() }
	})
}
