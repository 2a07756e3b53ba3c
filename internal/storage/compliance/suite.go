// Package compliance holds the behavioural test suite every storage
// backend must pass. Backend packages invoke it from their own tests.
package compliance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/expensed/internal/storage"
)

// RunBackendComplianceTest runs the standard behaviour tests against a
// Backend implementation. setup returns a fresh backend and a teardown.
func RunBackendComplianceTest(t *testing.T, setup func() (storage.Backend, func())) {
	t.Run("GetMissingKey", func(t *testing.T) {
		backend, teardown := setup()
		defer teardown()
		ctx := context.Background()

		_, err := backend.Get(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		backend, teardown := setup()
		defer teardown()
		ctx := context.Background()

		require.NoError(t, storage.Put(ctx, backend, "template.a", []byte(`{"id":"a"}`)))

		rec, err := backend.Get(ctx, "template.a")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"id":"a"}`), rec.Value)
		assert.Equal(t, int64(1), rec.Version)
	})

	t.Run("VersionIncrementsOnWrite", func(t *testing.T) {
		backend, teardown := setup()
		defer teardown()
		ctx := context.Background()

		require.NoError(t, storage.Put(ctx, backend, "queue", []byte(`[]`)))
		require.NoError(t, storage.Put(ctx, backend, "queue", []byte(`[{"templateId":"a"}]`)))

		rec, err := backend.Get(ctx, "queue")
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Version)
	})

	t.Run("CommitAtomicMultiKey", func(t *testing.T) {
		backend, teardown := setup()
		defer teardown()
		ctx := context.Background()

		ops := []storage.Op{
			{Key: "template.a", Value: []byte(`{"id":"a"}`)},
			{Key: "metadata.index", Value: []byte(`{"a":{}}`)},
		}
		require.NoError(t, backend.Commit(ctx, ops, nil))

		for _, key := range []string{"template.a", "metadata.index"} {
			_, err := backend.Get(ctx, key)
			require.NoError(t, err, "key %s should exist", key)
		}
	})

	t.Run("CommitRespectsVersionPrecondition", func(t *testing.T) {
		backend, teardown := setup()
		defer teardown()
		ctx := context.Background()

		require.NoError(t, storage.Put(ctx, backend, "preferences", []byte(`{}`)))

		// Stale version: rejected, nothing applied.
		err := backend.Commit(ctx,
			[]storage.Op{{Key: "preferences", Value: []byte(`{"stale":true}`)}},
			[]storage.Precondition{{Key: "preferences", Version: 99}})
		require.ErrorIs(t, err, storage.ErrVersionConflict)

		rec, err := backend.Get(ctx, "preferences")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{}`), rec.Value)

		// Correct version: accepted.
		err = backend.Commit(ctx,
			[]storage.Op{{Key: "preferences", Value: []byte(`{"fresh":true}`)}},
			[]storage.Precondition{{Key: "preferences", Version: rec.Version}})
		require.NoError(t, err)
	})

	t.Run("CommitMustNotExistPrecondition", func(t *testing.T) {
		backend, teardown := setup()
		defer teardown()
		ctx := context.Background()

		pre := []storage.Precondition{{Key: "template.new", Version: 0}}
		ops := []storage.Op{{Key: "template.new", Value: []byte(`{}`)}}

		require.NoError(t, backend.Commit(ctx, ops, pre))

		err := backend.Commit(ctx, ops, pre)
		assert.ErrorIs(t, err, storage.ErrVersionConflict)
	})

	t.Run("DeleteRemovesKey", func(t *testing.T) {
		backend, teardown := setup()
		defer teardown()
		ctx := context.Background()

		require.NoError(t, storage.Put(ctx, backend, "template.gone", []byte(`{}`)))
		require.NoError(t, storage.Delete(ctx, backend, "template.gone"))

		_, err := backend.Get(ctx, "template.gone")
		assert.ErrorIs(t, err, storage.ErrKeyNotFound)

		// Deleting a missing key is not an error.
		require.NoError(t, storage.Delete(ctx, backend, "template.gone"))
	})

	t.Run("ListByPrefix", func(t *testing.T) {
		backend, teardown := setup()
		defer teardown()
		ctx := context.Background()

		require.NoError(t, storage.Put(ctx, backend, "template.a", []byte(`1`)))
		require.NoError(t, storage.Put(ctx, backend, "template.b", []byte(`2`)))
		require.NoError(t, storage.Put(ctx, backend, "history.a", []byte(`3`)))

		records, err := backend.List(ctx, "template.")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "template.a", records[0].Key)
		assert.Equal(t, "template.b", records[1].Key)
	})
}
