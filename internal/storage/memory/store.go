// Package memory provides an in-process storage backend. It backs tests
// and single-process deployments that do not need durability.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kestrelhq/expensed/internal/storage"
)

type entry struct {
	value   []byte
	version int64
}

// Store is an in-memory implementation of storage.Backend.
type Store struct {
	mu   sync.RWMutex
	data map[string]entry
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[string]entry)}
}

func (s *Store) Get(ctx context.Context, key string) (storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok {
		return storage.Record{}, storage.ErrKeyNotFound
	}
	return storage.Record{Key: key, Value: cloneBytes(e.value), Version: e.version}, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []storage.Record
	for key, e := range s.data {
		if strings.HasPrefix(key, prefix) {
			records = append(records, storage.Record{Key: key, Value: cloneBytes(e.value), Version: e.version})
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (s *Store) Commit(ctx context.Context, ops []storage.Op, preconditions []storage.Precondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pre := range preconditions {
		e, ok := s.data[pre.Key]
		if pre.Version == 0 {
			if ok {
				return storage.ErrVersionConflict
			}
			continue
		}
		if !ok || e.version != pre.Version {
			return storage.ErrVersionConflict
		}
	}

	for _, op := range ops {
		if op.Delete {
			delete(s.data, op.Key)
			continue
		}
		s.data[op.Key] = entry{
			value:   cloneBytes(op.Value),
			version: s.data[op.Key].version + 1,
		}
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
