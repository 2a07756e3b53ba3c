// Package store implements the transactional template store: templates,
// the metadata index, the scheduling queue, execution history and
// preferences, all persisted through a storage.Backend with optimistic
// transactions and an in-process read cache.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	gocache "github.com/patrickmn/go-cache"

	"github.com/kestrelhq/expensed/internal/config"
	"github.com/kestrelhq/expensed/internal/domain"
	"github.com/kestrelhq/expensed/internal/storage"
)

// Logical key namespaces. Callers never touch backend keys directly.
const (
	keyIndex       = "metadata.index"
	keyQueue       = "queue"
	keyPreferences = "preferences"

	templatePrefix = "template."
	historyPrefix  = "history."
)

func templateKey(id string) string { return templatePrefix + id }
func historyKey(id string) string  { return historyPrefix + id }

const (
	// txAttempts bounds optimistic retries before a conflict surfaces as
	// a storage error.
	txAttempts = 5
	txDelay    = 25 * time.Millisecond

	cacheTTL     = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
)

// Store is the transactional template store.
type Store struct {
	backend storage.Backend
	limits  config.Limits
	cache   *gocache.Cache
}

// New creates a Store over the given backend.
func New(backend storage.Backend, limits config.Limits) *Store {
	return &Store{
		backend: backend,
		limits:  limits,
		cache:   gocache.New(cacheTTL, cacheCleanup),
	}
}

// Limits returns the limits the store enforces.
func (s *Store) Limits() config.Limits {
	return s.limits
}

// tx is a read-your-writes view over the backend. Reads record the version
// they observed; commit asserts those versions still hold, so concurrent
// transactions serialise per key.
type tx struct {
	ctx     context.Context
	backend storage.Backend
	reads   map[string]int64 // version observed; 0 means absent
	writes  map[string][]byte
	deletes map[string]bool
}

func newTx(ctx context.Context, backend storage.Backend) *tx {
	return &tx{
		ctx:     ctx,
		backend: backend,
		reads:   make(map[string]int64),
		writes:  make(map[string][]byte),
		deletes: make(map[string]bool),
	}
}

// get unmarshals the value at key into v, honouring writes buffered earlier
// in the same transaction. Returns false when the key is absent.
func (t *tx) get(key string, v any) (bool, error) {
	if t.deletes[key] {
		return false, nil
	}
	if buf, ok := t.writes[key]; ok {
		return true, json.Unmarshal(buf, v)
	}

	rec, err := t.backend.Get(t.ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		t.reads[key] = 0
		return false, nil
	}
	if err != nil {
		return false, err
	}
	t.reads[key] = rec.Version
	return true, json.Unmarshal(rec.Value, v)
}

// put buffers a write.
func (t *tx) put(key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	delete(t.deletes, key)
	t.writes[key] = buf
	return nil
}

// del buffers a delete.
func (t *tx) del(key string) {
	delete(t.writes, key)
	t.deletes[key] = true
}

// commit applies the buffered writes iff every read version still holds.
func (t *tx) commit() error {
	if len(t.writes) == 0 && len(t.deletes) == 0 {
		return nil
	}

	var pre []storage.Precondition
	for key, version := range t.reads {
		pre = append(pre, storage.Precondition{Key: key, Version: version})
	}
	var ops []storage.Op
	for key, value := range t.writes {
		ops = append(ops, storage.Op{Key: key, Value: value})
	}
	for key := range t.deletes {
		ops = append(ops, storage.Op{Key: key, Delete: true})
	}
	return t.backend.Commit(t.ctx, ops, pre)
}

// transaction runs fn with a fresh tx and commits, retrying the whole
// function on version conflicts. Conflicts exhausted or backend failures
// surface as domain.ErrStorage.
func (s *Store) transaction(ctx context.Context, fn func(t *tx) error) error {
	var touched []string

	err := retry.Do(
		func() error {
			t := newTx(ctx, s.backend)
			if err := fn(t); err != nil {
				return err
			}
			if err := t.commit(); err != nil {
				return err
			}
			touched = touched[:0]
			for key := range t.writes {
				touched = append(touched, key)
			}
			for key := range t.deletes {
				touched = append(touched, key)
			}
			return nil
		},
		retry.Attempts(txAttempts),
		retry.Delay(txDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, storage.ErrVersionConflict)
		}),
	)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) || errors.Is(err, storage.ErrKeyNotFound) {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		// Domain errors from fn pass through untouched.
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	for _, key := range touched {
		s.cache.Delete(key)
	}
	return nil
}

func isDomainError(err error) bool {
	for _, sentinel := range []error{
		domain.ErrTemplateNotFound,
		domain.ErrTemplateLimitExceeded,
		domain.ErrScheduling,
		domain.ErrInvalidData,
		domain.ErrInvalidName,
		domain.ErrInvalidRequest,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// cachedGet reads a JSON value through the read cache. The decode target
// must be a pointer. Missing records are never cached, so the cache cannot
// mask a deletion that happened elsewhere.
func cachedGet[T any](ctx context.Context, s *Store, key string) (*T, error) {
	if hit, ok := s.cache.Get(key); ok {
		if v, ok := hit.(*T); ok {
			return v, nil
		}
	}

	rec, err := s.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	v := new(T)
	if err := json.Unmarshal(rec.Value, v); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal %s: %v", domain.ErrStorage, key, err)
	}
	s.cache.Set(key, v, gocache.DefaultExpiration)
	return v, nil
}
