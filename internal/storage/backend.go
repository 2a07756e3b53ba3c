// Package storage defines the durable key/value contract the template
// store runs on. Backends provide versioned records and an atomic
// multi-key commit; optimistic concurrency lives here so the store's
// transactions work the same over every backend.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound indicates the key has no record.
	ErrKeyNotFound = errors.New("key not found")

	// ErrVersionConflict indicates a commit precondition no longer holds;
	// the caller should re-read and retry.
	ErrVersionConflict = errors.New("version conflict")
)

// Record is a stored value with its version. Versions start at 1 and
// increase by one on every write to the key.
type Record struct {
	Key     string
	Value   []byte
	Version int64
}

// Op is one write in a commit: an upsert, or a delete when Delete is set.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Precondition asserts the version a key must still have at commit time.
// Version 0 asserts the key must not exist.
type Precondition struct {
	Key     string
	Version int64
}

// Backend is a durable versioned key/value store.
type Backend interface {
	// Get returns the record for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (Record, error)

	// List returns all records whose key starts with prefix, in key order.
	List(ctx context.Context, prefix string) ([]Record, error)

	// Commit atomically applies ops iff every precondition holds, returning
	// ErrVersionConflict otherwise. An empty op set with preconditions is a
	// validity check.
	Commit(ctx context.Context, ops []Op, preconditions []Precondition) error

	// Close releases backend resources.
	Close() error
}

// Put writes a single key without a version check.
func Put(ctx context.Context, b Backend, key string, value []byte) error {
	return b.Commit(ctx, []Op{{Key: key, Value: value}}, nil)
}

// Delete removes a single key without a version check. Deleting a missing
// key is not an error.
func Delete(ctx context.Context, b Backend, key string) error {
	return b.Commit(ctx, []Op{{Key: key, Delete: true}}, nil)
}
