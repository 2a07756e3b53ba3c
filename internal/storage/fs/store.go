// Package fs provides a filesystem storage backend: one JSON file per key,
// guarded by a process-wide lock. Suited to single-process deployments.
package fs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kestrelhq/expensed/internal/storage"
)

// envelope is the on-disk shape of a record. The value stays raw JSON so
// files remain inspectable with standard tooling.
type envelope struct {
	Version int64           `json:"version"`
	Value   json.RawMessage `json:"value"`
}

// Store is a filesystem implementation of storage.Backend.
type Store struct {
	baseDir string
	mu      sync.RWMutex
}

// NewStore creates a filesystem store rooted at baseDir, creating the
// directory if needed.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// filePath maps a logical key to a file name. Keys are escaped so they can
// never traverse out of the base directory.
func (s *Store) filePath(key string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(key))
	return filepath.Join(s.baseDir, name+".json")
}

func keyFromFile(name string) (string, bool) {
	name = strings.TrimSuffix(name, ".json")
	raw, err := base64.RawURLEncoding.DecodeString(name)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (s *Store) Get(ctx context.Context, key string) (storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(key)
}

func (s *Store) read(key string) (storage.Record, error) {
	data, err := os.ReadFile(s.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.Record{}, storage.ErrKeyNotFound
		}
		return storage.Record{}, fmt.Errorf("failed to read %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return storage.Record{}, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return storage.Record{Key: key, Value: env.Value, Version: env.Version}, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var records []storage.Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		key, ok := keyFromFile(entry.Name())
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		rec, err := s.read(key)
		if err != nil {
			// A file removed between ReadDir and read is not an error.
			if err == storage.ErrKeyNotFound {
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (s *Store) Commit(ctx context.Context, ops []storage.Op, preconditions []storage.Precondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pre := range preconditions {
		rec, err := s.read(pre.Key)
		switch {
		case pre.Version == 0:
			if err == nil {
				return storage.ErrVersionConflict
			}
			if err != storage.ErrKeyNotFound {
				return err
			}
		case err == storage.ErrKeyNotFound:
			return storage.ErrVersionConflict
		case err != nil:
			return err
		case rec.Version != pre.Version:
			return storage.ErrVersionConflict
		}
	}

	for _, op := range ops {
		if op.Delete {
			if err := os.Remove(s.filePath(op.Key)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to delete %s: %w", op.Key, err)
			}
			continue
		}

		var version int64 = 1
		if rec, err := s.read(op.Key); err == nil {
			version = rec.Version + 1
		}

		data, err := json.Marshal(envelope{Version: version, Value: op.Value})
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", op.Key, err)
		}
		if err := s.writeAtomic(op.Key, data); err != nil {
			return err
		}
	}
	return nil
}

// writeAtomic writes via a temp file and rename so readers never observe a
// partial record.
func (s *Store) writeAtomic(key string, data []byte) error {
	path := s.filePath(key)
	tmp, err := os.CreateTemp(s.baseDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
