package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kestrelhq/expensed/internal/domain"
	"github.com/kestrelhq/expensed/internal/storage"
)

// index is the persisted shape of the metadata index: template id to
// projection. The invariant "index[id] exists iff template id exists" is
// maintained by writing both in the same transaction.
type index map[string]domain.MetadataEntry

func (t *tx) loadIndex() (index, error) {
	idx := make(index)
	if _, err := t.get(keyIndex, &idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Create persists a new template together with its index entry and an
// empty history. The creation quota is checked in the same transaction, so
// racing creates cannot exceed it.
func (s *Store) Create(ctx context.Context, tmpl *domain.Template) error {
	return s.transaction(ctx, func(t *tx) error {
		idx, err := t.loadIndex()
		if err != nil {
			return err
		}
		if len(idx) >= s.limits.MaxTemplates {
			return fmt.Errorf("%w: quota is %d", domain.ErrTemplateLimitExceeded, s.limits.MaxTemplates)
		}
		if _, exists := idx[tmpl.ID]; exists {
			return fmt.Errorf("%w: template %s already exists", domain.ErrInvalidRequest, tmpl.ID)
		}

		idx[tmpl.ID] = tmpl.IndexEntry()
		if err := t.put(templateKey(tmpl.ID), tmpl); err != nil {
			return err
		}
		if err := t.put(keyIndex, idx); err != nil {
			return err
		}
		return t.put(historyKey(tmpl.ID), []domain.ExecutionRecord{})
	})
}

// Get returns a copy of the template, through the read cache.
func (s *Store) Get(ctx context.Context, id string) (*domain.Template, error) {
	tmpl, err := cachedGet[domain.Template](ctx, s, templateKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return tmpl.Clone(), nil
}

// Update loads the template, applies mutate, and persists the result in
// one transaction. ID and CreatedAt are preserved regardless of what
// mutate does; UpdatedAt is set to now. The metadata index entry is
// rebuilt in the same transaction.
func (s *Store) Update(ctx context.Context, id string, mutate func(*domain.Template) error) (*domain.Template, error) {
	var updated *domain.Template
	err := s.transaction(ctx, func(t *tx) error {
		var tmpl domain.Template
		found, err := t.get(templateKey(id), &tmpl)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, id)
		}

		keepID, keepCreated := tmpl.ID, tmpl.CreatedAt
		if err := mutate(&tmpl); err != nil {
			return err
		}
		tmpl.ID = keepID
		tmpl.CreatedAt = keepCreated
		tmpl.UpdatedAt = time.Now().UTC()

		idx, err := t.loadIndex()
		if err != nil {
			return err
		}
		idx[tmpl.ID] = tmpl.IndexEntry()

		if err := t.put(templateKey(tmpl.ID), &tmpl); err != nil {
			return err
		}
		if err := t.put(keyIndex, idx); err != nil {
			return err
		}
		updated = &tmpl
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// Delete removes the template, its history, its queue entry and its index
// entry in one transaction.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.transaction(ctx, func(t *tx) error {
		idx, err := t.loadIndex()
		if err != nil {
			return err
		}
		if _, exists := idx[id]; !exists {
			return fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, id)
		}
		delete(idx, id)

		queue, err := t.loadQueue()
		if err != nil {
			return err
		}

		if err := t.put(keyIndex, idx); err != nil {
			return err
		}
		if err := t.put(keyQueue, queue.without(id)); err != nil {
			return err
		}
		t.del(templateKey(id))
		t.del(historyKey(id))
		return nil
	})
}

// Count returns the number of stored templates.
func (s *Store) Count(ctx context.Context) (int, error) {
	idx, err := s.readIndex(ctx)
	if err != nil {
		return 0, err
	}
	return len(idx), nil
}

// Exists reports whether a template with the given id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	idx, err := s.readIndex(ctx)
	if err != nil {
		return false, err
	}
	_, ok := idx[id]
	return ok, nil
}

// readIndex reads the metadata index through the cache. An absent index
// means an empty store.
func (s *Store) readIndex(ctx context.Context) (index, error) {
	idx, err := cachedGet[index](ctx, s, keyIndex)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return index{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make(index, len(*idx))
	for id, entry := range *idx {
		out[id] = entry
	}
	return out, nil
}
