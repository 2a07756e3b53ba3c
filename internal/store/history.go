package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelhq/expensed/internal/domain"
	"github.com/kestrelhq/expensed/internal/storage"
)

// AppendExecution inserts a record at the head of the template's history,
// truncates to the history cap, and updates the template's usage
// bookkeeping, all in one transaction. Successful scheduled executions
// bump the scheduled-use counter; any success refreshes lastUsed.
func (s *Store) AppendExecution(ctx context.Context, id string, rec domain.ExecutionRecord) error {
	return s.transaction(ctx, func(t *tx) error {
		var tmpl domain.Template
		found, err := t.get(templateKey(id), &tmpl)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, id)
		}

		history := []domain.ExecutionRecord{}
		if _, err := t.get(historyKey(id), &history); err != nil {
			return err
		}

		history = append([]domain.ExecutionRecord{rec}, history...)
		if len(history) > s.limits.MaxHistory {
			history = history[:s.limits.MaxHistory]
		}

		if rec.Status == domain.ExecutionSuccess {
			executedAt := rec.ExecutedAt
			tmpl.Metadata.LastUsed = &executedAt
			if rec.Type == domain.ExecutionScheduled {
				tmpl.Metadata.ScheduledUseCount++
			}
		}
		tmpl.UpdatedAt = time.Now().UTC()

		idx, err := t.loadIndex()
		if err != nil {
			return err
		}
		idx[id] = tmpl.IndexEntry()

		if err := t.put(templateKey(id), &tmpl); err != nil {
			return err
		}
		if err := t.put(keyIndex, idx); err != nil {
			return err
		}
		return t.put(historyKey(id), history)
	})
}

// GetHistory returns the execution history, newest first.
func (s *Store) GetHistory(ctx context.Context, id string) ([]domain.ExecutionRecord, error) {
	history, err := cachedGet[[]domain.ExecutionRecord](ctx, s, historyKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	out := make([]domain.ExecutionRecord, len(*history))
	copy(out, *history)
	return out, nil
}

// PruneHistory drops execution records older than cutoff across all
// templates and reports how many were removed.
func (s *Store) PruneHistory(ctx context.Context, cutoff time.Time) (int, error) {
	records, err := s.backend.List(ctx, historyPrefix)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	removed := 0
	for _, rec := range records {
		id := strings.TrimPrefix(rec.Key, historyPrefix)
		dropped := 0
		err := s.transaction(ctx, func(t *tx) error {
			dropped = 0
			history := []domain.ExecutionRecord{}
			found, err := t.get(historyKey(id), &history)
			if err != nil || !found {
				return err
			}

			kept := make([]domain.ExecutionRecord, 0, len(history))
			for _, entry := range history {
				if entry.ExecutedAt.Before(cutoff) {
					dropped++
					continue
				}
				kept = append(kept, entry)
			}
			if dropped == 0 {
				return nil
			}
			return t.put(historyKey(id), kept)
		})
		if err != nil {
			return removed, err
		}
		removed += dropped
	}
	return removed, nil
}
