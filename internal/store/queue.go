package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kestrelhq/expensed/internal/domain"
	"github.com/kestrelhq/expensed/internal/storage"
)

// queue is the persisted scheduling queue, ordered by scheduledFor. It
// holds exactly one entry per actively scheduled template.
type queue []domain.QueueEntry

func (t *tx) loadQueue() (queue, error) {
	q := queue{}
	if _, err := t.get(keyQueue, &q); err != nil {
		return nil, err
	}
	return q, nil
}

func (q queue) without(id string) queue {
	out := make(queue, 0, len(q))
	for _, entry := range q {
		if entry.TemplateID != id {
			out = append(out, entry)
		}
	}
	return out
}

func (q queue) sorted() queue {
	sort.SliceStable(q, func(i, j int) bool {
		return q[i].ScheduledFor.Before(q[j].ScheduledFor)
	})
	return q
}

// UpdateScheduling replaces a template's schedule in one transaction:
// template written, index entry rebuilt, old queue entry removed, and a
// fresh pending entry inserted when the schedule is active with a next
// execution. A nil schedule removes scheduling entirely.
func (s *Store) UpdateScheduling(ctx context.Context, id string, sched *domain.Schedule) (*domain.Template, error) {
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

		tmpl.Scheduling = sched.Clone()
		tmpl.UpdatedAt = time.Now().UTC()

		idx, err := t.loadIndex()
		if err != nil {
			return err
		}
		idx[id] = tmpl.IndexEntry()

		q, err := t.loadQueue()
		if err != nil {
			return err
		}
		q = q.without(id)
		if tmpl.ActivelyScheduled() {
			q = append(q, domain.QueueEntry{
				TemplateID:   id,
				ScheduledFor: *tmpl.Scheduling.NextExecution,
				Status:       domain.QueuePending,
			})
		}

		if err := t.put(templateKey(id), &tmpl); err != nil {
			return err
		}
		if err := t.put(keyIndex, idx); err != nil {
			return err
		}
		if err := t.put(keyQueue, q.sorted()); err != nil {
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

// GetQueue returns the scheduling queue ordered by scheduledFor.
func (s *Store) GetQueue(ctx context.Context) ([]domain.QueueEntry, error) {
	q, err := cachedGet[queue](ctx, s, keyQueue)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return []domain.QueueEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]domain.QueueEntry, len(*q))
	copy(out, *q)
	return out, nil
}

// MarkQueueEntry updates the status of a template's queue entry, bumping
// the attempt counter when the status is failed. Missing entries are
// ignored: the queue may legitimately have been rebuilt concurrently.
func (s *Store) MarkQueueEntry(ctx context.Context, id string, status domain.QueueStatus) error {
	return s.transaction(ctx, func(t *tx) error {
		q, err := t.loadQueue()
		if err != nil {
			return err
		}
		changed := false
		for i := range q {
			if q[i].TemplateID == id {
				q[i].Status = status
				if status == domain.QueueFailed {
					q[i].Attempts++
				}
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return t.put(keyQueue, q)
	})
}
