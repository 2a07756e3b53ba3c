package store

import (
	"context"
	"errors"

	"github.com/kestrelhq/expensed/internal/domain"
	"github.com/kestrelhq/expensed/internal/storage"
)

// GetPreferences returns the stored preferences, or the defaults when the
// user has never written any.
func (s *Store) GetPreferences(ctx context.Context) (domain.Preferences, error) {
	prefs, err := cachedGet[domain.Preferences](ctx, s, keyPreferences)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return domain.DefaultPreferences(), nil
	}
	if err != nil {
		return domain.Preferences{}, err
	}
	return *prefs, nil
}

// UpdatePreferences applies mutate to the current preferences and persists
// the result.
func (s *Store) UpdatePreferences(ctx context.Context, mutate func(*domain.Preferences) error) (domain.Preferences, error) {
	var out domain.Preferences
	err := s.transaction(ctx, func(t *tx) error {
		prefs := domain.DefaultPreferences()
		if _, err := t.get(keyPreferences, &prefs); err != nil {
			return err
		}
		if err := mutate(&prefs); err != nil {
			return err
		}
		out = prefs
		return t.put(keyPreferences, prefs)
	})
	if err != nil {
		return domain.Preferences{}, err
	}
	return out, nil
}
