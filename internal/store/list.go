package store

import (
	"context"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/kestrelhq/expensed/internal/domain"
)

// List returns a page of templates from the metadata index. Filtering
// applies before sorting, pagination after, so Total counts every match.
func (s *Store) List(ctx context.Context, opts domain.ListOptions) (*domain.ListResult, error) {
	opts = opts.Normalize()

	idx, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}

	entries := lo.Filter(lo.Values(idx), func(e domain.MetadataEntry, _ int) bool {
		return matchesFilter(e, opts.Filter)
	})
	sortEntries(entries, opts.SortBy, opts.SortOrder)

	total := len(entries)
	start := (opts.Page - 1) * opts.Limit
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	page := entries[start:end]

	items := make([]domain.ListItem, 0, len(page))
	for _, entry := range page {
		item := domain.ListItem{MetadataEntry: entry}
		if opts.IncludeData {
			tmpl, err := s.Get(ctx, entry.ID)
			if err != nil {
				return nil, err
			}
			item.Template = tmpl
		}
		items = append(items, item)
	}

	return &domain.ListResult{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  end < total,
	}, nil
}

func matchesFilter(e domain.MetadataEntry, f domain.ListFilter) bool {
	if f.HasScheduling != nil && e.HasScheduling != *f.HasScheduling {
		return false
	}
	if f.Favorite != nil && e.Favorite != *f.Favorite {
		return false
	}
	if len(f.Tags) > 0 && !lo.Every(e.Tags, f.Tags) {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

func sortEntries(entries []domain.MetadataEntry, by domain.SortField, order domain.SortOrder) {
	less := func(a, b domain.MetadataEntry) bool {
		switch by {
		case domain.SortByCreatedAt:
			return a.CreatedAt.Before(b.CreatedAt)
		case domain.SortByName:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case domain.SortByUseCount:
			return a.UseCount < b.UseCount
		case domain.SortByLastUsed:
			// Never-used templates sort before any used one.
			if a.LastUsed == nil || b.LastUsed == nil {
				return a.LastUsed == nil && b.LastUsed != nil
			}
			return a.LastUsed.Before(*b.LastUsed)
		default:
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if order == domain.SortDesc {
			return less(entries[j], entries[i])
		}
		return less(entries[i], entries[j])
	})
}
