// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package recommend

import (
	"context"
	"sort"
)

// CategoryCount is one entry of the recommended-categories list.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Categories serves the categories of the current recommendation list for a
// key, ranked by how often each category appears. Items the catalog cannot
// hydrate contribute nothing. Ties break alphabetically for determinism.
func (s *Service) Categories(ctx context.Context, key string, limit int) ([]CategoryCount, error) {
	result, err := s.Serve(ctx, key)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, item := range result.Items {
		if item.Book != nil && item.Book.Category != "" {
			counts[item.Book.Category]++
		}
	}

	categories := make([]CategoryCount, 0, len(counts))
	for category, count := range counts {
		categories = append(categories, CategoryCount{Category: category, Count: count})
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Count != categories[j].Count {
			return categories[i].Count > categories[j].Count
		}
		return categories[i].Category < categories[j].Category
	})

	if limit > 0 && len(categories) > limit {
		categories = categories[:limit]
	}
	return categories, nil
}
