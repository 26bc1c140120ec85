// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package recommend

import (
	"context"
	"sort"
	"time"

	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/recerr"
)

const (
	// TrendingWindowDays is how far back the trending scan reaches.
	TrendingWindowDays = 30

	// TrendingLimit is the length of the trending list.
	TrendingLimit = 10

	// dwellWeight scales average dwell seconds into the trending score.
	dwellWeight = 0.02

	trendingCacheKey = "trending"
	trendingCacheTTL = 5 * time.Minute
)

// Trending returns the cached trending list, computing it on miss.
func (s *Service) Trending(ctx context.Context) ([]models.TrendingItem, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(trendingCacheKey); ok {
			metrics.RecordCacheAccess("trending", true)
			return v.([]models.TrendingItem), nil
		}
		metrics.RecordCacheAccess("trending", false)
	}

	items, err := s.ComputeTrending(ctx, TrendingWindowDays, TrendingLimit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetWithTTL(trendingCacheKey, items, trendingCacheTTL)
	}
	return items, nil
}

// ComputeTrending scans view events inside the window and ranks items by
// view count plus dwell signal: views + 0.02 * avgDwell. Ties break by
// ascending item ID so the list is deterministic. Read-only.
func (s *Service) ComputeTrending(ctx context.Context, windowDays, limit int) ([]models.TrendingItem, error) {
	type agg struct {
		views      int
		dwellSum   float64
		dwellCount int
	}

	since := s.now().AddDate(0, 0, -windowDays).UnixNano()
	byItem := make(map[int64]*agg)

	err := s.store.ScanFeedbackSince(ctx, since, func(ev *models.FeedbackEvent) error {
		if ev.EventType != models.EventViewDetail {
			return nil
		}
		a := byItem[ev.ItemID]
		if a == nil {
			a = &agg{}
			byItem[ev.ItemID] = a
		}
		a.views++
		if dwell := ev.Metadata.GetFloat("dwell_seconds", -1); dwell >= 0 {
			a.dwellSum += dwell
			a.dwellCount++
		}
		return nil
	})
	if err != nil {
		return nil, recerr.Wrap(recerr.KindInternal, err)
	}

	items := make([]models.TrendingItem, 0, len(byItem))
	for itemID, a := range byItem {
		avgDwell := 0.0
		if a.dwellCount > 0 {
			avgDwell = a.dwellSum / float64(a.dwellCount)
		}
		items = append(items, models.TrendingItem{
			ItemID:   itemID,
			Views:    a.views,
			AvgDwell: avgDwell,
			Score:    float64(a.views) + dwellWeight*avgDwell,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ItemID < items[j].ItemID
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
