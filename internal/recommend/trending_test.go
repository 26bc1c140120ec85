// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/store"
)

func seedView(t *testing.T, st *store.Store, itemID int64, occurredAt time.Time, dwell float64) {
	t.Helper()

	ev := &models.FeedbackEvent{
		ImpressionID: "imp-seed",
		SessionID:    "sess-seed",
		ItemID:       itemID,
		EventType:    models.EventViewDetail,
		OccurredAt:   occurredAt,
	}
	if dwell > 0 {
		ev.Metadata = models.Attrs{"dwell_seconds": models.Float(dwell)}
	}
	if err := st.AppendFeedback(context.Background(), ev); err != nil {
		t.Fatalf("AppendFeedback() error = %v", err)
	}
}

func TestComputeTrending(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	// Item 1: three views. Item 2: two views with heavy dwell. Item 3: one
	// view outside the window, invisible.
	for i := 0; i < 3; i++ {
		seedView(t, st, 1, now.Add(-time.Duration(i)*time.Hour), 0)
	}
	seedView(t, st, 2, now.Add(-time.Hour), 100)
	seedView(t, st, 2, now.Add(-2*time.Hour), 100)
	seedView(t, st, 3, now.AddDate(0, 0, -40), 0)

	items, err := svc.ComputeTrending(ctx, TrendingWindowDays, TrendingLimit)
	if err != nil {
		t.Fatalf("ComputeTrending() error = %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("trending = %+v, want 2 items", items)
	}

	// Item 2: 2 views + 0.02*100 = 4.0 beats item 1's 3 views.
	if items[0].ItemID != 2 {
		t.Errorf("top item = %d, want 2", items[0].ItemID)
	}
	if items[0].Score != 4.0 {
		t.Errorf("top score = %v, want 4.0", items[0].Score)
	}
	if items[1].ItemID != 1 || items[1].Views != 3 {
		t.Errorf("second item = %+v, want item 1 with 3 views", items[1])
	}
}

func TestComputeTrending_IgnoresNonViewEvents(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	ev := &models.FeedbackEvent{
		ImpressionID: "imp-seed",
		SessionID:    "sess-seed",
		ItemID:       5,
		EventType:    models.EventPurchase,
		OccurredAt:   now,
	}
	if err := st.AppendFeedback(ctx, ev); err != nil {
		t.Fatalf("AppendFeedback() error = %v", err)
	}

	items, err := svc.ComputeTrending(ctx, TrendingWindowDays, TrendingLimit)
	if err != nil {
		t.Fatalf("ComputeTrending() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("trending = %+v, want empty for purchase-only history", items)
	}
}

func TestComputeTrending_TieBreaksByItemID(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	seedView(t, st, 9, now.Add(-time.Hour), 0)
	seedView(t, st, 4, now.Add(-2*time.Hour), 0)
	seedView(t, st, 7, now.Add(-3*time.Hour), 0)

	items, err := svc.ComputeTrending(ctx, TrendingWindowDays, TrendingLimit)
	if err != nil {
		t.Fatalf("ComputeTrending() error = %v", err)
	}

	want := []int64{4, 7, 9}
	if len(items) != len(want) {
		t.Fatalf("trending = %+v, want %d items", items, len(want))
	}
	for i, id := range want {
		if items[i].ItemID != id {
			t.Errorf("items[%d] = %d, want %d", i, items[i].ItemID, id)
		}
	}
}

func TestComputeTrending_Limit(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	for itemID := int64(1); itemID <= 15; itemID++ {
		seedView(t, st, itemID, now.Add(-time.Duration(itemID)*time.Minute), 0)
	}

	items, err := svc.ComputeTrending(ctx, TrendingWindowDays, TrendingLimit)
	if err != nil {
		t.Fatalf("ComputeTrending() error = %v", err)
	}
	if len(items) != TrendingLimit {
		t.Errorf("trending length = %d, want %d", len(items), TrendingLimit)
	}
}

func TestTrending_CachesResult(t *testing.T) {
	t.Parallel()

	svc, st, _ := newTestService(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	seedView(t, st, 1, now.Add(-time.Hour), 0)

	first, err := svc.Trending(ctx)
	if err != nil {
		t.Fatalf("Trending() error = %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("trending = %+v, want 1 item", first)
	}

	// A new view landing after the cache fill is invisible until expiry.
	seedView(t, st, 2, now, 0)

	second, err := svc.Trending(ctx)
	if err != nil {
		t.Fatalf("Trending() error = %v", err)
	}
	if len(second) != 1 {
		t.Errorf("cached trending = %+v, want the original single item", second)
	}
}
