// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package feed

import (
	"context"
	"testing"
	"time"

	"github.com/shelfwise/shelfwise/internal/models"
)

func recvUpdate(t *testing.T, ch <-chan SnapshotUpdate) SnapshotUpdate {
	t.Helper()
	select {
	case update, ok := <-ch:
		if !ok {
			t.Fatal("update channel closed before delivery")
		}
		return update
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot update")
	}
	return SnapshotUpdate{}
}

func TestFeedPublishSubscribe(t *testing.T) {
	t.Parallel()

	f := New()
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := f.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	want := SnapshotUpdate{
		Key: "session-1",
		Snapshot: &models.RecommendationSnapshot{
			Key:       "session-1",
			ItemIDs:   []int64{42, 7, 9},
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		},
	}
	if err := f.Publish(ctx, want); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got := recvUpdate(t, updates)
	if got.Key != want.Key {
		t.Errorf("update key = %q, want %q", got.Key, want.Key)
	}
	if got.Snapshot == nil {
		t.Fatal("update snapshot is nil")
	}
	if len(got.Snapshot.ItemIDs) != 3 || got.Snapshot.ItemIDs[0] != 42 {
		t.Errorf("snapshot items = %v, want %v", got.Snapshot.ItemIDs, want.Snapshot.ItemIDs)
	}
}

func TestFeedSubscribeKeyFilters(t *testing.T) {
	t.Parallel()

	f := New()
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := f.SubscribeKey(ctx, "user:7")
	if err != nil {
		t.Fatalf("SubscribeKey() error = %v", err)
	}

	for _, key := range []string{"session-other", "user:7"} {
		update := SnapshotUpdate{
			Key:      key,
			Snapshot: &models.RecommendationSnapshot{Key: key, ItemIDs: []int64{1}},
		}
		if err := f.Publish(ctx, update); err != nil {
			t.Fatalf("Publish(%q) error = %v", key, err)
		}
	}

	got := recvUpdate(t, updates)
	if got.Key != "user:7" {
		t.Errorf("filtered subscription delivered key %q, want %q", got.Key, "user:7")
	}

	select {
	case extra := <-updates:
		t.Errorf("unexpected extra update for key %q", extra.Key)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFeedSubscribeCancelClosesChannel(t *testing.T) {
	t.Parallel()

	f := New()
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())

	updates, err := f.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-updates:
		if ok {
			// A buffered update may still drain; the channel must close
			// right after.
			if _, ok := <-updates; ok {
				t.Error("update channel still open after cancellation")
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("update channel not closed after cancellation")
	}
}

func TestNewNATSWithoutBuildTag(t *testing.T) {
	t.Parallel()

	if _, err := NewNATS(NATSConfig{URL: "nats://127.0.0.1:4222"}); err == nil {
		t.Error("NewNATS() expected error in default build")
	}
}
