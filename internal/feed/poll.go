// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package feed

import (
	"context"
	"time"

	"github.com/shelfwise/shelfwise/internal/models"
)

// DefaultPollCeiling bounds how long a poll request may block.
const DefaultPollCeiling = 25 * time.Second

// SnapshotSource reads the current snapshot for a key. A missing snapshot
// is (nil, nil), not an error.
type SnapshotSource interface {
	CurrentSnapshot(ctx context.Context, key string) (*models.RecommendationSnapshot, error)
}

// PollResult is the outcome of a bounded wait. TimedOut set with the prior
// snapshot is a defined, non-exceptional outcome.
type PollResult struct {
	Snapshot *models.RecommendationSnapshot `json:"data"`
	TimedOut bool                           `json:"timed_out,omitempty"`
}

// Waiter implements bounded-wait (long poll) delivery over the change feed.
// Each waiter call parks on a channel select, not a dedicated thread; any
// number of concurrent waiters is fine.
type Waiter struct {
	feed      Broadcaster
	snapshots SnapshotSource
	ceiling   time.Duration
}

// NewWaiter creates a poll waiter with the default 25 second ceiling.
func NewWaiter(feed Broadcaster, snapshots SnapshotSource) *Waiter {
	return &Waiter{
		feed:      feed,
		snapshots: snapshots,
		ceiling:   DefaultPollCeiling,
	}
}

// NewWaiterWithCeiling creates a poll waiter with a custom ceiling.
// Used by tests to avoid 25 second sleeps.
func NewWaiterWithCeiling(feed Broadcaster, snapshots SnapshotSource, ceiling time.Duration) *Waiter {
	w := NewWaiter(feed, snapshots)
	w.ceiling = ceiling
	return w
}

// Wait returns the current snapshot immediately when it is newer than
// since (or since is zero). Otherwise it blocks until a write for the key
// arrives, the ceiling elapses (TimedOut with the prior snapshot), or ctx is
// canceled. All paths release the feed subscription and timer.
func (w *Waiter) Wait(ctx context.Context, key string, since time.Time) (*PollResult, error) {
	// Subscribe before the freshness check so a write landing between
	// check and subscribe is not missed.
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := w.feed.SubscribeKey(subCtx, key)
	if err != nil {
		return nil, err
	}

	current, err := w.snapshots.CurrentSnapshot(ctx, key)
	if err != nil {
		return nil, err
	}

	if since.IsZero() || (current != nil && current.CreatedAt.After(since)) {
		return &PollResult{Snapshot: current}, nil
	}

	timer := time.NewTimer(w.ceiling)
	defer timer.Stop()

	select {
	case update, ok := <-updates:
		if !ok {
			return nil, ctx.Err()
		}
		return &PollResult{Snapshot: update.Snapshot}, nil

	case <-timer.C:
		return &PollResult{Snapshot: current, TimedOut: true}, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
