// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package websocket

import (
	"context"

	"github.com/shelfwise/shelfwise/internal/feed"
	"github.com/shelfwise/shelfwise/internal/logging"
)

// FeedConsumer bridges the change feed to the hub: every published snapshot
// update becomes a keyed websocket broadcast. It runs as a supervised
// service so a feed hiccup triggers a clean resubscribe instead of a silent
// dead stream.
type FeedConsumer struct {
	feed feed.Broadcaster
	hub  *Hub
}

// NewFeedConsumer creates a consumer wiring the change feed into the hub.
func NewFeedConsumer(f feed.Broadcaster, hub *Hub) *FeedConsumer {
	return &FeedConsumer{feed: f, hub: hub}
}

// Serve implements suture.Service. It subscribes to the change feed and
// forwards updates until ctx is canceled.
func (c *FeedConsumer) Serve(ctx context.Context) error {
	updates, err := c.feed.Subscribe(ctx)
	if err != nil {
		return err
	}

	logging.Info().Str("component", "websocket-feed-consumer").Msg("change feed consumer started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().
				Str("component", "websocket-feed-consumer").
				Msg("change feed consumer stopped")
			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				// Channel closed without cancellation: let the supervisor
				// restart us with a fresh subscription.
				return ctx.Err()
			}
			c.hub.BroadcastSnapshotUpdate(update.Key, update.Snapshot)
		}
	}
}

func (c *FeedConsumer) String() string {
	return "websocket-feed-consumer"
}
