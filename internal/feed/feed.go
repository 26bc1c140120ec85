// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package feed implements the recommendation change feed: every snapshot
// write is published once, and delivery paths (WebSocket subscription,
// bounded-wait poll) attach their own per-key filters. The default transport
// is Watermill's in-process gochannel pub/sub; a NATS transport is available
// behind the nats build tag for multi-process deployments.
package feed

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/shelfwise/shelfwise/internal/models"
)

// TopicSnapshotUpdated carries every recommendation snapshot write.
const TopicSnapshotUpdated = "recommendations.updated"

// metadataKey is the message metadata field holding the identity key, so
// subscribers can filter without unmarshaling the payload.
const metadataKey = "key"

// SnapshotUpdate is one change feed event: an identity key and its newly
// written snapshot.
type SnapshotUpdate struct {
	Key      string                          `json:"key"`
	Snapshot *models.RecommendationSnapshot `json:"snapshot"`
}

// Broadcaster is the change feed contract shared by the in-process and NATS
// transports.
type Broadcaster interface {
	// Publish emits one snapshot update to all subscribers.
	Publish(ctx context.Context, update SnapshotUpdate) error

	// Subscribe delivers every update until ctx is canceled. The returned
	// channel is closed on cancellation.
	Subscribe(ctx context.Context) (<-chan SnapshotUpdate, error)

	// SubscribeKey delivers only updates matching the identity key.
	SubscribeKey(ctx context.Context, key string) (<-chan SnapshotUpdate, error)

	Close() error
}

// Feed is the in-process Broadcaster backed by Watermill's gochannel
// pub/sub.
type Feed struct {
	pubsub *gochannel.GoChannel
}

// New creates an in-process change feed.
func New() *Feed {
	return &Feed{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, NewWatermillLogger()),
	}
}

// Publish emits a snapshot update. Slow subscribers buffer up to the channel
// size; the publisher never blocks indefinitely on a dead subscriber because
// gochannel drops subscribers whose context is gone.
func (f *Feed) Publish(ctx context.Context, update SnapshotUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal snapshot update: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(metadataKey, update.Key)

	if err := f.pubsub.Publish(TopicSnapshotUpdated, msg); err != nil {
		return fmt.Errorf("publish snapshot update: %w", err)
	}
	return nil
}

// Subscribe delivers every snapshot update until ctx is canceled.
func (f *Feed) Subscribe(ctx context.Context) (<-chan SnapshotUpdate, error) {
	return f.subscribe(ctx, "")
}

// SubscribeKey delivers snapshot updates for one identity key until ctx is
// canceled. Filtering happens subscriber-side per the delivery design: the
// feed stays a single shared broadcast source.
func (f *Feed) SubscribeKey(ctx context.Context, key string) (<-chan SnapshotUpdate, error) {
	return f.subscribe(ctx, key)
}

func (f *Feed) subscribe(ctx context.Context, key string) (<-chan SnapshotUpdate, error) {
	msgs, err := f.pubsub.Subscribe(ctx, TopicSnapshotUpdated)
	if err != nil {
		return nil, fmt.Errorf("subscribe to change feed: %w", err)
	}

	out := make(chan SnapshotUpdate, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			update, err := decodeUpdate(msg, key)
			msg.Ack()
			if err != nil || update == nil {
				continue
			}

			select {
			case out <- *update:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// decodeUpdate unmarshals a feed message, returning nil when the optional
// key filter does not match.
func decodeUpdate(msg *message.Message, key string) (*SnapshotUpdate, error) {
	if key != "" && msg.Metadata.Get(metadataKey) != key {
		return nil, nil
	}

	var update SnapshotUpdate
	if err := json.Unmarshal(msg.Payload, &update); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot update: %w", err)
	}
	return &update, nil
}

// Close shuts the feed down; all subscriber channels are closed.
func (f *Feed) Close() error {
	return f.pubsub.Close()
}
