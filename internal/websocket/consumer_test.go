// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shelfwise/shelfwise/internal/feed"
)

func TestFeedConsumer_ForwardsUpdates(t *testing.T) {
	hub, cancelHub := setupHub(t)
	defer cancelHub()

	f := feed.New()
	defer f.Close()

	consumer := NewFeedConsumer(f, hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = consumer.Serve(ctx) }()
	time.Sleep(20 * time.Millisecond)

	client := createTestClient(hub, "session-1")
	registerClient(hub, client)

	snap := testSnapshot("session-1")
	if err := f.Publish(ctx, feed.SnapshotUpdate{Key: "session-1", Snapshot: snap}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeUpdate {
			t.Errorf("message type = %q, want %q", msg.Type, MessageTypeUpdate)
		}
		if msg.Key != "session-1" {
			t.Errorf("message key = %q, want session-1", msg.Key)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("feed consumer never forwarded the update")
	}
}

func TestFeedConsumer_StopsOnCancel(t *testing.T) {
	hub, cancelHub := setupHub(t)
	defer cancelHub()

	f := feed.New()
	defer f.Close()

	consumer := NewFeedConsumer(f, hub)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- consumer.Serve(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
