// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// setupHub starts a hub for testing and returns it with its cancel func.
func setupHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.RunWithContext(ctx) }()
	time.Sleep(10 * time.Millisecond)
	return hub, cancel
}

// createTestClient creates a client without a live connection.
func createTestClient(hub *Hub, key string) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		key:  key,
		hub:  hub,
		conn: nil,
		send: make(chan Message, 256),
	}
}

// registerClient registers a client and waits for registration to complete.
func registerClient(hub *Hub, client *Client) {
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func testSnapshot(key string) *models.RecommendationSnapshot {
	return &models.RecommendationSnapshot{
		Key:       key,
		ItemIDs:   []int64{101, 42, 7},
		CreatedAt: time.Now().UTC(),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	checks := []struct {
		name   string
		check  bool
		errMsg string
	}{
		{"clients map", hub.clients != nil, "clients map not initialized"},
		{"broadcast channel", hub.broadcast != nil, "broadcast channel not initialized"},
		{"Register channel", hub.Register != nil, "Register channel not initialized"},
		{"Unregister channel", hub.Unregister != nil, "Unregister channel not initialized"},
		{"empty clients", len(hub.clients) == 0, "clients map should be empty"},
	}

	for _, c := range checks {
		if !c.check {
			t.Error(c.errMsg)
		}
	}
}

func TestHub_GetClientCount(t *testing.T) {
	hub := NewHub()

	if hub.GetClientCount() != 0 {
		t.Errorf("Expected 0 clients initially, got %d", hub.GetClientCount())
	}

	for i := 0; i < 5; i++ {
		hub.clients[createTestClient(hub, "session-1")] = true
	}

	if hub.GetClientCount() != 5 {
		t.Errorf("Expected 5 clients, got %d", hub.GetClientCount())
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	client := createTestClient(hub, "session-1")
	registerClient(hub, client)

	if hub.GetClientCount() != 1 {
		t.Fatalf("Expected 1 client after register, got %d", hub.GetClientCount())
	}

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	if hub.GetClientCount() != 0 {
		t.Errorf("Expected 0 clients after unregister, got %d", hub.GetClientCount())
	}

	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed after unregister")
	}
}

func TestHub_BroadcastSnapshotUpdate_KeyFiltering(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	matching := createTestClient(hub, "session-1")
	other := createTestClient(hub, "session-2")
	observer := createTestClient(hub, "")
	registerClient(hub, matching)
	registerClient(hub, other)
	registerClient(hub, observer)

	hub.BroadcastSnapshotUpdate("session-1", testSnapshot("session-1"))
	time.Sleep(50 * time.Millisecond)

	select {
	case msg := <-matching.send:
		if msg.Type != MessageTypeUpdate {
			t.Errorf("matching client got type %q, want %q", msg.Type, MessageTypeUpdate)
		}
		if msg.Key != "session-1" {
			t.Errorf("matching client got key %q, want session-1", msg.Key)
		}
	default:
		t.Error("matching client received no update")
	}

	select {
	case msg := <-other.send:
		t.Errorf("client for session-2 received update for key %q", msg.Key)
	default:
	}

	select {
	case msg := <-observer.send:
		if msg.Key != "session-1" {
			t.Errorf("observer got key %q, want session-1", msg.Key)
		}
	default:
		t.Error("empty-key observer received no update")
	}
}

func TestHub_BroadcastRemovesSlowClient(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	client := createTestClient(hub, "session-1")
	client.send = make(chan Message) // unbuffered, nothing reads it
	registerClient(hub, client)

	hub.BroadcastSnapshotUpdate("session-1", testSnapshot("session-1"))
	time.Sleep(50 * time.Millisecond)

	if hub.GetClientCount() != 0 {
		t.Errorf("slow client should be removed, got %d clients", hub.GetClientCount())
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, cancel := setupHub(t)

	clients := []*Client{
		createTestClient(hub, "session-1"),
		createTestClient(hub, "session-2"),
	}
	for _, c := range clients {
		registerClient(hub, c)
	}

	cancel()
	time.Sleep(50 * time.Millisecond)

	if hub.GetClientCount() != 0 {
		t.Errorf("Expected 0 clients after shutdown, got %d", hub.GetClientCount())
	}
	for i, c := range clients {
		select {
		case _, ok := <-c.send:
			if ok {
				t.Errorf("client %d send channel delivered instead of closing", i)
			}
		default:
			t.Errorf("client %d send channel not closed", i)
		}
	}
}

func TestHub_RunWithContextReturnsContextError(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunWithContext did not return after cancellation")
	}
}

func TestClient_SendSnapshot(t *testing.T) {
	hub := NewHub()
	client := createTestClient(hub, "user:9")

	client.SendSnapshot(testSnapshot("user:9"))

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeSnapshot {
			t.Errorf("initial message type = %q, want %q", msg.Type, MessageTypeSnapshot)
		}
		if msg.Key != "user:9" {
			t.Errorf("initial message key = %q, want user:9", msg.Key)
		}
	default:
		t.Fatal("SendSnapshot queued nothing")
	}
}
