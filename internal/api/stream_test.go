// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gws "github.com/gorilla/websocket"

	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/websocket"
)

// streamFrame mirrors the wire shape of hub messages. Data stays raw so a
// null payload is distinguishable from a missing one.
type streamFrame struct {
	Type string          `json:"type"`
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

func newStreamServer(t *testing.T, rec RecommendService) (*httptest.Server, *websocket.Hub) {
	t.Helper()

	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.RunWithContext(ctx)
	}()

	sh := NewStreamHandler(hub, rec, "", nil)
	srv := httptest.NewServer(http.HandlerFunc(sh.Stream))

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv, hub
}

func dialStream(t *testing.T, srv *httptest.Server, query string) *gws.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, resp, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *gws.Conn) streamFrame {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline() error = %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var frame streamFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame %s: %v", raw, err)
	}
	return frame
}

func TestStream_ColdKeyGetsNullSnapshotFirst(t *testing.T) {
	t.Parallel()

	srv, hub := newStreamServer(t, &fakeRecommend{})
	conn := dialStream(t, srv, "sessionId=sess-cold")

	frame := readFrame(t, conn)
	if frame.Type != websocket.MessageTypeSnapshot {
		t.Fatalf("first frame type = %q, want snapshot", frame.Type)
	}
	if frame.Key != "sess-cold" {
		t.Errorf("first frame key = %q, want sess-cold", frame.Key)
	}
	if string(frame.Data) != "null" {
		t.Errorf("first frame data = %s, want null for a cold key", frame.Data)
	}

	// An update after the snapshot reaches the subscriber.
	hub.BroadcastSnapshotUpdate("sess-cold", &models.RecommendationSnapshot{
		Key:     "sess-cold",
		ItemIDs: []int64{10, 20},
	})

	frame = readFrame(t, conn)
	if frame.Type != websocket.MessageTypeUpdate {
		t.Fatalf("second frame type = %q, want update", frame.Type)
	}
	var snap models.RecommendationSnapshot
	if err := json.Unmarshal(frame.Data, &snap); err != nil {
		t.Fatalf("unmarshal update data: %v", err)
	}
	if len(snap.ItemIDs) != 2 || snap.ItemIDs[0] != 10 {
		t.Errorf("update items = %v, want [10 20]", snap.ItemIDs)
	}
}

func TestStream_WarmKeyGetsSnapshotThenUpdate(t *testing.T) {
	t.Parallel()

	rec := &fakeRecommend{snapshot: &models.RecommendationSnapshot{
		Key:     "user:7",
		ItemIDs: []int64{1, 2, 3},
	}}
	srv, hub := newStreamServer(t, rec)
	conn := dialStream(t, srv, "userId=7")

	frame := readFrame(t, conn)
	if frame.Type != websocket.MessageTypeSnapshot {
		t.Fatalf("first frame type = %q, want snapshot", frame.Type)
	}
	var snap models.RecommendationSnapshot
	if err := json.Unmarshal(frame.Data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot data: %v", err)
	}
	if len(snap.ItemIDs) != 3 {
		t.Errorf("snapshot items = %v, want 3 entries", snap.ItemIDs)
	}

	hub.BroadcastSnapshotUpdate("user:7", &models.RecommendationSnapshot{
		Key:     "user:7",
		ItemIDs: []int64{4},
	})

	frame = readFrame(t, conn)
	if frame.Type != websocket.MessageTypeUpdate {
		t.Fatalf("second frame type = %q, want update", frame.Type)
	}
}

func TestStream_SnapshotLoadFailureStillSendsFirstFrame(t *testing.T) {
	t.Parallel()

	rec := &fakeRecommend{err: context.DeadlineExceeded}
	srv, _ := newStreamServer(t, rec)
	conn := dialStream(t, srv, "sessionId=sess-err")

	frame := readFrame(t, conn)
	if frame.Type != websocket.MessageTypeSnapshot {
		t.Fatalf("first frame type = %q, want snapshot despite load failure", frame.Type)
	}
	if string(frame.Data) != "null" {
		t.Errorf("first frame data = %s, want null", frame.Data)
	}
}

func TestStream_RequiresIdentity(t *testing.T) {
	t.Parallel()

	srv, _ := newStreamServer(t, &fakeRecommend{})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, resp, err := gws.DefaultDialer.Dial(url, nil)
	if err == nil {
		_ = conn.Close()
		t.Fatal("Dial() succeeded, want handshake rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("handshake response = %+v, want 400", resp)
	}
	_ = resp.Body.Close()
}
