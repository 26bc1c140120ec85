// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package api

import (
	"net/http"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/websocket"
)

// StreamHandler upgrades realtime delivery connections and hands them to the
// hub. Each connection is keyed to the caller's identity; the current
// snapshot goes out first, updates follow as profiles change.
type StreamHandler struct {
	hub            *websocket.Hub
	recommend      RecommendService
	identity       *identityResolver
	allowedOrigins []string
}

// NewStreamHandler creates the stream handler. allowedOrigins follows the
// CORS origin list; "*" allows any origin.
func NewStreamHandler(hub *websocket.Hub, rec RecommendService, jwtSecret string, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		hub:            hub,
		recommend:      rec,
		identity:       &identityResolver{jwtSecret: jwtSecret},
		allowedOrigins: allowedOrigins,
	}
}

func (sh *StreamHandler) upgrader() gws.Upgrader {
	return gws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      sh.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkOrigin validates the Origin header against the allowed origin list.
// Browser WebSockets always send Origin; an absent header means a
// non-browser client, which is allowed since the stream carries only the
// caller's own recommendations.
func (sh *StreamHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range sh.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", origin).Msg("websocket connection rejected: origin not allowed")
	return false
}

// Stream handles GET /stream. The identity key must resolve; anonymous
// realtime delivery has nothing to subscribe to.
func (sh *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := sh.identity.Resolve(r)
	if id.Empty() {
		NewResponseWriter(w, r).BadRequest("sessionId or userId is required")
		return
	}
	key := id.Key()

	upgrader := sh.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(sh.hub, conn, key)
	sh.hub.Register <- client
	client.Start()

	// Initial snapshot after the pumps start so the write path is live.
	// The first frame is always a snapshot, with null data when the key
	// has no profile yet, so clients can tell "connected, nothing cached"
	// from a stalled stream.
	snapshot, err := sh.recommend.CurrentSnapshot(r.Context(), key)
	if err != nil {
		logging.CtxWarn(r.Context()).Err(err).Str("key", key).Msg("initial snapshot load failed")
	}
	client.SendSnapshot(snapshot)
}
