// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

/*
Package websocket delivers recommendation snapshots to connected clients in
real time.

Each client subscribes with an identity key (session or user). On connect it
receives a "snapshot" message carrying the current recommendation list, then
an "update" message every time a write lands for its key. The package uses
gorilla/websocket with a hub-client architecture.

Key Components:

  - Hub: central broker managing client connections and keyed broadcasts
  - Client: a single WebSocket connection with read/write goroutines
  - FeedConsumer: supervised bridge from the change feed into the hub
  - Message: typed message structure ("snapshot", "update", "ping", "pong")

Each client has two goroutines:
  - readPump: reads from the WebSocket, handles pings
  - writePump: writes to the WebSocket, sends keepalive pings

Connection Lifecycle:

 1. Client connects via HTTP upgrade with its identity key
 2. Hub registers the client
 3. Client receives the initial "snapshot" message
 4. Hub delivers "update" messages matching the client's key
 5. Client disconnects (network error or explicit close)
 6. Hub unregisters the client and cleans up

Thread Safety:

The hub guards its client map with a mutex; channels coordinate goroutine
communication; each client has separate read and write goroutines with no
shared mutable state between clients.

Timeouts:

  - writeWait: 10 seconds per message
  - pongWait: 60 seconds (dead connection detection)
  - pingPeriod: 54 seconds (must be under pongWait)
  - maxMessageSize: 512 KB

See Also:

  - github.com/gorilla/websocket: underlying WebSocket library
  - internal/feed: the change feed the FeedConsumer subscribes to
  - internal/api: the /stream endpoint handler
*/
package websocket
