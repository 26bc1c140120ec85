// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

//go:build !nats

package feed

import "errors"

// NATSConfig holds the NATS change feed transport configuration.
// The fields are only used when building with -tags=nats.
type NATSConfig struct {
	URL            string
	EmbeddedServer bool
	EmbeddedPort   int
}

// NewNATS is unavailable in this build. Rebuild with -tags=nats to enable
// the shared NATS change feed transport.
func NewNATS(_ NATSConfig) (Broadcaster, error) {
	return nil, errors.New("nats change feed not available: rebuild with -tags=nats")
}
