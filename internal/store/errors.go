// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package store

import "errors"

// Sentinel errors returned by store operations.
var (
	// ErrImpressionExists indicates an insert with an impression ID that
	// was already logged. Impressions are never overwritten.
	ErrImpressionExists = errors.New("impression already exists")

	// ErrImpressionNotFound indicates a lookup for an impression that was
	// never logged.
	ErrImpressionNotFound = errors.New("impression not found")

	// ErrProfileNotFound indicates a lookup for an identity key with no
	// accumulated profile.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrSnapshotNotFound indicates a lookup for an identity key with no
	// recommendation snapshot.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
