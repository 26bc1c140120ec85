// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package store

import (
	"hash/fnv"
	"sync"
)

// lockStripes is the number of mutex stripes for per-key serialization.
// Two keys hashing to the same stripe serialize unnecessarily, which is
// harmless; more stripes only cost memory.
const lockStripes = 64

// keyLocks provides striped per-key mutual exclusion for profile and
// snapshot writes.
type keyLocks struct {
	stripes [lockStripes]sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{}
}

func (l *keyLocks) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.stripes[h.Sum32()%lockStripes]
}

func (l *keyLocks) lock(key string) {
	l.stripe(key).Lock()
}

func (l *keyLocks) unlock(key string) {
	l.stripe(key).Unlock()
}
