// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package store persists the engine's facts and derived state in BadgerDB.
//
// Key layout:
//
//	imp:<impressionId>        Impression document
//	impref:<ref>              internal reference -> impressionId
//	fb:<nanos>:<uuid>         FeedbackEvent document, time-ordered
//	profile:<key>             Profile document
//	snap:<key>                RecommendationSnapshot document
//
// Impressions and feedback are append-only facts. Profiles and snapshots are
// derived caches; concurrent writers to the same key serialize through
// WithKeyLock.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/shelfwise/shelfwise/internal/logging"
)

// Key prefixes for BadgerDB storage.
const (
	impressionKeyPrefix    = "imp:"
	impressionRefKeyPrefix = "impref:"
	feedbackKeyPrefix      = "fb:"
	profileKeyPrefix       = "profile:"
	snapshotKeyPrefix      = "snap:"
)

// Config holds store configuration.
type Config struct {
	// Path is the BadgerDB data directory. Ignored when InMemory is set.
	Path string

	// InMemory runs Badger without disk persistence. Used by tests.
	InMemory bool

	// GCInterval is how often the value log garbage collector runs.
	// Default: 10m
	GCInterval time.Duration
}

// Store wraps a BadgerDB instance with the engine's document operations.
type Store struct {
	db    *badger.DB
	locks *keyLocks
	cfg   Config
}

// Open opens (or creates) the store at the configured path.
func Open(cfg Config) (*Store, error) {
	if cfg.GCInterval == 0 {
		cfg.GCInterval = 10 * time.Minute
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(badgerLogger{})
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", cfg.Path, err)
	}

	return &Store{
		db:    db,
		locks: newKeyLocks(),
		cfg:   cfg,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw Badger handle for advanced callers (tests, backup).
func (s *Store) DB() *badger.DB {
	return s.db
}

// WithKeyLock runs fn while holding the write lock for an identity key.
// Merge, replace, and any other profile/snapshot mutation for the same key
// must go through this to avoid lost updates. Locks are striped; unrelated
// keys rarely contend.
func (s *Store) WithKeyLock(key string, fn func() error) error {
	s.locks.lock(key)
	defer s.locks.unlock(key)
	return fn()
}

// RunGC runs Badger value log garbage collection until there is nothing
// left to collect.
func (s *Store) RunGC() {
	if s.cfg.InMemory {
		return
	}
	for {
		if err := s.db.RunValueLogGC(0.5); err != nil {
			return
		}
	}
}

// GCService runs the value log garbage collector on an interval.
// It implements suture.Service.
type GCService struct {
	store *Store
}

// NewGCService creates a garbage collection service for the store.
func NewGCService(store *Store) *GCService {
	return &GCService{store: store}
}

// Serve runs GC on the configured interval until the context is canceled.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.store.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.store.RunGC()
		}
	}
}

func (g *GCService) String() string { return "store-gc" }

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}
