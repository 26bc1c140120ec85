// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/shelfwise/shelfwise/internal/models"
)

// GetProfile retrieves the accumulated score profile for an identity key.
func (s *Store) GetProfile(ctx context.Context, key string) (*models.Profile, error) {
	var profile models.Profile

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(profileKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrProfileNotFound
		}
		if err != nil {
			return fmt.Errorf("get profile: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &profile)
		})
	})
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

// PutProfile writes a profile document. Callers mutating an existing key
// must hold the key lock via WithKeyLock.
func (s *Store) PutProfile(ctx context.Context, profile *models.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(profileKeyPrefix+profile.Key), data)
	})
}

// GetSnapshot retrieves the served recommendation snapshot for an identity
// key.
func (s *Store) GetSnapshot(ctx context.Context, key string) (*models.RecommendationSnapshot, error) {
	var snap models.RecommendationSnapshot

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSnapshotNotFound
		}
		if err != nil {
			return fmt.Errorf("get snapshot: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return nil, err
	}

	return &snap, nil
}

// PutSnapshot writes a recommendation snapshot. Callers must hold the key
// lock via WithKeyLock when the write races with merge or replace.
func (s *Store) PutSnapshot(ctx context.Context, snap *models.RecommendationSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKeyPrefix+snap.Key), data)
	})
}
