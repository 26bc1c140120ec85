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

// PutImpression inserts a new impression. The write is insert-only: a second
// impression with the same impression ID fails with ErrImpressionExists and
// leaves the first record unchanged, because feedback joins depend on
// impression identity being unique.
func (s *Store) PutImpression(ctx context.Context, imp *models.Impression) error {
	data, err := json.Marshal(imp)
	if err != nil {
		return fmt.Errorf("marshal impression: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(impressionKeyPrefix + imp.ImpressionID)

		_, err := txn.Get(key)
		if err == nil {
			return ErrImpressionExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check impression: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set impression: %w", err)
		}

		// Reference index for callers that hold the internal ref
		// instead of the impression ID.
		refKey := []byte(impressionRefKeyPrefix + imp.Ref)
		if err := txn.Set(refKey, []byte(imp.ImpressionID)); err != nil {
			return fmt.Errorf("set impression ref: %w", err)
		}

		return nil
	})
}

// GetImpression retrieves an impression by its caller-supplied impression ID.
func (s *Store) GetImpression(ctx context.Context, impressionID string) (*models.Impression, error) {
	var imp models.Impression

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(impressionKeyPrefix + impressionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrImpressionNotFound
		}
		if err != nil {
			return fmt.Errorf("get impression: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &imp)
		})
	})
	if err != nil {
		return nil, err
	}

	return &imp, nil
}

// GetImpressionByRef retrieves an impression by its server-assigned internal
// reference.
func (s *Store) GetImpressionByRef(ctx context.Context, ref string) (*models.Impression, error) {
	var impressionID string

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(impressionRefKeyPrefix + ref))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrImpressionNotFound
		}
		if err != nil {
			return fmt.Errorf("get impression ref: %w", err)
		}

		return item.Value(func(val []byte) error {
			impressionID = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetImpression(ctx, impressionID)
}
