// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package store

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/shelfwise/shelfwise/internal/models"
)

// feedbackKey builds a time-prefixed key so feedback scans over a trailing
// window are a single prefix seek. Nanos are zero-padded to keep
// lexicographic order equal to chronological order.
func feedbackKey(ev *models.FeedbackEvent) string {
	return fmt.Sprintf("%s%020d:%s", feedbackKeyPrefix, ev.OccurredAt.UnixNano(), ev.ID)
}

// AppendFeedback persists a feedback event. Events are append-only facts;
// the store assigns an ID when the caller left it empty.
func (s *Store) AppendFeedback(ctx context.Context, ev *models.FeedbackEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(feedbackKey(ev)), data); err != nil {
			return fmt.Errorf("set feedback: %w", err)
		}
		return nil
	})
}

// ScanFeedbackSince streams feedback events with occurredAt >= since, in
// chronological order, to fn. Returning an error from fn stops the scan.
// Used by the trending aggregation and the trainer payload builder.
func (s *Store) ScanFeedbackSince(ctx context.Context, since int64, fn func(*models.FeedbackEvent) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(feedbackKeyPrefix)
		start := []byte(fmt.Sprintf("%s%020d", feedbackKeyPrefix, since))

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var ev models.FeedbackEvent
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			})
			if err != nil {
				return fmt.Errorf("unmarshal feedback: %w", err)
			}

			if err := fn(&ev); err != nil {
				return err
			}
		}
		return nil
	})
}
