// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package recommend implements the serving side of the engine: per-identity
// profiles, the snapshots derived from them, profile merging on identify,
// and the trending fallback for identities without history.
package recommend

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shelfwise/shelfwise/internal/cache"
	"github.com/shelfwise/shelfwise/internal/feed"
	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/recerr"
	"github.com/shelfwise/shelfwise/internal/store"
)

const (
	// SnapshotTopK is the length of a served recommendation list.
	SnapshotTopK = 25

	// candidateCap bounds how many profile entries are considered when a
	// snapshot is rebuilt.
	candidateCap = 100
)

// Serve sources, reported to callers and metrics.
const (
	SourceSnapshot = "snapshot"
	SourceTrending = "trending"
)

// BookSource hydrates item IDs into catalog records. Implemented by the
// catalog client; failures degrade the serve to bare item IDs.
type BookSource interface {
	GetBooks(ctx context.Context, ids []int64) ([]models.Book, error)
}

// ServedItem is one entry of a serve response. Book is nil when catalog
// hydration was unavailable.
type ServedItem struct {
	ItemID int64        `json:"item_id"`
	Rank   int          `json:"rank"`
	Book   *models.Book `json:"book,omitempty"`
}

// ServeResult is a hydrated recommendation list plus where it came from.
type ServeResult struct {
	Key         string       `json:"key"`
	Source      string       `json:"source"`
	Items       []ServedItem `json:"items"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Service owns profile and snapshot state. All profile writes go through
// per-key critical sections, and every snapshot write publishes to the
// change feed inside that section so fanout order matches write order.
type Service struct {
	store   *store.Store
	feed    feed.Broadcaster
	catalog BookSource
	cache   *cache.Cache
	now     func() time.Time
}

// NewService creates a recommendation service. The cache is used for the
// trending computation; catalog may be nil in deployments without one.
func NewService(st *store.Store, f feed.Broadcaster, catalog BookSource, c *cache.Cache) *Service {
	return &Service{
		store:   st,
		feed:    f,
		catalog: catalog,
		cache:   c,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CurrentSnapshot returns the stored snapshot for a key, or (nil, nil) when
// none exists. Implements feed.SnapshotSource for the poll waiter.
func (s *Service) CurrentSnapshot(ctx context.Context, key string) (*models.RecommendationSnapshot, error) {
	snap, err := s.store.GetSnapshot(ctx, key)
	if errors.Is(err, store.ErrSnapshotNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, recerr.Wrap(recerr.KindInternal, err)
	}
	return snap, nil
}

// Serve returns the recommendation list for a key: the stored snapshot when
// one exists, otherwise the trending fallback. A cold identity is a defined
// state, not an error.
func (s *Service) Serve(ctx context.Context, key string) (*ServeResult, error) {
	snap, err := s.CurrentSnapshot(ctx, key)
	if err != nil {
		return nil, err
	}

	if snap != nil && len(snap.ItemIDs) > 0 {
		metrics.SnapshotServes.WithLabelValues(SourceSnapshot).Inc()
		return &ServeResult{
			Key:         key,
			Source:      SourceSnapshot,
			Items:       s.hydrate(ctx, snap.ItemIDs),
			GeneratedAt: snap.CreatedAt,
		}, nil
	}

	trending, err := s.Trending(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(trending))
	for i, item := range trending {
		ids[i] = item.ItemID
	}

	metrics.SnapshotServes.WithLabelValues(SourceTrending).Inc()
	return &ServeResult{
		Key:         key,
		Source:      SourceTrending,
		Items:       s.hydrate(ctx, ids),
		GeneratedAt: s.now(),
	}, nil
}

// hydrate resolves item IDs against the catalog, preserving order. Catalog
// failure degrades to bare IDs rather than failing the serve.
func (s *Service) hydrate(ctx context.Context, ids []int64) []ServedItem {
	items := make([]ServedItem, len(ids))
	for i, id := range ids {
		items[i] = ServedItem{ItemID: id, Rank: i + 1}
	}
	if s.catalog == nil || len(ids) == 0 {
		return items
	}

	books, err := s.catalog.GetBooks(ctx, ids)
	if err != nil {
		logging.CtxWarn(ctx).Err(err).Msg("catalog hydration failed, serving bare item ids")
		return items
	}

	byID := make(map[int64]*models.Book, len(books))
	for i := range books {
		byID[books[i].ID] = &books[i]
	}
	for i := range items {
		items[i].Book = byID[items[i].ItemID]
	}
	return items
}

// MergeProfiles folds the source profile's item scores into the destination,
// creating the destination on demand, then rebuilds and publishes the
// destination snapshot. The fold is additive and deliberately not
// idempotent: repeating a merge doubles the folded scores. Ordering stays
// stable because ranking is monotonic in score. The source profile is left
// in place.
func (s *Service) MergeProfiles(ctx context.Context, fromKey, toKey string) (*models.MergeResult, error) {
	if fromKey == "" || toKey == "" {
		return nil, recerr.New(recerr.KindValidation, "merge requires both profile keys")
	}
	if fromKey == toKey {
		return &models.MergeResult{FromKey: fromKey, ToKey: toKey}, nil
	}

	from, err := s.store.GetProfile(ctx, fromKey)
	if errors.Is(err, store.ErrProfileNotFound) {
		// Nothing to fold in. Not an error: merge-on-identify fires for
		// every identified read.
		return &models.MergeResult{FromKey: fromKey, ToKey: toKey}, nil
	}
	if err != nil {
		return nil, recerr.Wrap(recerr.KindInternal, err)
	}

	var result *models.MergeResult
	err = s.store.WithKeyLock(toKey, func() error {
		now := s.now()

		to, err := s.store.GetProfile(ctx, toKey)
		if errors.Is(err, store.ErrProfileNotFound) {
			to = &models.Profile{
				Key:       toKey,
				Scores:    make(map[int64]float64),
				CreatedAt: now,
			}
		} else if err != nil {
			return err
		}

		for itemID, score := range from.Scores {
			to.Scores[itemID] += score
		}
		to.UpdatedAt = now

		snap, err := s.writeProfileLocked(ctx, to, SnapshotTopK)
		if err != nil {
			return err
		}

		result = &models.MergeResult{
			FromKey:  fromKey,
			ToKey:    toKey,
			Merged:   len(from.Scores),
			Snapshot: snap,
		}
		return nil
	})
	if err != nil {
		return nil, recerr.Wrap(recerr.KindInternal, err)
	}

	metrics.ProfileMerges.Inc()
	logging.CtxInfo(ctx).
		Str("from", fromKey).
		Str("to", toKey).
		Int("merged", result.Merged).
		Msg("profiles merged")

	return result, nil
}

// ReplaceProfile overwrites a profile's scores wholesale and publishes the
// rebuilt snapshot. Used by the training orchestrator to apply trainer
// output. A topK of zero or less means the default snapshot size.
func (s *Service) ReplaceProfile(ctx context.Context, key string, scores map[int64]float64, topK int) (*models.RecommendationSnapshot, error) {
	if key == "" {
		return nil, recerr.New(recerr.KindValidation, "profile key required")
	}

	var snap *models.RecommendationSnapshot
	err := s.store.WithKeyLock(key, func() error {
		now := s.now()

		profile, err := s.store.GetProfile(ctx, key)
		if errors.Is(err, store.ErrProfileNotFound) {
			profile = &models.Profile{Key: key, CreatedAt: now}
		} else if err != nil {
			return err
		}

		profile.Scores = scores
		profile.UpdatedAt = now

		snap, err = s.writeProfileLocked(ctx, profile, topK)
		return err
	})
	if err != nil {
		return nil, recerr.Wrap(recerr.KindInternal, err)
	}

	return snap, nil
}

// writeProfileLocked persists a profile, derives its snapshot, and publishes
// the update. Callers must hold the key lock; publishing inside the critical
// section is what guarantees subscribers observe writes in order.
func (s *Service) writeProfileLocked(ctx context.Context, profile *models.Profile, topK int) (*models.RecommendationSnapshot, error) {
	if err := s.store.PutProfile(ctx, profile); err != nil {
		return nil, err
	}

	snap := &models.RecommendationSnapshot{
		Key:       profile.Key,
		ItemIDs:   rankProfile(profile.Scores, topK),
		CreatedAt: s.now(),
	}
	if err := s.store.PutSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	if err := s.feed.Publish(ctx, feed.SnapshotUpdate{Key: snap.Key, Snapshot: snap}); err != nil {
		// Delivery is best-effort; the stored snapshot is authoritative.
		logging.CtxWarn(ctx).Err(err).Str("key", snap.Key).Msg("snapshot fanout failed")
	} else {
		metrics.FeedPublishes.Inc()
	}

	return snap, nil
}

// rankProfile orders profile scores into a snapshot item list: candidates
// capped, then the top entries by score with ties broken by ascending item
// ID for determinism. A topK of zero or less means SnapshotTopK.
func rankProfile(scores map[int64]float64, topK int) []int64 {
	type scored struct {
		id    int64
		score float64
	}

	candidates := make([]scored, 0, len(scores))
	for id, score := range scores {
		candidates = append(candidates, scored{id: id, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	if len(candidates) > candidateCap {
		candidates = candidates[:candidateCap]
	}
	limit := topK
	if limit <= 0 {
		limit = SnapshotTopK
	}
	if len(candidates) < limit {
		limit = len(candidates)
	}

	ids := make([]int64, limit)
	for i := 0; i < limit; i++ {
		ids[i] = candidates[i].id
	}
	return ids
}
