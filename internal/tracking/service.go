// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package tracking implements the write side of the engine: impression and
// feedback logging. Impressions are insert-only facts; feedback events are
// append-only and scored at write time so the event log carries its own
// training signal.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/recerr"
	"github.com/shelfwise/shelfwise/internal/scoring"
	"github.com/shelfwise/shelfwise/internal/store"
	"github.com/shelfwise/shelfwise/internal/validation"
)

// DefaultPlacement is recorded when the caller does not say where the
// recommendations were shown.
const DefaultPlacement = "unknown"

// Service handles impression and feedback writes.
type Service struct {
	store *store.Store
	now   func() time.Time
}

// NewService creates a tracking service over the given store.
func NewService(st *store.Store) *Service {
	return &Service{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// LogImpression validates and persists one impression. The write is
// insert-only: a duplicate impression ID fails with a conflict error and the
// first record stays untouched.
func (s *Service) LogImpression(ctx context.Context, req *ImpressionRequest) (*models.Impression, error) {
	if verr := validation.ValidateStruct(req); verr != nil {
		return nil, recerr.Wrap(recerr.KindValidation, verr)
	}

	items := make([]models.RecommendedItem, len(req.Items))
	for i, it := range req.Items {
		rank := it.Rank
		if rank == 0 {
			// Rank defaults to list position, 1-based.
			rank = i + 1
		}
		items[i] = models.RecommendedItem{
			ItemID:    it.ItemID,
			Rank:      rank,
			Score:     it.Score,
			Breakdown: it.Breakdown,
			Cosine:    it.Cosine,
			Filters:   it.Filters,
		}
	}

	topK := req.TopK
	if topK == 0 {
		topK = len(items)
	}
	placement := req.Placement
	if placement == "" {
		placement = DefaultPlacement
	}

	imp := &models.Impression{
		ImpressionID: req.ImpressionID,
		Ref:          uuid.NewString(),
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		ExperimentID: req.ExperimentID,
		ModelVersion: req.ModelVersion,
		Placement:    placement,
		TopK:         topK,
		Items:        items,
		Context:      req.Context,
		CreatedAt:    s.now(),
	}

	if err := s.store.PutImpression(ctx, imp); err != nil {
		if errors.Is(err, store.ErrImpressionExists) {
			metrics.ImpressionConflicts.Inc()
			return nil, recerr.Wrap(recerr.KindConflict, err)
		}
		return nil, recerr.Wrap(recerr.KindInternal, err)
	}

	metrics.ImpressionsLogged.Inc()
	logging.CtxInfo(ctx).
		Str("impression_id", imp.ImpressionID).
		Str("session_id", imp.SessionID).
		Int("items", len(imp.Items)).
		Msg("impression logged")

	return imp, nil
}

// LogFeedback validates, scores, and appends one feedback event. The event
// joins its impression for context: rank and cosine come from the matching
// item when the caller omits them, and user, experiment, and model version
// are inherited from the impression when absent.
func (s *Service) LogFeedback(ctx context.Context, req *FeedbackRequest) (*models.FeedbackEvent, error) {
	if verr := validation.ValidateStruct(req); verr != nil {
		metrics.FeedbackRejected.WithLabelValues("validation").Inc()
		return nil, recerr.Wrap(recerr.KindValidation, verr)
	}

	imp, err := s.resolveImpression(ctx, req)
	if err != nil {
		if errors.Is(err, store.ErrImpressionNotFound) {
			metrics.FeedbackRejected.WithLabelValues("impression_not_found").Inc()
			return nil, recerr.Wrap(recerr.KindNotFound, err)
		}
		return nil, recerr.Wrap(recerr.KindInternal, err)
	}

	occurredAt := s.now()
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}

	ev := &models.FeedbackEvent{
		ID:           uuid.NewString(),
		ImpressionID: imp.ImpressionID,
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		ExperimentID: req.ExperimentID,
		ModelVersion: req.ModelVersion,
		ItemID:       req.ItemID,
		Rank:         req.Rank,
		EventType:    req.EventType,
		Value:        req.Value,
		Metadata:     req.Metadata,
		OccurredAt:   occurredAt,
	}
	if req.Cosine != nil {
		ev.Cosine = *req.Cosine
	}

	// Inherit impression context where the caller left gaps.
	if ev.UserID == "" {
		ev.UserID = imp.UserID
	}
	if ev.ExperimentID == "" {
		ev.ExperimentID = imp.ExperimentID
	}
	if ev.ModelVersion == "" {
		ev.ModelVersion = imp.ModelVersion
	}

	for _, item := range imp.Items {
		if item.ItemID == ev.ItemID {
			if ev.Rank == 0 {
				ev.Rank = item.Rank
			}
			if req.Cosine == nil {
				ev.Cosine = item.Cosine
			}
			break
		}
	}

	ev.BaseScore = scoring.BaseScore(ev.EventType, ev.Value)
	ev.FinalScore = scoring.Decay(ev.BaseScore, ev.OccurredAt, s.now())

	if err := s.store.AppendFeedback(ctx, ev); err != nil {
		return nil, recerr.Wrap(recerr.KindInternal, err)
	}

	metrics.FeedbackLogged.WithLabelValues(ev.EventType).Inc()
	logging.CtxInfo(ctx).
		Str("impression_id", ev.ImpressionID).
		Str("event_type", ev.EventType).
		Int64("item_id", ev.ItemID).
		Float64("final_score", ev.FinalScore).
		Msg("feedback logged")

	return ev, nil
}

// resolveImpression prefers the internal ref over the impression ID because
// refs are server-assigned and cannot collide across tenants.
func (s *Service) resolveImpression(ctx context.Context, req *FeedbackRequest) (*models.Impression, error) {
	if req.Ref != "" {
		imp, err := s.store.GetImpressionByRef(ctx, req.Ref)
		if err == nil {
			return imp, nil
		}
		if !errors.Is(err, store.ErrImpressionNotFound) || req.ImpressionID == "" {
			return nil, err
		}
	}
	return s.store.GetImpression(ctx, req.ImpressionID)
}
