// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/shelfwise/shelfwise/internal/feed"
	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/metrics"
	"github.com/shelfwise/shelfwise/internal/models"
	"github.com/shelfwise/shelfwise/internal/recommend"
	"github.com/shelfwise/shelfwise/internal/tracking"
	"github.com/shelfwise/shelfwise/internal/trainer"
)

// maxRequestBody bounds JSON request bodies. Impression payloads carry up to
// 100 items; 1MB leaves generous headroom.
const maxRequestBody = 1 << 20

// TrackingService logs impressions and feedback.
type TrackingService interface {
	LogImpression(ctx context.Context, req *tracking.ImpressionRequest) (*models.Impression, error)
	LogFeedback(ctx context.Context, req *tracking.FeedbackRequest) (*models.FeedbackEvent, error)
}

// RecommendService serves recommendation lists and manages profiles.
type RecommendService interface {
	Serve(ctx context.Context, key string) (*recommend.ServeResult, error)
	CurrentSnapshot(ctx context.Context, key string) (*models.RecommendationSnapshot, error)
	MergeProfiles(ctx context.Context, fromKey, toKey string) (*models.MergeResult, error)
	Trending(ctx context.Context) ([]models.TrendingItem, error)
	Categories(ctx context.Context, key string, limit int) ([]recommend.CategoryCount, error)
}

// TrainRunner runs the external trainer.
type TrainRunner interface {
	Train(ctx context.Context, opts trainer.Options) (*trainer.Result, error)
}

// PollWaiter parks bounded-wait polls on the change feed.
type PollWaiter interface {
	Wait(ctx context.Context, key string, since time.Time) (*feed.PollResult, error)
}

// Handler holds the HTTP handlers and their service dependencies.
type Handler struct {
	tracking  TrackingService
	recommend RecommendService
	trainer   TrainRunner
	waiter    PollWaiter
	identity  *identityResolver
	startTime time.Time
}

// NewHandler creates the handler set. trainer may be nil when training is
// disabled; the train endpoint then reports service unavailable.
func NewHandler(trk TrackingService, rec RecommendService, trn TrainRunner, waiter PollWaiter, jwtSecret string) *Handler {
	return &Handler{
		tracking:  trk,
		recommend: rec,
		trainer:   trn,
		waiter:    waiter,
		identity:  &identityResolver{jwtSecret: jwtSecret},
		startTime: time.Now(),
	}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

// Impression handles POST /events/impression. Duplicate impression IDs are
// conflicts: the first write wins and the log stays insert-only.
func (h *Handler) Impression(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req tracking.ImpressionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}

	imp, err := h.tracking.LogImpression(r.Context(), &req)
	if err != nil {
		writeServiceError(rw, err)
		return
	}

	rw.Created(imp)
}

// Feedback handles POST /events/feedback. The referenced impression must
// exist; scoring context is inherited from it.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req tracking.FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}

	if _, err := h.tracking.LogFeedback(r.Context(), &req); err != nil {
		writeServiceError(rw, err)
		return
	}

	rw.NoContent()
}

// Recommendations handles GET /. When the request carries both a session and
// a user identity the session profile folds into the user profile first, so
// a just-identified visitor is served their merged history immediately.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id := h.identity.Resolve(r)
	if id.Empty() {
		rw.BadRequest("sessionId or userId is required")
		return
	}

	if id.Identified() {
		if _, err := h.recommend.MergeProfiles(r.Context(), id.SessionKey(), id.Key()); err != nil {
			// Serving still works from whatever profile state exists.
			logging.CtxWarn(r.Context()).Err(err).
				Str("from", id.SessionKey()).
				Str("to", id.Key()).
				Msg("merge-on-identify failed")
		}
	}

	result, err := h.recommend.Serve(r.Context(), id.Key())
	if err != nil {
		writeServiceError(rw, err)
		return
	}

	rw.Success(result)
}

// MergeRequest is the payload for POST /merge. Callers either name the
// profile keys directly or pass the session and user IDs.
type MergeRequest struct {
	FromKey   string `json:"from_key"`
	ToKey     string `json:"to_key"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// Merge handles POST /merge: fold one profile's scores into another. The
// fold is additive by design, so replaying a merge doubles the folded
// scores; callers own merge idempotency.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req MergeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}

	fromKey, toKey := req.FromKey, req.ToKey
	if fromKey == "" && req.SessionID != "" {
		fromKey = req.SessionID
	}
	if toKey == "" && req.UserID != "" {
		toKey = models.UserKey(req.UserID)
	}
	if fromKey == "" || toKey == "" {
		rw.BadRequest("from_key and to_key (or session_id and user_id) are required")
		return
	}

	result, err := h.recommend.MergeProfiles(r.Context(), fromKey, toKey)
	if err != nil {
		writeServiceError(rw, err)
		return
	}

	rw.Success(result)
}

// Poll handles GET /poll: bounded-wait delivery. The caller passes the
// timestamp of the snapshot it has seen; the request parks until a newer
// snapshot lands or the ceiling expires. Expiry is a defined outcome, not an
// error: the prior snapshot comes back with timed_out set.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id := h.identity.Resolve(r)
	if id.Empty() {
		rw.BadRequest("sessionId or userId is required")
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			rw.BadRequest("since must be RFC 3339, got: " + raw)
			return
		}
		since = parsed
	}

	metrics.PollWaits.Inc()
	result, err := h.waiter.Wait(r.Context(), id.Key(), since)
	if err != nil {
		writeServiceError(rw, err)
		return
	}
	if result.TimedOut {
		metrics.PollTimeouts.Inc()
	}

	rw.Success(result)
}

// Trending handles GET /trending: the store-wide fallback list.
func (h *Handler) Trending(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	items, err := h.recommend.Trending(r.Context())
	if err != nil {
		writeServiceError(rw, err)
		return
	}

	rw.Success(items)
}

// Categories handles GET /categories: category counts over the caller's
// current recommendation list.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id := h.identity.Resolve(r)
	if id.Empty() {
		rw.BadRequest("sessionId or userId is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			rw.BadRequest("limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	counts, err := h.recommend.Categories(r.Context(), id.Key(), limit)
	if err != nil {
		writeServiceError(rw, err)
		return
	}

	rw.Success(counts)
}

// TrainRequest is the optional payload for POST /admin/train. Omitted
// fields fall back to the configured trainer defaults.
type TrainRequest struct {
	HistoryDays int      `json:"history_days"`
	MinScore    *float64 `json:"min_score"`
	TopK        int      `json:"top_k"`
	MaxProfiles int      `json:"max_profiles"`
	DryRun      bool     `json:"dry_run"`
}

// Train handles POST /admin/train: one synchronous trainer run. The full
// result including the trainer's report comes back to the caller; a failed
// run is never retried automatically.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.trainer == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "training is not configured")
		return
	}

	var req TrainRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			rw.BadRequest("invalid JSON body: " + err.Error())
			return
		}
	}
	if req.HistoryDays < 0 || req.TopK < 0 || req.MaxProfiles < 0 {
		rw.BadRequest("history_days, top_k, and max_profiles must be non-negative")
		return
	}

	result, err := h.trainer.Train(r.Context(), trainer.Options{
		HistoryDays: req.HistoryDays,
		MinScore:    req.MinScore,
		TopK:        req.TopK,
		MaxProfiles: req.MaxProfiles,
		DryRun:      req.DryRun,
	})
	if err != nil {
		writeServiceError(rw, err)
		return
	}

	rw.Success(result)
}

// healthStatus is the payload for health endpoints.
type healthStatus struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version,omitempty"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(healthStatus{
		Status: "ok",
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
	})
}

// HealthLive handles GET /health/live: process liveness only.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HealthReady handles GET /health/ready. Serving needs only the store and
// the in-process feed, both of which are wired before the listener starts,
// so readiness follows liveness.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
