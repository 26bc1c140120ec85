// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package tracking

import (
	"time"

	"github.com/shelfwise/shelfwise/internal/models"
)

// ImpressionItem is one entry of an impression request's ordered item list.
type ImpressionItem struct {
	ItemID    int64                 `json:"item_id" validate:"required"`
	Rank      int                   `json:"rank" validate:"min=0"`
	Score     float64               `json:"score"`
	Breakdown models.ScoreBreakdown `json:"breakdown"`
	Cosine    float64               `json:"cosine"`
	Filters   models.Attrs          `json:"filters"`
}

// ImpressionRequest is the payload for logging one served recommendation
// response.
type ImpressionRequest struct {
	ImpressionID string           `json:"impression_id" validate:"required,max=128"`
	SessionID    string           `json:"session_id" validate:"required,max=128"`
	UserID       string           `json:"user_id" validate:"omitempty,max=128"`
	ExperimentID string           `json:"experiment_id" validate:"omitempty,max=128"`
	ModelVersion string           `json:"model_version" validate:"required,max=64"`
	Placement    string           `json:"placement" validate:"omitempty,max=64"`
	TopK         int              `json:"top_k" validate:"min=0,max=100"`
	Items        []ImpressionItem `json:"items" validate:"required,min=1,max=100,dive"`
	Context      models.Attrs     `json:"context"`
}

// FeedbackRequest is the payload for logging one visitor action against a
// previously shown item. Callers identify the impression by its ID or by the
// internal reference returned at impression time; at least one is required.
// Experiment, model version, rank, and cosine are inherited from the
// impression when the caller leaves them out; supplied values win.
type FeedbackRequest struct {
	ImpressionID string       `json:"impression_id" validate:"required_without=Ref,omitempty,max=128"`
	Ref          string       `json:"ref" validate:"required_without=ImpressionID,omitempty,max=128"`
	SessionID    string       `json:"session_id" validate:"required,max=128"`
	UserID       string       `json:"user_id" validate:"omitempty,max=128"`
	ExperimentID string       `json:"experiment_id" validate:"omitempty,max=128"`
	ModelVersion string       `json:"model_version" validate:"omitempty,max=64"`
	ItemID       int64        `json:"item_id" validate:"required"`
	EventType    string       `json:"event_type" validate:"required,max=64"`
	Value        *float64     `json:"value"`
	Rank         int          `json:"rank" validate:"min=0"`
	Cosine       *float64     `json:"cosine"`
	Metadata     models.Attrs `json:"metadata"`
	OccurredAt   *time.Time   `json:"occurred_at"`
}
