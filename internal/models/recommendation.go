// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package models defines the domain types shared across the tracking,
// recommendation, and delivery layers.
package models

import "time"

// Event types accepted by the feedback log. Unknown types are stored as-is
// and scored with the default weight.
const (
	EventViewDetail          = "view_detail"
	EventRecommendationClick = "recommendation_click"
	EventAddToCart           = "add_to_cart"
	EventPurchase            = "purchase"
	EventLike                = "like"
	EventDislike             = "dislike"
)

// ScoreBreakdown records the sub-scores that contributed to an item's final
// ranking score at serving time.
type ScoreBreakdown struct {
	Embedding float64 `json:"embedding,omitempty"`
	Metadata  float64 `json:"metadata,omitempty"`
	Explore   float64 `json:"explore,omitempty"`
}

// RecommendedItem is one entry of an impression's ordered item list.
// Immutable once written.
type RecommendedItem struct {
	ItemID    int64          `json:"item_id"`
	Rank      int            `json:"rank"` // 1-based position
	Score     float64        `json:"score,omitempty"`
	Breakdown ScoreBreakdown `json:"breakdown,omitempty"`
	Cosine    float64        `json:"cosine,omitempty"`
	Filters   Attrs          `json:"filters,omitempty"`
}

// Impression records one recommendation response shown to a visitor: which
// items, in what order, under which experiment and model version. Exactly one
// impression exists per impression ID; duplicates are rejected at write time.
type Impression struct {
	ImpressionID string            `json:"impression_id"`
	Ref          string            `json:"ref"` // server-assigned internal reference
	SessionID    string            `json:"session_id"`
	UserID       string            `json:"user_id,omitempty"`
	ExperimentID string            `json:"experiment_id,omitempty"`
	ModelVersion string            `json:"model_version"`
	Placement    string            `json:"placement"`
	TopK         int               `json:"top_k"`
	Items        []RecommendedItem `json:"items"`
	Context      Attrs             `json:"context,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// FeedbackEvent records one visitor action against a previously shown item,
// joined to its impression for context. Append-only.
type FeedbackEvent struct {
	ID           string    `json:"id"`
	ImpressionID string    `json:"impression_id"`
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id,omitempty"`
	ExperimentID string    `json:"experiment_id,omitempty"`
	ModelVersion string    `json:"model_version,omitempty"`
	ItemID       int64     `json:"item_id"`
	Rank         int       `json:"rank,omitempty"`
	EventType    string    `json:"event_type"`
	Value        *float64  `json:"value,omitempty"` // caller-supplied magnitude
	BaseScore    float64   `json:"base_score"`
	FinalScore   float64   `json:"final_score"`
	Cosine       float64   `json:"cosine,omitempty"`
	Metadata     Attrs     `json:"metadata,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// UserKey returns the profile key for a user identity.
func UserKey(userID string) string {
	return "user:" + userID
}

// Profile holds the accumulated per-item score signal for one identity key.
// Keys are either a raw session ID or "user:<id>". Profiles are derived
// state, rebuildable from the event history.
type Profile struct {
	Key       string            `json:"key"`
	Scores    map[int64]float64 `json:"scores"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// RecommendationSnapshot is the ordered top-K item list derived from a
// Profile. This is the object served to callers and fanned out on change.
type RecommendationSnapshot struct {
	Key       string    `json:"key"`
	ItemIDs   []int64   `json:"item_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// MergeResult reports the outcome of folding one profile into another.
type MergeResult struct {
	FromKey  string                  `json:"from_key"`
	ToKey    string                  `json:"to_key"`
	Merged   int                     `json:"merged"` // item scores folded in
	Snapshot *RecommendationSnapshot `json:"snapshot"`
}

// TrendingItem is one entry of the trending fallback list.
type TrendingItem struct {
	ItemID   int64   `json:"item_id"`
	Views    int     `json:"views"`
	AvgDwell float64 `json:"avg_dwell"`
	Score    float64 `json:"score"`
}

// Book is the catalog record used to hydrate recommendation results for
// presentation. The engine never writes to the catalog.
type Book struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Author   string  `json:"author,omitempty"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
}
