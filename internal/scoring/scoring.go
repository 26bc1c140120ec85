// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package scoring provides the event-to-score mapping and the exponential
// half-life decay applied to feedback signal. Pure functions, no I/O.
package scoring

import (
	"math"
	"time"

	"github.com/shelfwise/shelfwise/internal/models"
)

// HalfLifeDays is the decay half-life: a signal loses half its weight every
// 30 days.
const HalfLifeDays = 30.0

// DefaultWeight is applied to event types outside the known set.
const DefaultWeight = 1.0

// eventWeights maps feedback event types to their base score.
var eventWeights = map[string]float64{
	models.EventViewDetail:          1,
	models.EventRecommendationClick: 2,
	models.EventAddToCart:           3,
	models.EventPurchase:            4,
	models.EventLike:                2,
	models.EventDislike:             -1,
}

// BaseScore resolves the base score for a feedback event. An explicit
// caller-supplied value wins; otherwise the event type's weight applies,
// with unknown types defaulting to DefaultWeight.
func BaseScore(eventType string, explicitValue *float64) float64 {
	if explicitValue != nil {
		return *explicitValue
	}
	if w, ok := eventWeights[eventType]; ok {
		return w
	}
	return DefaultWeight
}

// Decay applies exponential half-life decay to a base score:
//
//	base * 0.5^(ageDays / HalfLifeDays)
//
// Negative ages (clock skew, occurredAt in the future) are clamped to zero
// so skewed clients never amplify their own signal.
func Decay(base float64, occurredAt, now time.Time) float64 {
	ageDays := now.Sub(occurredAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return base * math.Pow(0.5, ageDays/HalfLifeDays)
}
