// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package metrics provides Prometheus instrumentation for the tracking and
// serving paths: event ingestion, snapshot serving, change feed fanout,
// realtime delivery, catalog calls, and training runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event ingestion
	ImpressionsLogged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "impressions_logged_total",
			Help: "Total number of impressions accepted into the log",
		},
	)

	ImpressionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "impression_conflicts_total",
			Help: "Total number of duplicate impression writes rejected",
		},
	)

	FeedbackLogged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_events_total",
			Help: "Total number of feedback events accepted, by event type",
		},
		[]string{"event_type"},
	)

	FeedbackRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_rejected_total",
			Help: "Total number of feedback events rejected",
		},
		[]string{"reason"}, // "validation", "impression_not_found"
	)

	// Snapshot serving
	SnapshotServes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_serves_total",
			Help: "Total number of recommendation serves, by source",
		},
		[]string{"source"}, // "snapshot", "trending"
	)

	ProfileMerges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "profile_merges_total",
			Help: "Total number of profile merges performed",
		},
	)

	// Change feed and realtime delivery
	FeedPublishes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_publishes_total",
			Help: "Total number of snapshot updates published to the change feed",
		},
	)

	PollWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poll_waits_total",
			Help: "Total number of bounded-wait poll requests",
		},
	)

	PollTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poll_timeouts_total",
			Help: "Total number of poll requests that hit the wait ceiling",
		},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "catalog", "trending"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Catalog upstream
	CatalogRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_request_duration_seconds",
			Help:    "Duration of catalog service calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CatalogErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_errors_total",
			Help: "Total number of failed catalog service calls",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Training
	TrainRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "train_runs_total",
			Help: "Total number of trainer invocations, by outcome",
		},
		[]string{"outcome"}, // "success", "no_report", "failed", "timeout"
	)

	TrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "train_duration_seconds",
			Help:    "Duration of trainer runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	TrainProfilesApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "train_profiles_applied_total",
			Help: "Total number of profiles replaced from trainer reports",
		},
	)
)

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCacheAccess records one cache lookup for the named cache.
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
	} else {
		CacheMisses.WithLabelValues(cacheType).Inc()
	}
}

// RecordTrainRun records one trainer invocation.
func RecordTrainRun(outcome string, duration time.Duration) {
	TrainRuns.WithLabelValues(outcome).Inc()
	TrainDuration.Observe(duration.Seconds())
}
