// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shelfwise/shelfwise/internal/middleware"
)

// Router assembles the HTTP surface from handlers and middleware.
type Router struct {
	handler       *Handler
	stream        *StreamHandler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. stream may be nil when realtime delivery is
// not wired (tests).
func NewRouter(handler *Handler, stream *StreamHandler, mw *ChiMiddleware) *Router {
	return &Router{
		handler:       handler,
		stream:        stream,
		chiMiddleware: mw,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight works

	// Health endpoints: permissive rate limiting for monitoring probes.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.Get("/", router.handler.Health)
	})

	// Recommendation surface.
	r.Route("/api/v1/recommendations", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		// Tracking ingestion.
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitWrites())
			r.Post("/events/impression", router.handler.Impression)
			r.Post("/events/feedback", router.handler.Feedback)
		})

		// Serving reads.
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Get("/", router.handler.Recommendations)
			r.Get("/trending", router.handler.Trending)
			r.Get("/categories", router.handler.Categories)
			r.Post("/merge", router.handler.Merge)
		})

		// Realtime delivery. Long polls park for up to the ceiling, so the
		// limiter budget is separate from plain reads.
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitRealtime())
			r.Get("/poll", router.handler.Poll)
			if router.stream != nil {
				r.Get("/stream", router.stream.Stream)
			}
		})
	})

	// Admin surface, guarded by the API key hash.
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitAdmin())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(router.chiMiddleware.RequireAdminKey())

		r.Post("/train", router.handler.Train)
	})

	// Observability.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
