// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package api

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"golang.org/x/crypto/bcrypt"

	"github.com/shelfwise/shelfwise/internal/logging"
)

// chiMiddleware adapts http.HandlerFunc middleware to chi's
// func(http.Handler) http.Handler so both styles compose in one stack.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// ChiMiddlewareConfig holds configuration for the chi middleware factories.
type ChiMiddlewareConfig struct {
	// CORS configuration
	CORSAllowedOrigins []string
	CORSMaxAge         int // seconds

	// Rate limiting configuration
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool

	// AdminKeyHash is the bcrypt hash of the admin API key. Empty disables
	// admin endpoints outside development.
	AdminKeyHash string
}

// ChiMiddleware provides chi-compatible middleware built from the
// production-hardened chi ecosystem packages.
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware creates the middleware factory for the given configuration.
func NewChiMiddleware(config *ChiMiddlewareConfig) *ChiMiddleware {
	if config == nil {
		config = &ChiMiddlewareConfig{
			CORSAllowedOrigins: []string{},
			CORSMaxAge:         86400,
			RateLimitRequests:  100,
			RateLimitWindow:    time.Minute,
		}
	}
	if config.CORSMaxAge == 0 {
		config.CORSMaxAge = 86400
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: config.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Api-Key"},
		MaxAge:         config.CORSMaxAge,
	})

	return &ChiMiddleware{
		config: config,
		cors:   corsHandler,
	}
}

// CORS returns the go-chi/cors handler. Global so OPTIONS preflight works on
// every route.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimitConfig defines rate limit parameters for specific endpoint groups.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Endpoint-group rate limits, tuned per endpoint characteristics.
var (
	// RateLimitWrite bounds tracking writes. Impressions arrive once per
	// served page, feedback once per visitor action.
	RateLimitWrite = RateLimitConfig{Requests: 300, Window: time.Minute}

	// RateLimitRealtime bounds stream upgrades and long-poll entries. Each
	// poll can park for the full ceiling, so the per-IP budget stays small.
	RateLimitRealtime = RateLimitConfig{Requests: 60, Window: time.Minute}

	// RateLimitAdmin is strict for admin operations such as manual train
	// runs.
	RateLimitAdmin = RateLimitConfig{Requests: 5, Window: time.Minute}

	// RateLimitHealth allows frequent monitoring probes while preventing
	// abuse.
	RateLimitHealth = RateLimitConfig{Requests: 1000, Window: time.Minute}
)

// RateLimit returns the default per-IP limiter for read endpoints.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitConfig{
		Requests: m.config.RateLimitRequests,
		Window:   m.config.RateLimitWindow,
	})
}

// RateLimitCustom returns a per-IP limiter with the given bounds.
func (m *ChiMiddleware) RateLimitCustom(config RateLimitConfig) func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.LimitByIP(config.Requests, config.Window)
}

// RateLimitWrites returns the limiter for tracking ingestion endpoints.
func (m *ChiMiddleware) RateLimitWrites() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitWrite)
}

// RateLimitRealtime returns the limiter for stream and poll endpoints.
func (m *ChiMiddleware) RateLimitRealtime() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitRealtime)
}

// RateLimitAdmin returns the strict limiter for admin endpoints.
func (m *ChiMiddleware) RateLimitAdmin() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitAdmin)
}

// RateLimitHealth returns the permissive limiter for health endpoints.
func (m *ChiMiddleware) RateLimitHealth() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitHealth)
}

// RequireAdminKey guards admin endpoints with the configured API key. The
// caller sends the plaintext key in X-Api-Key; only its bcrypt hash is ever
// stored. With no hash configured every request is rejected, so admin
// surfaces are opt-in.
func (m *ChiMiddleware) RequireAdminKey() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := NewResponseWriter(w, r)

			if m.config.AdminKeyHash == "" {
				logging.Warn().
					Str("path", r.URL.Path).
					Msg("admin endpoint hit with no admin key configured")
				rw.Forbidden("admin API key not configured")
				return
			}

			key := r.Header.Get("X-Api-Key")
			if key == "" {
				rw.Unauthorized("missing X-Api-Key header")
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(m.config.AdminKeyHash), []byte(key)); err != nil {
				logging.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Msg("admin key rejected")
				rw.Unauthorized("invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDWithLogging adds an X-Request-ID header and threads the ID through
// the logging context so every log line of a request correlates.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
				r.Header.Set("X-Request-ID", requestID)
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APISecurityHeaders adds security headers to API responses.
func APISecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
