// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package config

import (
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file, and environment variables (highest priority).
//
// Configuration Categories:
//
//  1. Serving:
//     - Server: HTTP listener, CORS, rate limiting, poll ceiling
//     - Cache: shared in-process TTL cache bounds
//
//  2. Storage and messaging:
//     - Store: BadgerDB data directory and GC cadence
//     - Feed: snapshot change feed transport (in-process or NATS)
//
//  3. Integrations:
//     - Catalog: upstream book catalog service for hydration
//     - Trainer: external trainer binary and schedule
//
//  4. Access and observability:
//     - Auth: JWT verification secret and admin API key hash
//     - Logging: level and output format
//
// Config is immutable after Load() and safe for concurrent reads.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Cache   CacheConfig   `koanf:"cache"`
	Catalog CatalogConfig `koanf:"catalog"`
	Feed    FeedConfig    `koanf:"feed"`
	Trainer TrainerConfig `koanf:"trainer"`
	Auth    AuthConfig    `koanf:"auth"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_PORT: Listen port (default: 8080)
//   - HTTP_HOST: Bind address (default: 0.0.0.0)
//   - HTTP_TIMEOUT: Read/write timeout (default: 30s)
//   - ENVIRONMENT: development or production (default: development)
//   - CORS_ORIGINS: Comma-separated allowed origins (default: *)
//   - RATE_LIMIT_REQUESTS / RATE_LIMIT_WINDOW / DISABLE_RATE_LIMIT
//   - POLL_CEILING: Max bounded-wait poll duration (default: 25s)
type ServerConfig struct {
	Port              int           `koanf:"port"`
	Host              string        `koanf:"host"`
	Timeout           time.Duration `koanf:"timeout"`
	Environment       string        `koanf:"environment"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	PollCeiling       time.Duration `koanf:"poll_ceiling"`
}

// StoreConfig holds BadgerDB settings.
type StoreConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory runs the store without disk persistence. Tests and demos only.
	InMemory bool `koanf:"in_memory"`

	// GCInterval is how often the value log garbage collector runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// CacheConfig bounds the shared in-process TTL cache used for catalog
// hydration results and the trending list.
type CacheConfig struct {
	TTL        time.Duration `koanf:"ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

// CatalogConfig holds the upstream book catalog connection. The catalog is
// optional: when disabled, recommendations are served as bare item IDs.
//
// Environment Variables:
//   - CATALOG_ENABLED: Enable catalog hydration (default: false)
//   - CATALOG_URL: Catalog service base URL (e.g. http://catalog:8081)
//   - CATALOG_API_KEY: Optional X-Api-Key header value
type CatalogConfig struct {
	Enabled   bool          `koanf:"enabled"`
	BaseURL   string        `koanf:"base_url"`
	APIKey    string        `koanf:"api_key"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

// Feed backends.
const (
	FeedBackendGoChannel = "gochannel"
	FeedBackendNATS      = "nats"
)

// FeedConfig selects the snapshot change feed transport. The default
// in-process gochannel backend suits single-node deployments; the NATS
// backend (build tag "nats") fans snapshots out across replicas.
type FeedConfig struct {
	Backend          string `koanf:"backend"`
	NATSURL          string `koanf:"nats_url"`
	NATSEmbedded     bool   `koanf:"nats_embedded"`
	NATSEmbeddedPort int    `koanf:"nats_embedded_port"`
}

// TrainerConfig holds the external trainer process settings.
//
// Environment Variables:
//   - TRAINER_ENABLED: Enable scheduled training runs (default: false)
//   - TRAINER_COMMAND: Trainer executable path (required when enabled)
//   - TRAINER_INTERVAL: Time between scheduled runs (default: 24h)
//   - TRAINER_TIMEOUT: Per-run kill deadline (default: 10m)
type TrainerConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Command     string        `koanf:"command"`
	Interval    time.Duration `koanf:"interval"`
	Timeout     time.Duration `koanf:"timeout"`
	HistoryDays int           `koanf:"history_days"`
	MinScore    float64       `koanf:"min_score"`
	TopK        int           `koanf:"top_k"`
	MaxProfiles int           `koanf:"max_profiles"`
}

// AuthConfig holds request identity settings. JWTSecret enables bearer token
// verification; when empty, tokens are decoded without verification and used
// as identity hints only. AdminKeyHash is the bcrypt hash of the API key that
// guards admin endpoints such as manual train runs.
type AuthConfig struct {
	JWTSecret    string `koanf:"jwt_secret"`
	AdminKeyHash string `koanf:"admin_key_hash"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller includes file:line in log entries.
	Caller bool `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
// Production tightens validation: admin endpoints require a key hash and
// CORS may not be a bare wildcard.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
