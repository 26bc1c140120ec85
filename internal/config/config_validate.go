// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if err := c.validateCatalog(); err != nil {
		return err
	}

	if err := c.validateFeed(); err != nil {
		return err
	}

	if err := c.validateTrainer(); err != nil {
		return err
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got: %d", c.Server.Port)
	}

	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got: %s", c.Server.Timeout)
	}

	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got: %s", c.Server.Environment)
	}

	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitReqs <= 0 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got: %d", c.Server.RateLimitReqs)
		}
		if c.Server.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got: %s", c.Server.RateLimitWindow)
		}
	}

	if c.Server.PollCeiling <= 0 {
		return fmt.Errorf("POLL_CEILING must be positive, got: %s", c.Server.PollCeiling)
	}

	if c.IsProduction() {
		for _, origin := range c.Server.CORSOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ORIGINS must not contain a wildcard in production")
			}
		}
	}

	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	if c.Store.GCInterval <= 0 {
		return fmt.Errorf("STORE_GC_INTERVAL must be positive, got: %s", c.Store.GCInterval)
	}
	return nil
}

// validateCatalog validates catalog configuration (only if enabled).
func (c *Config) validateCatalog() error {
	if !c.Catalog.Enabled {
		return nil
	}

	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("CATALOG_URL is required when CATALOG_ENABLED=true")
	}
	if err := validateHTTPURL(c.Catalog.BaseURL, "CATALOG_URL"); err != nil {
		return fmt.Errorf("CATALOG_URL is invalid: %w", err)
	}
	if c.Catalog.RateLimit <= 0 {
		return fmt.Errorf("CATALOG_RATE_LIMIT must be positive, got: %g", c.Catalog.RateLimit)
	}
	return nil
}

func (c *Config) validateFeed() error {
	switch c.Feed.Backend {
	case FeedBackendGoChannel:
		return nil
	case FeedBackendNATS:
	default:
		return fmt.Errorf("FEED_BACKEND must be %s or %s, got: %s",
			FeedBackendGoChannel, FeedBackendNATS, c.Feed.Backend)
	}

	if c.Feed.NATSEmbedded {
		if c.Feed.NATSEmbeddedPort < 1 || c.Feed.NATSEmbeddedPort > 65535 {
			return fmt.Errorf("NATS_EMBEDDED_PORT must be between 1 and 65535, got: %d", c.Feed.NATSEmbeddedPort)
		}
		return nil
	}

	if c.Feed.NATSURL == "" {
		return fmt.Errorf("NATS_URL is required when FEED_BACKEND=nats and NATS_EMBEDDED=false")
	}
	if err := validateNATSURL(c.Feed.NATSURL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	return nil
}

// validateTrainer validates trainer configuration (only if enabled).
func (c *Config) validateTrainer() error {
	if !c.Trainer.Enabled {
		return nil
	}

	if c.Trainer.Command == "" {
		return fmt.Errorf("TRAINER_COMMAND is required when TRAINER_ENABLED=true")
	}
	if c.Trainer.Interval <= 0 {
		return fmt.Errorf("TRAINER_INTERVAL must be positive, got: %s", c.Trainer.Interval)
	}
	if c.Trainer.Timeout <= 0 {
		return fmt.Errorf("TRAINER_TIMEOUT must be positive, got: %s", c.Trainer.Timeout)
	}
	if c.Trainer.HistoryDays <= 0 {
		return fmt.Errorf("TRAINER_HISTORY_DAYS must be positive, got: %d", c.Trainer.HistoryDays)
	}
	if c.Trainer.TopK <= 0 {
		return fmt.Errorf("TRAINER_TOP_K must be positive, got: %d", c.Trainer.TopK)
	}
	if c.Trainer.MaxProfiles <= 0 {
		return fmt.Errorf("TRAINER_MAX_PROFILES must be positive, got: %d", c.Trainer.MaxProfiles)
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.AdminKeyHash != "" && !strings.HasPrefix(c.Auth.AdminKeyHash, "$2") {
		return fmt.Errorf("ADMIN_API_KEY_HASH must be a bcrypt hash")
	}
	if c.IsProduction() && c.Auth.AdminKeyHash == "" {
		return fmt.Errorf("ADMIN_API_KEY_HASH is required in production")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, got: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got: %s", c.Logging.Format)
	}

	return nil
}

// validateHTTPURL validates a base URL for an HTTP service: http or https
// scheme, host present, no path or query.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}

	// Allow a trailing slash but nothing deeper.
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return fmt.Errorf("%s should be base URL only, remove path: %s", fieldName, parsedURL.Path)
	}

	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}

	return nil
}

// validateNATSURL validates a NATS connection URL.
// Supports nats://, tls://, ws:// and wss:// schemes.
func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222, nats.example.com)")
	}

	return nil
}
