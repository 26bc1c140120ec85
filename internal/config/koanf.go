// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/shelfwise/config.yaml",
	"/etc/shelfwise/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. These are the
// lowest-priority layer, overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			Host:              "0.0.0.0",
			Timeout:           30 * time.Second,
			Environment:       "development",
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			PollCeiling:       25 * time.Second,
		},
		Store: StoreConfig{
			Path:       "/data/shelfwise",
			InMemory:   false,
			GCInterval: 10 * time.Minute,
		},
		Cache: CacheConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 4096,
		},
		Catalog: CatalogConfig{
			Enabled:   false, // serving degrades to bare item IDs without it
			BaseURL:   "",
			APIKey:    "",
			Timeout:   5 * time.Second,
			RateLimit: 20,
			Burst:     10,
			CacheTTL:  5 * time.Minute,
		},
		Feed: FeedConfig{
			Backend:          FeedBackendGoChannel,
			NATSURL:          "nats://127.0.0.1:4222",
			NATSEmbedded:     false,
			NATSEmbeddedPort: 4222,
		},
		Trainer: TrainerConfig{
			Enabled:     false, // opt-in: requires an external trainer binary
			Command:     "",
			Interval:    24 * time.Hour,
			Timeout:     10 * time.Minute,
			HistoryDays: 90,
			MinScore:    0,
			TopK:        25,
			MaxProfiles: 10000,
		},
		Auth: AuthConfig{
			JWTSecret:    "",
			AdminKeyHash: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
//
// Precedence is ENV > file > defaults. The result is validated before
// being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HTTP_PORT -> server.port, TRAINER_COMMAND -> trainer.command, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are the config paths parsed as comma-separated slices
// when supplied through environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice when it came from the YAML file.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped, which keeps unrelated
// environment noise out of the configuration.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - STORE_PATH -> store.path
//   - TRAINER_COMMAND -> trainer.command
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_port":           "server.port",
		"http_host":           "server.host",
		"http_timeout":        "server.timeout",
		"environment":         "server.environment",
		"cors_origins":        "server.cors_origins",
		"rate_limit_requests": "server.rate_limit_reqs",
		"rate_limit_window":   "server.rate_limit_window",
		"disable_rate_limit":  "server.rate_limit_disabled",
		"poll_ceiling":        "server.poll_ceiling",

		// Store mappings
		"store_path":        "store.path",
		"store_in_memory":   "store.in_memory",
		"store_gc_interval": "store.gc_interval",

		// Cache mappings
		"cache_ttl":         "cache.ttl",
		"cache_max_entries": "cache.max_entries",

		// Catalog mappings
		"catalog_enabled":    "catalog.enabled",
		"catalog_url":        "catalog.base_url",
		"catalog_api_key":    "catalog.api_key",
		"catalog_timeout":    "catalog.timeout",
		"catalog_rate_limit": "catalog.rate_limit",
		"catalog_burst":      "catalog.burst",
		"catalog_cache_ttl":  "catalog.cache_ttl",

		// Feed mappings
		"feed_backend":       "feed.backend",
		"nats_url":           "feed.nats_url",
		"nats_embedded":      "feed.nats_embedded",
		"nats_embedded_port": "feed.nats_embedded_port",

		// Trainer mappings
		"trainer_enabled":      "trainer.enabled",
		"trainer_command":      "trainer.command",
		"trainer_interval":     "trainer.interval",
		"trainer_timeout":      "trainer.timeout",
		"trainer_history_days": "trainer.history_days",
		"trainer_min_score":    "trainer.min_score",
		"trainer_top_k":        "trainer.top_k",
		"trainer_max_profiles": "trainer.max_profiles",

		// Auth mappings
		"jwt_secret":         "auth.jwt_secret",
		"admin_api_key_hash": "auth.admin_key_hash",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}
