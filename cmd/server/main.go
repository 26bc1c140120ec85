// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

// Package main is the entry point for the Shelfwise server.
//
// Shelfwise tracks recommendation impressions and shopper feedback for a
// bookstore, maintains per-visitor preference profiles, and serves ranked
// recommendations with a trending fallback for visitors without history.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered settings from defaults, config file, and
//     environment variables (koanf v2)
//  2. Store: BadgerDB for impressions, feedback, profiles, and snapshots
//  3. Catalog: optional HTTP client that hydrates item IDs into book
//     metadata, guarded by a circuit breaker
//  4. Feed: snapshot change feed (in-process gochannel, or NATS with
//     the nats build tag)
//  5. Services: tracking, recommendation serving, trainer orchestration
//  6. Supervisor tree: store GC, WebSocket hub, feed consumer, trainer
//     scheduler, HTTP server
//
// # Configuration
//
// Configuration is loaded via koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (HTTP_PORT, STORE_PATH, JWT_SECRET, ...)
//   - Config file (CONFIG_PATH, config.yaml)
//   - Built-in defaults
//
// # Build Tags
//
//	go build -tags "nats" ./cmd/server  # Enable the NATS feed backend
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting connections, drains in-flight requests within the shutdown
// timeout, and closes the feed and store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shelfwise/shelfwise/internal/api"
	"github.com/shelfwise/shelfwise/internal/cache"
	"github.com/shelfwise/shelfwise/internal/catalog"
	"github.com/shelfwise/shelfwise/internal/config"
	"github.com/shelfwise/shelfwise/internal/feed"
	"github.com/shelfwise/shelfwise/internal/logging"
	"github.com/shelfwise/shelfwise/internal/recommend"
	"github.com/shelfwise/shelfwise/internal/store"
	"github.com/shelfwise/shelfwise/internal/supervisor"
	"github.com/shelfwise/shelfwise/internal/supervisor/services"
	"github.com/shelfwise/shelfwise/internal/tracking"
	"github.com/shelfwise/shelfwise/internal/trainer"
	ws "github.com/shelfwise/shelfwise/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("store_path", cfg.Store.Path).
		Str("feed_backend", cfg.Feed.Backend).
		Bool("catalog_enabled", cfg.Catalog.Enabled).
		Bool("trainer_enabled", cfg.Trainer.Enabled).
		Msg("Configuration loaded")

	st, err := store.Open(store.Config{
		Path:       cfg.Store.Path,
		InMemory:   cfg.Store.InMemory,
		GCInterval: cfg.Store.GCInterval,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Msg("Store opened")

	bookCache := cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries)

	// The catalog is optional; without it recommendations are served as
	// bare item IDs.
	var books recommend.BookSource
	if cfg.Catalog.Enabled {
		books = catalog.New(catalog.Config{
			BaseURL:   cfg.Catalog.BaseURL,
			APIKey:    cfg.Catalog.APIKey,
			Timeout:   cfg.Catalog.Timeout,
			RateLimit: cfg.Catalog.RateLimit,
			Burst:     cfg.Catalog.Burst,
			CacheTTL:  cfg.Catalog.CacheTTL,
		}, bookCache)
		logging.Info().Str("url", cfg.Catalog.BaseURL).Msg("Catalog client enabled")
	} else {
		logging.Info().Msg("Catalog disabled - serving bare item IDs")
	}

	changeFeed, err := buildFeed(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize feed")
	}
	defer func() {
		if err := changeFeed.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing feed")
		}
	}()

	trackingSvc := tracking.NewService(st)
	recommendSvc := recommend.NewService(st, changeFeed, books, bookCache)
	waiter := feed.NewWaiterWithCeiling(changeFeed, recommendSvc, cfg.Server.PollCeiling)

	var runner *trainer.Runner
	if cfg.Trainer.Enabled {
		var trainerBooks trainer.BookSource
		if books != nil {
			trainerBooks = books.(trainer.BookSource)
		}
		runner = trainer.NewRunner(trainer.Config{
			Command:     cfg.Trainer.Command,
			Timeout:     cfg.Trainer.Timeout,
			HistoryDays: cfg.Trainer.HistoryDays,
			MinScore:    cfg.Trainer.MinScore,
			TopK:        cfg.Trainer.TopK,
			MaxProfiles: cfg.Trainer.MaxProfiles,
		}, st, trainerBooks, recommendSvc)
		logging.Info().
			Str("command", cfg.Trainer.Command).
			Dur("interval", cfg.Trainer.Interval).
			Msg("Trainer enabled")
	} else {
		logging.Info().Msg("Trainer disabled - profiles update from feedback only")
	}

	hub := ws.NewHub()

	handler := api.NewHandler(trackingSvc, recommendSvc, trainRunner(runner), waiter, cfg.Auth.JWTSecret)
	streamHandler := api.NewStreamHandler(hub, recommendSvc, cfg.Auth.JWTSecret, cfg.Server.CORSOrigins)
	mw := api.NewChiMiddleware(&api.ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitRequests:  cfg.Server.RateLimitReqs,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
		RateLimitDisabled:  cfg.Server.RateLimitDisabled,
		AdminKeyHash:       cfg.Auth.AdminKeyHash,
	})
	router := api.NewRouter(handler, streamHandler, mw)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddDataService(store.NewGCService(st))
	tree.AddRealtimeService(hub)
	tree.AddRealtimeService(ws.NewFeedConsumer(changeFeed, hub))
	if runner != nil {
		tree.AddRealtimeService(trainer.NewScheduler(runner, cfg.Trainer.Interval))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor closes the channel.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Shelfwise stopped gracefully")
}

// buildFeed selects the snapshot feed backend. The NATS backend requires
// the nats build tag; without it NewNATS returns an error.
func buildFeed(cfg *config.Config) (feed.Broadcaster, error) {
	switch cfg.Feed.Backend {
	case config.FeedBackendNATS:
		return feed.NewNATS(feed.NATSConfig{
			URL:            cfg.Feed.NATSURL,
			EmbeddedServer: cfg.Feed.NATSEmbedded,
			EmbeddedPort:   cfg.Feed.NATSEmbeddedPort,
		})
	default:
		return feed.New(), nil
	}
}

// trainRunner converts a possibly-nil *trainer.Runner into the handler's
// TrainRunner dependency. A typed nil inside a non-nil interface would
// defeat the handler's nil check.
func trainRunner(r *trainer.Runner) api.TrainRunner {
	if r == nil {
		return nil
	}
	return r
}
