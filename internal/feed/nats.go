// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

//go:build nats

package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsServer "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/shelfwise/shelfwise/internal/logging"
)

// NATSConfig holds the NATS change feed transport configuration.
type NATSConfig struct {
	// URL is the NATS server address.
	URL string

	// EmbeddedServer starts an in-process nats-server instead of
	// connecting to an external one.
	EmbeddedServer bool

	// EmbeddedPort is the port for the embedded server. Default: 4222.
	EmbeddedPort int
}

// NATSFeed is the Broadcaster transport for multi-process deployments:
// several serving processes share one change feed so a snapshot written by
// any of them reaches every connected subscriber.
type NATSFeed struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	server     *natsServer.Server
}

// NewNATS creates a NATS-backed change feed, optionally starting an
// embedded server first.
func NewNATS(cfg NATSConfig) (Broadcaster, error) {
	logger := NewWatermillLogger()

	var srv *natsServer.Server
	if cfg.EmbeddedServer {
		port := cfg.EmbeddedPort
		if port == 0 {
			port = 4222
		}

		var err error
		srv, err = natsServer.NewServer(&natsServer.Options{
			Host: "127.0.0.1",
			Port: port,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedded nats server: %w", err)
		}

		go srv.Start()
		if !srv.ReadyForConnections(10 * time.Second) {
			srv.Shutdown()
			return nil, fmt.Errorf("embedded nats server not ready")
		}
		cfg.URL = srv.ClientURL()

		logging.Info().Str("url", cfg.URL).Msg("embedded nats server started")
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	// Core NATS, no JetStream: the change feed is fire-and-forget fanout;
	// snapshots are durable in the store, not the feed.
	jsConfig := wmNats.JetStreamConfig{Disabled: true}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   jsConfig,
	}, logger)
	if err != nil {
		shutdownEmbedded(srv)
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Unmarshaler: &wmNats.NATSMarshaler{},
		JetStream:   jsConfig,
	}, logger)
	if err != nil {
		_ = pub.Close()
		shutdownEmbedded(srv)
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}

	return &NATSFeed{
		publisher:  pub,
		subscriber: sub,
		server:     srv,
	}, nil
}

func shutdownEmbedded(srv *natsServer.Server) {
	if srv != nil {
		srv.Shutdown()
	}
}

// Publish emits a snapshot update to the shared feed.
func (f *NATSFeed) Publish(ctx context.Context, update SnapshotUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal snapshot update: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(metadataKey, update.Key)

	if err := f.publisher.Publish(TopicSnapshotUpdated, msg); err != nil {
		return fmt.Errorf("publish snapshot update: %w", err)
	}
	return nil
}

// Subscribe delivers every snapshot update until ctx is canceled.
func (f *NATSFeed) Subscribe(ctx context.Context) (<-chan SnapshotUpdate, error) {
	return f.subscribe(ctx, "")
}

// SubscribeKey delivers snapshot updates for one identity key.
func (f *NATSFeed) SubscribeKey(ctx context.Context, key string) (<-chan SnapshotUpdate, error) {
	return f.subscribe(ctx, key)
}

func (f *NATSFeed) subscribe(ctx context.Context, key string) (<-chan SnapshotUpdate, error) {
	msgs, err := f.subscriber.Subscribe(ctx, TopicSnapshotUpdated)
	if err != nil {
		return nil, fmt.Errorf("subscribe to change feed: %w", err)
	}

	out := make(chan SnapshotUpdate, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			update, err := decodeUpdate(msg, key)
			msg.Ack()
			if err != nil || update == nil {
				continue
			}

			select {
			case out <- *update:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close shuts down the transport and the embedded server if one was
// started.
func (f *NATSFeed) Close() error {
	err := f.publisher.Close()
	if subErr := f.subscriber.Close(); err == nil {
		err = subErr
	}
	shutdownEmbedded(f.server)
	return err
}
