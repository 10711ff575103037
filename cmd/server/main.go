// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

// Package main is the entry point for the Tharsis server.
//
// Tharsis ingests Terraforming Mars replay logs and normalizes them into
// relational fact tables in DuckDB. A replay can arrive two ways:
//
//   - Synchronously: POST /api/v1/replays archives the raw document and
//     writes all fact tables before responding.
//   - Asynchronously: a replay-stored event on the NATS JetStream stream
//     triggers re-ingestion of the archived document, guarded by a
//     freshness cutoff.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered sources (defaults, config.yaml, env)
//  2. Database: DuckDB with the twelve fact tables
//  3. Replay store: BadgerDB archive of raw replay documents
//  4. NATS (optional): embedded JetStream server, stream provisioning,
//     publisher, and subscriber
//  5. HTTP server: chi router with the upload and read-back endpoints
//
// Everything long-running is placed under a suture supervision tree and
// shut down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arestats/tharsis/internal/api"
	"github.com/arestats/tharsis/internal/config"
	"github.com/arestats/tharsis/internal/database"
	"github.com/arestats/tharsis/internal/ingest"
	"github.com/arestats/tharsis/internal/logging"
	"github.com/arestats/tharsis/internal/replaystore"
	"github.com/arestats/tharsis/internal/supervisor"
	"github.com/arestats/tharsis/internal/supervisor/services"
)

func main() {
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
		Str("db_path", cfg.Database.Path).
		Str("replay_store", cfg.ReplayStore.Path).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Str("keep_rule", cfg.Ingest.KeepRule).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer closeQuietly("database", db.Close)
	logging.Info().Msg("Database initialized")

	store, err := replaystore.New(&cfg.ReplayStore)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open replay store")
	}
	defer closeQuietly("replay store", store.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer := database.NewWriter(db, cfg.Ingest.BulkChunkSize)

	// NATS wiring is optional. Without it the async trigger path is off and
	// uploads are the only way in.
	var (
		publisher  *ingest.Publisher
		subscriber *ingest.Subscriber
		embedded   *ingest.EmbeddedServer
		natsURL    string
	)
	if cfg.NATS.Enabled {
		natsURL = cfg.NATS.URL
		if cfg.NATS.EmbeddedServer {
			embedded, err = ingest.NewEmbeddedServer(&cfg.NATS)
			if err != nil {
				logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
			}
			natsURL = embedded.ClientURL()
			logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
			defer shutdownEmbedded(embedded)
		}

		if err := ingest.EnsureStream(ctx, &cfg.NATS, natsURL); err != nil {
			logging.Fatal().Err(err).Msg("Failed to provision event stream")
		}
		logging.Info().
			Str("stream", cfg.NATS.StreamName).
			Str("subject", cfg.NATS.Subject).
			Msg("Event stream ready")

		publisher, err = ingest.NewPublisher(&cfg.NATS, natsURL, ingest.NewWatermillLogger())
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create event publisher")
		}
		defer closeQuietly("publisher", publisher.Close)
	}

	service := ingest.NewService(&cfg.Ingest, writer, store, publisher)

	if cfg.NATS.Enabled {
		subscriber, err = ingest.NewSubscriber(&cfg.NATS, natsURL, service, cfg.Ingest.EventsPerSecond, ingest.NewWatermillLogger())
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create event subscriber")
		}
		defer closeQuietly("subscriber", subscriber.Close)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewServer(cfg, db, service).Routes(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	slogLogger := slog.New(logging.NewSlogHandler())
	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())

	if subscriber != nil {
		tree.AddEventService(services.NewSubscriberService(subscriber))
		logging.Info().
			Str("durable", cfg.NATS.DurableName).
			Str("queue_group", cfg.NATS.QueueGroup).
			Msg("Replay subscriber added to supervisor tree")
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server added to supervisor tree")

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

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped gracefully")
}

func closeQuietly(name string, closer func() error) {
	if err := closer(); err != nil {
		logging.Error().Err(err).Str("component", name).Msg("Error during close")
	}
}

func shutdownEmbedded(srv *ingest.EmbeddedServer) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("Error shutting down embedded NATS server")
	}
}
