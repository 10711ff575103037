// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/arestats/tharsis/internal/config"
	"github.com/arestats/tharsis/internal/database"
	"github.com/arestats/tharsis/internal/extract"
	"github.com/arestats/tharsis/internal/logging"
	"github.com/arestats/tharsis/internal/metrics"
	"github.com/arestats/tharsis/internal/models"
	"github.com/arestats/tharsis/internal/replaystore"
	"github.com/arestats/tharsis/internal/validation"
)

// Trigger labels for metrics and logs.
const (
	TriggerSync  = "sync"
	TriggerAsync = "async"
)

// ErrStaleObject marks an async trigger skipped by the freshness guard. It
// is an intentional no-op, not a failure.
var ErrStaleObject = errors.New("stored object predates freshness cutoff")

// Service is the shared ingestion core both trigger adapters converge on.
// Each call runs validate, extract, write, in that order; nothing touches
// the database until the document has fully passed the first two stages.
type Service struct {
	extractor *extract.Extractor
	writer    *database.Writer
	store     *replaystore.Store
	guard     *FreshnessGuard
	publisher *Publisher

	publishOnUpload  bool
	storeReadTimeout time.Duration
	storeBreaker     *gobreaker.CircuitBreaker[[]byte]
}

// NewService wires the ingestion core. publisher may be nil when the event
// bus is disabled; upload archiving then still works, only the stored-event
// notification is skipped.
func NewService(cfg *config.IngestConfig, writer *database.Writer, store *replaystore.Store, publisher *Publisher) *Service {
	readTimeout := cfg.StoreReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	return &Service{
		extractor: extract.New(extract.Options{KeepRule: cfg.KeepRule}),
		writer:    writer,
		store:     store,
		guard:     NewFreshnessGuard(cfg.FreshnessCutoff, nil),
		publisher: publisher,

		publishOnUpload:  cfg.PublishOnUpload,
		storeReadTimeout: readTimeout,
		storeBreaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "replay-store-read",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// IngestUpload is the synchronous trigger adapter: it deserializes and
// validates raw uploaded bytes, archives them in the replay store, ingests
// the document, and optionally publishes a stored-log event.
func (s *Service) IngestUpload(ctx context.Context, raw []byte) (*models.IngestReceipt, error) {
	start := time.Now()

	doc, err := decodeDocument(raw)
	if err != nil {
		metrics.RecordIngest(TriggerSync, "rejected", time.Since(start))
		return nil, err
	}

	archived := false
	if s.store != nil {
		if err := s.store.Put(ctx, doc.ReplayID, raw); err != nil {
			metrics.RecordIngest(TriggerSync, "failed", time.Since(start))
			return nil, fmt.Errorf("failed to archive replay %s: %w", doc.ReplayID, err)
		}
		archived = true
	}

	receipt, err := s.ingest(ctx, doc, TriggerSync, start)
	if err != nil {
		return nil, err
	}
	receipt.Archived = archived

	if archived && s.publishOnUpload && s.publisher != nil {
		event := &ReplayStoredEvent{
			ReplayID: doc.ReplayID,
			Size:     len(raw),
			StoredAt: time.Now().UTC(),
		}
		if err := s.publisher.PublishStored(ctx, event); err != nil {
			// The upload already ingested synchronously; a failed
			// notification must not fail the call.
			logging.Warn().Err(err).Str("replay_id", doc.ReplayID).Msg("Failed to publish stored event")
		}
	}
	return receipt, nil
}

// IngestStored is the asynchronous trigger adapter: given a stored-replay
// notification, it applies the freshness guard, reads the archived bytes
// through the circuit breaker, and runs the shared core. Returns
// ErrStaleObject when the guard skips the object.
func (s *Service) IngestStored(ctx context.Context, event *ReplayStoredEvent) (*models.IngestReceipt, error) {
	start := time.Now()

	meta, err := s.store.Stat(ctx, event.ReplayID)
	if err != nil {
		metrics.RecordIngest(TriggerAsync, "failed", time.Since(start))
		return nil, fmt.Errorf("failed to stat replay %s: %w", event.ReplayID, err)
	}
	if !s.guard.Fresh(meta.LastModified) {
		metrics.FreshnessSkips.Inc()
		metrics.RecordIngest(TriggerAsync, "skipped", time.Since(start))
		logging.Info().
			Str("replay_id", event.ReplayID).
			Time("last_modified", meta.LastModified).
			Msg("Skipping stale stored replay")
		return nil, ErrStaleObject
	}

	readCtx, cancel := context.WithTimeout(ctx, s.storeReadTimeout)
	defer cancel()
	raw, err := s.storeBreaker.Execute(func() ([]byte, error) {
		return s.store.Get(readCtx, event.ReplayID)
	})
	if err != nil {
		metrics.RecordIngest(TriggerAsync, "failed", time.Since(start))
		return nil, fmt.Errorf("failed to read replay %s: %w", event.ReplayID, err)
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		metrics.RecordIngest(TriggerAsync, "rejected", time.Since(start))
		return nil, err
	}
	return s.ingest(ctx, doc, TriggerAsync, start)
}

// ingest runs extract-then-write for one validated document.
func (s *Service) ingest(ctx context.Context, doc *models.ReplayLog, trigger string, start time.Time) (*models.IngestReceipt, error) {
	facts, err := s.extractor.Extract(doc)
	if err != nil {
		metrics.RecordIngest(trigger, "rejected", time.Since(start))
		return nil, err
	}

	if err := s.writer.SaveGameFacts(ctx, facts); err != nil {
		metrics.RecordIngest(trigger, "failed", time.Since(start))
		return nil, err
	}

	metrics.RecordIngest(trigger, "ok", time.Since(start))
	return &models.IngestReceipt{
		TableID:           facts.TableID,
		PlayerPerspective: facts.PlayerPerspective,
		Players:           len(facts.PlayerStats),
		CardsWritten:      len(facts.Cards),
	}, nil
}

// decodeDocument deserializes and validates one replay document.
func decodeDocument(raw []byte) (*models.ReplayLog, error) {
	var doc models.ReplayLog
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, validation.NewRequestValidationError("body", fmt.Sprintf("document is not valid JSON: %v", err))
	}
	if verr := validation.ValidateStruct(&doc); verr != nil {
		return nil, verr
	}
	return &doc, nil
}

// IsRejection reports whether an ingestion error was a document rejection
// (validation or extraction failure) as opposed to a write failure.
func IsRejection(err error) bool {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		return true
	}
	var xerr *extract.Error
	return errors.As(err, &xerr)
}
