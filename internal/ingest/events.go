// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

// Package ingest is the core of the pipeline: it validates replay documents,
// extracts their normalized facts, and writes them transactionally. Two thin
// trigger adapters converge on the same core — a synchronous upload path and
// an asynchronous storage-event path consumed from NATS JetStream — so the
// idempotence and atomicity guarantees live in one place.
package ingest

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/arestats/tharsis/internal/logging"
)

// ReplayStoredEvent notifies that a raw replay document was archived. The
// async trigger adapter consumes these and re-reads the bytes from the
// replay store.
type ReplayStoredEvent struct {
	ReplayID string    `json:"replay_id"`
	Size     int       `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}

// SerializeEvent encodes a stored-replay event for the wire.
func SerializeEvent(event *ReplayStoredEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("serialize stored event: %w", err)
	}
	return data, nil
}

// DeserializeEvent decodes a stored-replay event from the wire.
func DeserializeEvent(data []byte) (*ReplayStoredEvent, error) {
	var event ReplayStoredEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("deserialize stored event: %w", err)
	}
	if event.ReplayID == "" {
		return nil, fmt.Errorf("stored event missing replay_id")
	}
	return &event, nil
}

// watermillLogger adapts the global zerolog logger to watermill's
// LoggerAdapter interface.
type watermillLogger struct {
	fields watermill.LogFields
}

// NewWatermillLogger returns a watermill logger backed by zerolog.
func NewWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{}
}

func (l *watermillLogger) event(e *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range l.fields {
		e = e.Interface(k, v)
	}
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(logging.Error().Err(err), msg, fields)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(logging.Info(), msg, fields)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(logging.Debug(), msg, fields)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(logging.Trace(), msg, fields)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &watermillLogger{fields: merged}
}
