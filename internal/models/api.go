// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package models

import "time"

// APIResponse is the envelope for all HTTP API responses.
type APIResponse struct {
	Status   string      `json:"status"` // success or error
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries per-response bookkeeping.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is the structured error body returned on failures.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// IngestReceipt reports the outcome of a synchronous replay upload.
type IngestReceipt struct {
	TableID           int64 `json:"table_id"`
	PlayerPerspective int64 `json:"player_perspective"`
	Players           int   `json:"players"`
	CardsWritten      int   `json:"cards_written"`
	Archived          bool  `json:"archived"`
}
