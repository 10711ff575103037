// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/arestats/tharsis/internal/database"
	"github.com/arestats/tharsis/internal/ingest"
	"github.com/arestats/tharsis/internal/logging"
	"github.com/arestats/tharsis/internal/models"
	"github.com/arestats/tharsis/internal/validation"
)

// Health reports liveness. It fails when the database connection is gone.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database unreachable", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, 0)
}

// UploadReplay is the synchronous trigger: it archives the raw document,
// normalizes it, and writes all fact tables before responding.
func (s *Server) UploadReplay(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.API.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE",
				"request body exceeds the configured limit", nil)
			return
		}
		respondError(w, http.StatusBadRequest, "BODY_READ_FAILED", "failed to read request body", nil)
		return
	}

	receipt, err := s.service.IngestUpload(r.Context(), body)
	if err != nil {
		if ingest.IsRejection(err) {
			respondError(w, http.StatusBadRequest, "INVALID_REPLAY", err.Error(), rejectionDetails(err))
			return
		}
		logging.Error().Err(err).Msg("Replay upload failed")
		respondError(w, http.StatusInternalServerError, "INGEST_FAILED", "failed to ingest replay", nil)
		return
	}

	respondJSON(w, http.StatusOK, receipt, time.Since(start).Milliseconds())
}

// ListGames returns the table IDs of ingested games, most recent first.
func (s *Server) ListGames(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			respondError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 1000", nil)
			return
		}
		limit = n
	}

	games, err := s.db.ListGames(r.Context(), limit)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list games")
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "failed to list games", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"games": games,
		"count": len(games),
	}, time.Since(start).Milliseconds())
}

// GetGame returns the full normalized fact set for one game.
func (s *Server) GetGame(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	tableID, err := strconv.ParseInt(chi.URLParam(r, "tableID"), 10, 64)
	if err != nil || tableID <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_TABLE_ID", "table ID must be a positive integer", nil)
		return
	}

	facts, err := s.db.GetGameFacts(r.Context(), tableID)
	if err != nil {
		if errors.Is(err, database.ErrGameNotFound) {
			respondError(w, http.StatusNotFound, "GAME_NOT_FOUND", "game not found", nil)
			return
		}
		logging.Error().Err(err).Int64("table_id", tableID).Msg("Failed to load game facts")
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "failed to load game", nil)
		return
	}

	respondJSON(w, http.StatusOK, facts, time.Since(start).Milliseconds())
}

// rejectionDetails extracts structured field errors when the rejection came
// from document validation.
func rejectionDetails(err error) map[string]interface{} {
	var ve *validation.RequestValidationError
	if errors.As(err, &ve) {
		return ve.Details()
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}, queryTimeMS int64) {
	resp := models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: queryTimeMS,
		},
	}
	writeResponse(w, status, &resp)
}

func respondError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	resp := models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
	writeResponse(w, status, &resp)
}

func writeResponse(w http.ResponseWriter, status int, resp *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}
