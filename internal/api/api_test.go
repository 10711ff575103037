// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arestats/tharsis/internal/config"
	"github.com/arestats/tharsis/internal/database"
	"github.com/arestats/tharsis/internal/ingest"
	"github.com/arestats/tharsis/internal/models"
	"github.com/arestats/tharsis/internal/replaystore"
)

const uploadBody = `{
	"replay_id": "12345",
	"player_perspective": "1",
	"game_duration": "0:45:00",
	"generations": 9,
	"players": {
		"1": {"player_id": "1", "player_name": "red", "corporation": "Helion", "final_vp": 70, "final_tr": 33},
		"2": {"player_id": "2", "player_name": "blue", "corporation": "Thorgate", "final_vp": 64, "final_tr": 29}
	},
	"moves": [
		{"move_number": 1, "generation": 3, "player_id": "1", "action": "claim_milestone", "milestone": "Mayor"}
	]
}`

func testServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.API.MaxBodyBytes = 1 << 20
	cfg.API.RateLimitReqs = 1000
	cfg.API.RateLimitWindow = time.Minute
	cfg.API.CORSOrigins = []string{"*"}
	if mutate != nil {
		mutate(cfg)
	}

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	store, err := replaystore.New(&config.ReplayStoreConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	svc := ingest.NewService(&config.IngestConfig{
		KeepRule:         "explicit",
		StoreReadTimeout: 5 * time.Second,
		BulkChunkSize:    100,
	}, database.NewWriter(db, 100), store, nil)

	srv := httptest.NewServer(NewServer(cfg, db, svc).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func decodeResponse(t *testing.T, resp *http.Response) *models.APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out models.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return &out
}

func TestHealthz(t *testing.T) {
	srv := testServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body := decodeResponse(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body.Status)
}

func TestUploadAndGetGame(t *testing.T) {
	srv := testServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/v1/replays", "application/json", strings.NewReader(uploadBody))
	require.NoError(t, err)
	body := decodeResponse(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body.Status)

	data, ok := body.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(12345), data["table_id"])
	assert.Equal(t, float64(2), data["players"])
	assert.Equal(t, true, data["archived"])

	resp, err = http.Get(srv.URL + "/api/v1/games/12345")
	require.NoError(t, err)
	body = decodeResponse(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	facts, ok := body.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(12345), facts["table_id"])
}

func TestUploadRejectsInvalidDocument(t *testing.T) {
	srv := testServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/v1/replays", "application/json",
		strings.NewReader(`{"player_perspective":"1","players":{"1":{"player_id":"1"}}}`))
	require.NoError(t, err)
	body := decodeResponse(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "INVALID_REPLAY", body.Error.Code)
	assert.NotEmpty(t, body.Error.Details)
}

func TestUploadBodyTooLarge(t *testing.T) {
	srv := testServer(t, func(cfg *config.Config) {
		cfg.API.MaxBodyBytes = 16
	})

	resp, err := http.Post(srv.URL+"/api/v1/replays", "application/json", strings.NewReader(uploadBody))
	require.NoError(t, err)
	body := decodeResponse(t, resp)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "BODY_TOO_LARGE", body.Error.Code)
}

func TestGetGameNotFound(t *testing.T) {
	srv := testServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/v1/games/99999")
	require.NoError(t, err)
	body := decodeResponse(t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "GAME_NOT_FOUND", body.Error.Code)
}

func TestGetGameInvalidID(t *testing.T) {
	srv := testServer(t, nil)

	for _, id := range []string{"abc", "-5", "0"} {
		resp, err := http.Get(srv.URL + "/api/v1/games/" + id)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "id %q", id)
	}
}

func TestListGames(t *testing.T) {
	srv := testServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/v1/replays", "application/json", strings.NewReader(uploadBody))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/games?limit=10")
	require.NoError(t, err)
	body := decodeResponse(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, ok := body.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["count"])

	resp, err = http.Get(srv.URL + "/api/v1/games?limit=0")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBearerAuth(t *testing.T) {
	secret := "test-secret-for-auth"
	srv := testServer(t, func(cfg *config.Config) {
		cfg.Security.JWTSecret = secret
	})

	// No token.
	resp, err := http.Get(srv.URL + "/api/v1/games")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Garbage token.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/games", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid token.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/api/v1/games", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health endpoint stays open.
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
