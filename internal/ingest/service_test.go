// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arestats/tharsis/internal/config"
	"github.com/arestats/tharsis/internal/database"
	"github.com/arestats/tharsis/internal/replaystore"
)

// uploadPayload is a minimal but complete two-player document.
const uploadPayload = `{
	"replay_id": "12345",
	"player_perspective": "1",
	"game_duration": "1:23:45",
	"generations": 7,
	"players": {
		"1": {"player_id": "1", "player_name": "red", "corporation": "Helion", "final_vp": 61, "final_tr": 30},
		"2": {"player_id": "2", "player_name": "blue", "corporation": "Ecoline", "final_vp": 55, "final_tr": 28}
	},
	"moves": [
		{"move_number": 1, "generation": 4, "player_id": "1", "action": "claim_milestone", "milestone": "Terraformer"},
		{"move_number": 2, "generation": 6, "player_id": "2", "action": "fund_award", "award": "Banker"}
	]
}`

func testService(t *testing.T) (*Service, *database.DB, *replaystore.Store) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	store, err := replaystore.New(&config.ReplayStoreConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	svc := NewService(&config.IngestConfig{
		FreshnessCutoff:  24 * time.Hour,
		KeepRule:         "explicit",
		StoreReadTimeout: 5 * time.Second,
		BulkChunkSize:    100,
	}, database.NewWriter(db, 100), store, nil)

	return svc, db, store
}

func TestIngestUpload(t *testing.T) {
	svc, db, store := testService(t)
	ctx := context.Background()

	receipt, err := svc.IngestUpload(ctx, []byte(uploadPayload))
	require.NoError(t, err)

	assert.Equal(t, int64(12345), receipt.TableID)
	assert.Equal(t, int64(1), receipt.PlayerPerspective)
	assert.Equal(t, 2, receipt.Players)
	assert.True(t, receipt.Archived)

	// The raw bytes are archived verbatim.
	raw, err := store.Get(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, []byte(uploadPayload), raw)

	facts, err := db.GetGameFacts(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, 7, facts.Stats.Generations)
	require.Len(t, facts.Milestones, 1)
	assert.Equal(t, 4, facts.Milestones[0].ClaimedGeneration)
	require.Len(t, facts.Awards, 1)
	assert.Equal(t, int64(2), facts.Awards[0].PlayerID)
}

func TestIngestUploadIdempotent(t *testing.T) {
	svc, db, _ := testService(t)
	ctx := context.Background()

	_, err := svc.IngestUpload(ctx, []byte(uploadPayload))
	require.NoError(t, err)
	first, err := db.GetGameFacts(ctx, 12345)
	require.NoError(t, err)

	_, err = svc.IngestUpload(ctx, []byte(uploadPayload))
	require.NoError(t, err)
	second, err := db.GetGameFacts(ctx, 12345)
	require.NoError(t, err)

	// IngestedAt advances between runs; everything else must be identical.
	second.Stats.IngestedAt = first.Stats.IngestedAt
	assert.Equal(t, first, second)
}

func TestIngestUploadRejectsInvalidDocuments(t *testing.T) {
	svc, db, _ := testService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{{{`},
		{name: "missing replay id", body: `{"player_perspective":"1","players":{"1":{"player_id":"1"}}}`},
		{name: "no players", body: `{"replay_id":"12345","player_perspective":"1","players":{}}`},
		{
			name: "perspective not in players",
			body: `{"replay_id":"12345","player_perspective":"9","players":{"1":{"player_id":"1","player_name":"red"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.IngestUpload(ctx, []byte(tt.body))
			require.Error(t, err)
			assert.True(t, IsRejection(err), "expected rejection, got %v", err)
		})
	}

	// Rejections never write.
	_, err := db.GetGameFacts(ctx, 12345)
	assert.ErrorIs(t, err, database.ErrGameNotFound)
}

func TestIngestStored(t *testing.T) {
	svc, db, store := testService(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "12345", []byte(uploadPayload)))

	receipt, err := svc.IngestStored(ctx, &ReplayStoredEvent{ReplayID: "12345"})
	require.NoError(t, err)
	assert.Equal(t, int64(12345), receipt.TableID)

	facts, err := db.GetGameFacts(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, 7, facts.Stats.Generations)
}

func TestIngestStoredFreshnessGuard(t *testing.T) {
	svc, db, store := testService(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "12345", []byte(uploadPayload)))

	// Move the guard's clock far past the archive timestamp: the object is
	// now older than the cutoff window and must be skipped with zero writes.
	svc.guard = NewFreshnessGuard(24*time.Hour, func() time.Time {
		return time.Now().Add(48 * time.Hour)
	})

	_, err := svc.IngestStored(ctx, &ReplayStoredEvent{ReplayID: "12345"})
	require.ErrorIs(t, err, ErrStaleObject)

	_, err = db.GetGameFacts(ctx, 12345)
	assert.ErrorIs(t, err, database.ErrGameNotFound)
}

func TestIngestStoredMissingObject(t *testing.T) {
	svc, _, _ := testService(t)

	_, err := svc.IngestStored(context.Background(), &ReplayStoredEvent{ReplayID: "404"})
	require.Error(t, err)
	assert.False(t, IsRejection(err))
}

func TestDeserializeEvent(t *testing.T) {
	event := &ReplayStoredEvent{ReplayID: "12345", Size: 10, StoredAt: time.Now().UTC()}
	data, err := SerializeEvent(event)
	require.NoError(t, err)

	got, err := DeserializeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, event.ReplayID, got.ReplayID)

	_, err = DeserializeEvent([]byte(`{}`))
	assert.Error(t, err)

	_, err = DeserializeEvent([]byte(`not json`))
	assert.Error(t, err)
}
