// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package replaystore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arestats/tharsis/internal/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(&config.ReplayStoreConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	payload := []byte(`{"replay_id":"12345"}`)
	require.NoError(t, s.Put(ctx, "12345", payload))

	got, err := s.Get(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	exists, err := s.Exists(ctx, "12345")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "404")
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := s.Exists(ctx, "404")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStatLastModified(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	second := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return first }
	require.NoError(t, s.Put(ctx, "777", []byte("v1")))

	meta, err := s.Stat(ctx, "777")
	require.NoError(t, err)
	assert.Equal(t, first, meta.LastModified)
	assert.Equal(t, 2, meta.Size)

	// Re-upload refreshes the timestamp and overwrites the bytes.
	s.now = func() time.Time { return second }
	require.NoError(t, s.Put(ctx, "777", []byte("v2-longer")))

	meta, err = s.Stat(ctx, "777")
	require.NoError(t, err)
	assert.Equal(t, second, meta.LastModified)
	assert.Equal(t, 9, meta.Size)

	got, err := s.Get(ctx, "777")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2-longer"), got)
}

func TestPutHonorsContextCancellation(t *testing.T) {
	s := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Put(ctx, "1", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
