// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

// Package replaystore archives raw replay documents in BadgerDB, keyed by
// replay id. The store keeps the exact uploaded bytes plus a metadata record
// carrying the last-modified timestamp the async trigger's freshness guard
// depends on.
package replaystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/arestats/tharsis/internal/config"
	"github.com/arestats/tharsis/internal/logging"
)

// Key prefixes for BadgerDB storage.
const (
	replayKeyPrefix = "replay:"
	metaKeyPrefix   = "replay_meta:"
)

// ErrNotFound is returned when no replay is archived under the given id.
var ErrNotFound = errors.New("replay not found")

// Meta is the per-object metadata record.
type Meta struct {
	ReplayID     string    `json:"replay_id"`
	Size         int       `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Store is a BadgerDB-backed raw replay archive.
type Store struct {
	db     *badger.DB
	now    func() time.Time
	stopGC chan struct{}
}

// badgerLogger adapts the global zerolog logger to badger's Logger interface.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Msgf("badger: "+format, args...)
}
func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Msgf("badger: "+format, args...)
}
func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+format, args...)
}
func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Trace().Msgf("badger: "+format, args...)
}

// New opens the replay store and starts the value-log GC loop.
func New(cfg *config.ReplayStoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(badgerLogger{})
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay store: %w", err)
	}

	s := &Store{db: db, now: time.Now, stopGC: make(chan struct{})}

	gcInterval := cfg.GCInterval
	if gcInterval <= 0 {
		gcInterval = 10 * time.Minute
	}
	if !cfg.InMemory {
		go s.gcLoop(gcInterval)
	}
	return s, nil
}

// Close stops the GC loop and closes the underlying database.
func (s *Store) Close() error {
	close(s.stopGC)
	return s.db.Close()
}

// Put archives the raw bytes of one replay and stamps its metadata with the
// current time. Re-uploading the same id overwrites both records.
func (s *Store) Put(ctx context.Context, replayID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	meta := Meta{
		ReplayID:     replayID,
		Size:         len(data),
		LastModified: s.now().UTC(),
	}
	metaBytes, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("marshal replay meta: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(replayKeyPrefix+replayID), data); err != nil {
			return fmt.Errorf("set replay: %w", err)
		}
		if err := txn.Set([]byte(metaKeyPrefix+replayID), metaBytes); err != nil {
			return fmt.Errorf("set replay meta: %w", err)
		}
		return nil
	})
}

// Get returns the archived bytes for one replay.
func (s *Store) Get(ctx context.Context, replayID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(replayKeyPrefix + replayID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get replay: %w", err)
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Stat returns the metadata record for one replay.
func (s *Store) Stat(ctx context.Context, replayID string) (*Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var meta Meta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaKeyPrefix + replayID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get replay meta: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// Exists reports whether a replay is archived under the given id.
func (s *Store) Exists(ctx context.Context, replayID string) (bool, error) {
	_, err := s.Stat(ctx, replayID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// gcLoop runs badger's value-log garbage collection periodically.
func (s *Store) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to collect.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logging.Warn().Err(err).Msg("Replay store GC failed")
			}
		}
	}
}
