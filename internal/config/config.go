// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

// Package config holds all application configuration loaded from defaults,
// an optional YAML file, and environment variables, in that precedence order
// (env highest). Configuration is immutable after Load and safe for
// concurrent reads.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the ingestion service.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	NATS        NATSConfig        `koanf:"nats"`
	ReplayStore ReplayStoreConfig `koanf:"replay_store"`
	Ingest      IngestConfig      `koanf:"ingest"`
	API         APIConfig         `koanf:"api"`
	Security    SecurityConfig    `koanf:"security"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`       // DuckDB file path; ":memory:" for in-memory
	MaxMemory string `koanf:"max_memory"` // DuckDB memory_limit pragma, e.g. "2GB"
	Threads   int    `koanf:"threads"`    // 0 = use runtime.NumCPU()
}

// NATSConfig holds JetStream event-bus settings. When EmbeddedServer is true
// the process runs its own nats-server and connects to it over the loopback
// URL; otherwise URL points at an external server.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	StreamName    string        `koanf:"stream_name"`
	Subject       string        `koanf:"subject"`
	DurableName   string        `koanf:"durable_name"`
	QueueGroup    string        `koanf:"queue_group"`
	AckWaitPeriod time.Duration `koanf:"ack_wait_period"`
	RetentionDays int           `koanf:"retention_days"`
}

// ReplayStoreConfig holds settings for the Badger-backed raw replay archive.
type ReplayStoreConfig struct {
	Path       string        `koanf:"path"`
	InMemory   bool          `koanf:"in_memory"` // test use
	GCInterval time.Duration `koanf:"gc_interval"`
}

// IngestConfig holds settings for the ingestion core and its trigger
// adapters.
type IngestConfig struct {
	// FreshnessCutoff bounds how old a stored replay may be, relative to
	// its archive timestamp, before the async adapter skips it. Zero
	// disables the guard.
	FreshnessCutoff time.Duration `koanf:"freshness_cutoff"`

	// KeepRule selects how starting-hand keep flags are derived:
	// "explicit" trusts the document's kept lists and falls back to
	// derivation when they are absent; "derived" always reconstructs keeps
	// from the move list.
	KeepRule string `koanf:"keep_rule"`

	// PublishOnUpload controls whether synchronous uploads also emit a
	// stored-log event after archiving.
	PublishOnUpload bool `koanf:"publish_on_upload"`

	// EventsPerSecond throttles the async adapter. Zero means unlimited.
	EventsPerSecond float64 `koanf:"events_per_second"`

	// StoreReadTimeout bounds a single replay-store read on the async path.
	StoreReadTimeout time.Duration `koanf:"store_read_timeout"`

	// BulkChunkSize is the number of rows per multi-row INSERT when
	// staging high-volume tables.
	BulkChunkSize int `koanf:"bulk_chunk_size"`
}

// APIConfig holds HTTP API behavior settings.
type APIConfig struct {
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
	RateLimitReqs   int           `koanf:"rate_limit_requests"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// SecurityConfig holds authentication settings. When JWTSecret is empty the
// API runs open, which is only appropriate behind a trusted proxy.
type SecurityConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"`
}

// validKeepRules enumerates accepted ingest.keep_rule values.
var validKeepRules = map[string]bool{
	"explicit": true,
	"derived":  true,
}

// Validate checks the configuration for internal consistency. It is called
// by Load after all layers are applied.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if !validKeepRules[c.Ingest.KeepRule] {
		return fmt.Errorf("ingest.keep_rule must be explicit or derived, got %q", c.Ingest.KeepRule)
	}
	if c.Ingest.FreshnessCutoff < 0 {
		return fmt.Errorf("ingest.freshness_cutoff must not be negative, got %s", c.Ingest.FreshnessCutoff)
	}
	if c.Ingest.BulkChunkSize < 1 {
		return fmt.Errorf("ingest.bulk_chunk_size must be at least 1, got %d", c.Ingest.BulkChunkSize)
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
			return fmt.Errorf("nats.url is required when nats is enabled without an embedded server")
		}
		if c.NATS.StreamName == "" {
			return fmt.Errorf("nats.stream_name is required when nats is enabled")
		}
		if c.NATS.Subject == "" {
			return fmt.Errorf("nats.subject is required when nats is enabled")
		}
	}
	if c.ReplayStore.Path == "" && !c.ReplayStore.InMemory {
		return fmt.Errorf("replay_store.path is required unless replay_store.in_memory is set")
	}
	if c.API.MaxBodyBytes < 1 {
		return fmt.Errorf("api.max_body_bytes must be positive, got %d", c.API.MaxBodyBytes)
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
