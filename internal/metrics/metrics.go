// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

// Package metrics provides Prometheus metrics for the ingestion pipeline.
//
// Metrics are exposed at /metrics in Prometheus text format. The main
// families are:
//
//   - ingest_total{trigger,status}: ingestion attempts per trigger adapter
//   - ingest_duration_seconds{trigger}: end-to-end ingestion latency
//   - ingest_rows_written_total{table}: normalized rows written per entity
//   - ingest_freshness_skips_total: async triggers skipped by the cutoff guard
//   - duckdb_query_duration_seconds{operation,table}: write-path query latency
//   - http_requests_total / http_request_duration_seconds: API traffic
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestTotal counts ingestion attempts by trigger (sync, async) and
	// outcome (ok, rejected, failed, skipped).
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_total",
			Help: "Total replay ingestion attempts",
		},
		[]string{"trigger", "status"},
	)

	// IngestDuration observes end-to-end ingestion latency per trigger.
	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "Duration of replay ingestion in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)

	// IngestRowsWritten counts normalized rows written per entity table.
	IngestRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_written_total",
			Help: "Normalized rows written per entity table",
		},
		[]string{"table"},
	)

	// FreshnessSkips counts async triggers skipped by the freshness guard.
	FreshnessSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_freshness_skips_total",
			Help: "Storage events skipped because the object predates the freshness cutoff",
		},
	)

	// DBQueryDuration observes write-path query latency.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB statements in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	// DBQueryErrors counts failed write-path statements.
	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total failed DuckDB statements",
		},
		[]string{"operation", "table"},
	)

	// HTTPRequests counts API requests.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPDuration observes API request latency.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// EventsPublished counts stored-log events published to JetStream.
	EventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total stored-log events published",
		},
	)

	// EventsConsumed counts stored-log events consumed by the async adapter.
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Total stored-log events consumed",
		},
		[]string{"status"},
	)
)

// RecordIngest records one ingestion attempt.
func RecordIngest(trigger, status string, elapsed time.Duration) {
	IngestTotal.WithLabelValues(trigger, status).Inc()
	IngestDuration.WithLabelValues(trigger).Observe(elapsed.Seconds())
}

// RecordRowsWritten records rows written for one entity table.
func RecordRowsWritten(table string, count int) {
	if count > 0 {
		IngestRowsWritten.WithLabelValues(table).Add(float64(count))
	}
}

// RecordDBQuery records one write-path statement.
func RecordDBQuery(operation, table string, elapsed time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(elapsed.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordHTTPRequest records one API request.
func RecordHTTPRequest(method, endpoint string, status int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}
