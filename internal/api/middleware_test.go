// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/arestats/tharsis/internal/metrics"
)

func TestMetricsMiddlewareRecordsStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(metricsMiddleware)
	r.Get("/widgets/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/widgets", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets/7", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Counters carry the route pattern and the numeric status as a label.
	notFound := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/widgets/{id}", "404"))
	assert.GreaterOrEqual(t, notFound, float64(1))

	ok := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/widgets", "200"))
	assert.GreaterOrEqual(t, ok, float64(1))
}

func TestStatusRecorderDefaultsToOK(t *testing.T) {
	r := chi.NewRouter()
	r.Use(metricsMiddleware)
	r.Get("/implicit", func(w http.ResponseWriter, _ *http.Request) {
		// Writing without an explicit WriteHeader implies 200.
		_, _ = w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/implicit", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	count := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/implicit", "200"))
	assert.GreaterOrEqual(t, count, float64(1))
}
