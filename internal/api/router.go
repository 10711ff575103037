// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

// Package api provides the HTTP surface of the ingestion service using the
// chi router: the synchronous upload trigger, read-back of normalized games,
// health, and Prometheus metrics.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arestats/tharsis/internal/config"
	"github.com/arestats/tharsis/internal/database"
	"github.com/arestats/tharsis/internal/ingest"
)

// Server holds the handler dependencies.
type Server struct {
	cfg     *config.Config
	db      *database.DB
	service *ingest.Service
}

// NewServer wires the HTTP handlers.
func NewServer(cfg *config.Config, db *database.DB, service *ingest.Service) *Server {
	return &Server{cfg: cfg, db: db, service: service}
}

// Routes configures all HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.API.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.cfg.API.RateLimitReqs, s.cfg.API.RateLimitWindow))
		r.Use(metricsMiddleware)
		if s.cfg.Security.JWTSecret != "" {
			r.Use(bearerAuth(s.cfg.Security.JWTSecret))
		}

		r.Post("/replays", s.UploadReplay)
		r.Get("/games", s.ListGames)
		r.Get("/games/{tableID}", s.GetGame)
	})

	return r
}
