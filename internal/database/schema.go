// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

/*
schema.go - Normalized game table schema

Twelve entity tables, all keyed by table_id or (table_id, player_id). Every
row is owned exclusively by the ingestion pipeline for its table_id scope:
rows are created or overwritten only by ingesting a replay for the same game,
and deletion only happens as the first half of a replace inside the same
transaction as the re-insert.

Reconciliation per table:
  - game_stats, game_player_stats: keyed merge (upsert on primary key)
  - starting_hand_*, game_milestones, game_player_awards,
    parameter_changes: scoped replace (delete game scope, insert fresh rows)
  - game_cards, game_city_locations, game_greenery_locations,
    game_player_tracker_changes: staged bulk replace (chunked load into a
    transient staging table, then set-based delete/insert)
*/
package database

import "fmt"

// createSchema creates the twelve entity tables and their indexes.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	for _, query := range indexCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}
	return nil
}

func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS game_stats (
			table_id BIGINT PRIMARY KEY,
			player_perspective BIGINT NOT NULL,
			generations INTEGER NOT NULL,
			duration_minutes INTEGER,
			player_count INTEGER NOT NULL,
			winner TEXT,
			game_date DATE,
			map TEXT,
			prelude_on BOOLEAN NOT NULL DEFAULT false,
			colonies_on BOOLEAN NOT NULL DEFAULT false,
			corporate_era_on BOOLEAN NOT NULL DEFAULT false,
			draft_on BOOLEAN NOT NULL DEFAULT false,
			beginners_corporations_on BOOLEAN NOT NULL DEFAULT false,
			game_speed TEXT,
			ingested_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS game_player_stats (
			table_id BIGINT NOT NULL,
			player_id BIGINT NOT NULL,
			player_name TEXT NOT NULL,
			corporation TEXT,
			final_score INTEGER NOT NULL,
			final_tr INTEGER NOT NULL,
			award_points INTEGER NOT NULL DEFAULT 0,
			milestone_points INTEGER NOT NULL DEFAULT 0,
			city_points INTEGER NOT NULL DEFAULT 0,
			greenery_points INTEGER NOT NULL DEFAULT 0,
			card_points INTEGER NOT NULL DEFAULT 0,
			elo_rating DOUBLE,
			elo_delta DOUBLE,
			PRIMARY KEY (table_id, player_id)
		)`,

		`CREATE TABLE IF NOT EXISTS starting_hand_corporations (
			table_id BIGINT NOT NULL,
			player_id BIGINT NOT NULL,
			corporation TEXT NOT NULL,
			kept BOOLEAN NOT NULL DEFAULT false
		)`,

		`CREATE TABLE IF NOT EXISTS starting_hand_preludes (
			table_id BIGINT NOT NULL,
			player_id BIGINT NOT NULL,
			prelude TEXT NOT NULL,
			kept BOOLEAN NOT NULL DEFAULT false
		)`,

		`CREATE TABLE IF NOT EXISTS starting_hand_cards (
			table_id BIGINT NOT NULL,
			player_id BIGINT NOT NULL,
			card TEXT NOT NULL,
			kept BOOLEAN NOT NULL DEFAULT false
		)`,

		`CREATE TABLE IF NOT EXISTS game_milestones (
			table_id BIGINT NOT NULL,
			milestone TEXT NOT NULL,
			claimed_by_player_id BIGINT NOT NULL,
			claimed_generation INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS game_player_awards (
			table_id BIGINT NOT NULL,
			player_id BIGINT NOT NULL,
			award TEXT NOT NULL,
			funded_by_player_id BIGINT NOT NULL,
			funded_generation INTEGER NOT NULL,
			player_place INTEGER NOT NULL DEFAULT 0,
			player_counter INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS parameter_changes (
			table_id BIGINT NOT NULL,
			parameter TEXT NOT NULL,
			generation INTEGER NOT NULL,
			increased_to INTEGER NOT NULL,
			increased_by_player_id BIGINT
		)`,

		`CREATE TABLE IF NOT EXISTS game_cards (
			table_id BIGINT NOT NULL,
			player_id BIGINT NOT NULL,
			card TEXT NOT NULL,
			seen_gen INTEGER,
			drawn_gen INTEGER,
			kept_gen INTEGER,
			drafted_gen INTEGER,
			bought_gen INTEGER,
			played_gen INTEGER,
			draw_type TEXT,
			draw_reason TEXT,
			vp_scored INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS game_city_locations (
			table_id BIGINT NOT NULL,
			player_id BIGINT NOT NULL,
			location TEXT NOT NULL,
			points INTEGER NOT NULL DEFAULT 0,
			placed_generation INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS game_greenery_locations (
			table_id BIGINT NOT NULL,
			player_id BIGINT NOT NULL,
			location TEXT NOT NULL,
			placed_generation INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS game_player_tracker_changes (
			table_id BIGINT NOT NULL,
			player_id BIGINT NOT NULL,
			tracker_type TEXT NOT NULL,
			tracker TEXT NOT NULL,
			generation INTEGER NOT NULL,
			value INTEGER NOT NULL
		)`,
	}
}

func indexCreationQueries() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_shc_game ON starting_hand_corporations (table_id, player_id)`,
		`CREATE INDEX IF NOT EXISTS idx_shp_game ON starting_hand_preludes (table_id, player_id)`,
		`CREATE INDEX IF NOT EXISTS idx_shcd_game ON starting_hand_cards (table_id, player_id)`,
		`CREATE INDEX IF NOT EXISTS idx_milestones_game ON game_milestones (table_id)`,
		`CREATE INDEX IF NOT EXISTS idx_awards_game ON game_player_awards (table_id)`,
		`CREATE INDEX IF NOT EXISTS idx_params_game ON parameter_changes (table_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_game ON game_cards (table_id, player_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cities_game ON game_city_locations (table_id)`,
		`CREATE INDEX IF NOT EXISTS idx_greeneries_game ON game_greenery_locations (table_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trackers_game ON game_player_tracker_changes (table_id)`,
	}
}
