// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arestats/tharsis/internal/models"
)

// ErrGameNotFound is returned when no ingested game exists for a table id.
var ErrGameNotFound = errors.New("game not found")

// GetGameFacts reads back the complete normalized fact set for one game.
// Collections come back in stable order (player id, then natural key).
func (db *DB) GetGameFacts(ctx context.Context, tableID int64) (*models.GameFacts, error) {
	stats, perspective, err := db.getGameStats(ctx, tableID)
	if err != nil {
		return nil, err
	}

	facts := &models.GameFacts{
		TableID:           tableID,
		PlayerPerspective: perspective,
		Stats:             *stats,
	}

	if facts.PlayerStats, err = db.getPlayerStats(ctx, tableID); err != nil {
		return nil, err
	}
	if facts.StartingHandCorporations, err = db.getStartingHandCorporations(ctx, tableID); err != nil {
		return nil, err
	}
	if facts.StartingHandPreludes, err = db.getStartingHandPreludes(ctx, tableID); err != nil {
		return nil, err
	}
	if facts.StartingHandCards, err = db.getStartingHandCards(ctx, tableID); err != nil {
		return nil, err
	}
	if facts.Milestones, err = db.getMilestones(ctx, tableID); err != nil {
		return nil, err
	}
	if facts.Awards, err = db.getAwards(ctx, tableID); err != nil {
		return nil, err
	}
	if facts.ParameterChanges, err = db.getParameterChanges(ctx, tableID); err != nil {
		return nil, err
	}
	if facts.Cards, err = db.getCards(ctx, tableID); err != nil {
		return nil, err
	}
	if facts.CityLocations, err = db.getCityLocations(ctx, tableID); err != nil {
		return nil, err
	}
	if facts.GreeneryLocations, err = db.getGreeneryLocations(ctx, tableID); err != nil {
		return nil, err
	}
	if facts.TrackerChanges, err = db.getTrackerChanges(ctx, tableID); err != nil {
		return nil, err
	}
	return facts, nil
}

// GameExists reports whether a game has been ingested.
func (db *DB) GameExists(ctx context.Context, tableID int64) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		"SELECT 1 FROM game_stats WHERE table_id = ?", tableID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check game %d: %w", tableID, err)
	}
	return true, nil
}

// ListGames returns the table ids of the most recently ingested games.
func (db *DB) ListGames(ctx context.Context, limit int) ([]int64, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx,
		"SELECT table_id FROM game_stats ORDER BY ingested_at DESC, table_id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) getGameStats(ctx context.Context, tableID int64) (*models.GameStats, int64, error) {
	var s models.GameStats
	var perspective int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT table_id, player_perspective, generations, duration_minutes,
		       player_count, winner, game_date, map, prelude_on, colonies_on,
		       corporate_era_on, draft_on, beginners_corporations_on,
		       game_speed, ingested_at
		FROM game_stats WHERE table_id = ?`, tableID).Scan(
		&s.TableID, &perspective, &s.Generations, &s.DurationMinutes,
		&s.PlayerCount, &s.Winner, &s.GameDate, &s.Map, &s.PreludeOn,
		&s.ColoniesOn, &s.CorporateEraOn, &s.DraftOn,
		&s.BeginnersCorporationsOn, &s.GameSpeed, &s.IngestedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrGameNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read game_stats for %d: %w", tableID, err)
	}
	return &s, perspective, nil
}

func (db *DB) getPlayerStats(ctx context.Context, tableID int64) ([]models.GamePlayerStats, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT table_id, player_id, player_name, corporation, final_score,
		       final_tr, award_points, milestone_points, city_points,
		       greenery_points, card_points, elo_rating, elo_delta
		FROM game_player_stats WHERE table_id = ? ORDER BY player_id`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to read game_player_stats: %w", err)
	}
	defer rows.Close()

	var out []models.GamePlayerStats
	for rows.Next() {
		var r models.GamePlayerStats
		var corporation sql.NullString
		if err := rows.Scan(&r.TableID, &r.PlayerID, &r.PlayerName, &corporation,
			&r.FinalScore, &r.FinalTR, &r.AwardPoints, &r.MilestonePoints,
			&r.CityPoints, &r.GreeneryPoints, &r.CardPoints,
			&r.EloRating, &r.EloDelta); err != nil {
			return nil, err
		}
		r.Corporation = corporation.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) getStartingHandCorporations(ctx context.Context, tableID int64) ([]models.StartingHandCorporation, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT table_id, player_id, corporation, kept
		FROM starting_hand_corporations WHERE table_id = ?
		ORDER BY player_id, corporation`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to read starting_hand_corporations: %w", err)
	}
	defer rows.Close()

	var out []models.StartingHandCorporation
	for rows.Next() {
		var r models.StartingHandCorporation
		if err := rows.Scan(&r.TableID, &r.PlayerID, &r.Corporation, &r.Kept); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) getStartingHandPreludes(ctx context.Context, tableID int64) ([]models.StartingHandPrelude, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT table_id, player_id, prelude, kept
		FROM starting_hand_preludes WHERE table_id = ?
		ORDER BY player_id, prelude`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to read starting_hand_preludes: %w", err)
	}
	defer rows.Close()

	var out []models.StartingHandPrelude
	for rows.Next() {
		var r models.StartingHandPrelude
		if err := rows.Scan(&r.TableID, &r.PlayerID, &r.Prelude, &r.Kept); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) getStartingHandCards(ctx context.Context, tableID int64) ([]models.StartingHandCard, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT table_id, player_id, card, kept
		FROM starting_hand_cards WHERE table_id = ?
		ORDER BY player_id, card`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to read starting_hand_cards: %w", err)
	}
	defer rows.Close()

	var out []models.StartingHandCard
	for rows.Next() {
		var r models.StartingHandCard
		if err := rows.Scan(&r.TableID, &r.PlayerID, &r.Card, &r.Kept); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) getMilestones(ctx context.Context, tableID int64) ([]models.GameMilestone, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT table_id, milestone, claimed_by_player_id, claimed_generation
		FROM game_milestones WHERE table_id = ? ORDER BY milestone`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to read game_milestones: %w", err)
	}
	defer rows.Close()

	var out []models.GameMilestone
	for rows.Next() {
		var r models.GameMilestone
		if err := rows.Scan(&r.TableID, &r.Milestone, &r.ClaimedByPlayerID, &r.ClaimedGeneration); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) getAwards(ctx context.Context, tableID int64) ([]models.GamePlayerAward, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT table_id, player_id, award, funded_by_player_id,
		       funded_generation, player_place, player_counter
		FROM game_player_awards WHERE table_id = ?
		ORDER BY award, player_id`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to read game_player_awards: %w", err)
	}
	defer rows.Close()

	var out []models.GamePlayerAward
	for rows.Next() {
		var r models.GamePlayerAward
		if err := rows.Scan(&r.TableID, &r.PlayerID, &r.Award, &r.FundedByPlayerID,
			&r.FundedGeneration, &r.PlayerPlace, &r.PlayerCounter); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) getParameterChanges(ctx context.Context, tableID int64) ([]models.ParameterChange, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT table_id, parameter, generation, increased_to, increased_by_player_id
		FROM parameter_changes WHERE table_id = ?
		ORDER BY parameter, increased_to`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter_changes: %w", err)
	}
	defer rows.Close()

	var out []models.ParameterChange
	for rows.Next() {
		var r models.ParameterChange
		if err := rows.Scan(&r.TableID, &r.Parameter, &r.Generation, &r.IncreasedTo, &r.IncreasedByPlayerID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) getCards(ctx context.Context, tableID int64) ([]models.GameCard, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT table_id, player_id, card, seen_gen, drawn_gen, kept_gen,
		       drafted_gen, bought_gen, played_gen, draw_type, draw_reason,
		       vp_scored
		FROM game_cards WHERE table_id = ? ORDER BY player_id, card`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to read game_cards: %w", err)
	}
	defer rows.Close()

	var out []models.GameCard
	for rows.Next() {
		var r models.GameCard
		if err := rows.Scan(&r.TableID, &r.PlayerID, &r.Card, &r.SeenGen,
			&r.DrawnGen, &r.KeptGen, &r.DraftedGen, &r.BoughtGen,
			&r.PlayedGen, &r.DrawType, &r.DrawReason, &r.VPScored); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) getCityLocations(ctx context.Context, tableID int64) ([]models.GameCityLocation, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT table_id, player_id, location, points, placed_generation
		FROM game_city_locations WHERE table_id = ?
		ORDER BY player_id, location`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to read game_city_locations: %w", err)
	}
	defer rows.Close()

	var out []models.GameCityLocation
	for rows.Next() {
		var r models.GameCityLocation
		if err := rows.Scan(&r.TableID, &r.PlayerID, &r.Location, &r.Points, &r.PlacedGeneration); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) getGreeneryLocations(ctx context.Context, tableID int64) ([]models.GameGreeneryLocation, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT table_id, player_id, location, placed_generation
		FROM game_greenery_locations WHERE table_id = ?
		ORDER BY player_id, location`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to read game_greenery_locations: %w", err)
	}
	defer rows.Close()

	var out []models.GameGreeneryLocation
	for rows.Next() {
		var r models.GameGreeneryLocation
		if err := rows.Scan(&r.TableID, &r.PlayerID, &r.Location, &r.PlacedGeneration); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) getTrackerChanges(ctx context.Context, tableID int64) ([]models.GamePlayerTrackerChange, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT table_id, player_id, tracker_type, tracker, generation, value
		FROM game_player_tracker_changes WHERE table_id = ?
		ORDER BY player_id, tracker_type, tracker, generation`, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to read game_player_tracker_changes: %w", err)
	}
	defer rows.Close()

	var out []models.GamePlayerTrackerChange
	for rows.Next() {
		var r models.GamePlayerTrackerChange
		if err := rows.Scan(&r.TableID, &r.PlayerID, &r.TrackerType, &r.Tracker, &r.Generation, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
