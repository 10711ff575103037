// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/arestats/tharsis/internal/logging"
	"github.com/arestats/tharsis/internal/metrics"
	"github.com/arestats/tharsis/internal/models"
)

// Table names of the twelve entity tables, in write order. game_stats and
// game_player_stats come first because the remaining tables logically depend
// on the game and its players existing; the other ten do not reference each
// other and follow in a fixed order.
const (
	TableGameStats           = "game_stats"
	TableGamePlayerStats     = "game_player_stats"
	TableStartingHandCorps   = "starting_hand_corporations"
	TableStartingHandPrel    = "starting_hand_preludes"
	TableStartingHandCards   = "starting_hand_cards"
	TableGameMilestones      = "game_milestones"
	TableGamePlayerAwards    = "game_player_awards"
	TableParameterChanges    = "parameter_changes"
	TableGameCards           = "game_cards"
	TableGameCityLocations   = "game_city_locations"
	TableGameGreeneryLocs    = "game_greenery_locations"
	TableGameTrackerChanges  = "game_player_tracker_changes"
)

// Writer applies all twelve fact collections for one game inside exactly one
// database transaction. On any error the whole transaction is rolled back
// and the error is returned: ingestion of one game is indivisible.
type Writer struct {
	db        *DB
	chunkSize int

	// beforeApply, when set, runs before each table's strategy. Tests use
	// it to force mid-transaction failures.
	beforeApply func(table string) error
}

// NewWriter returns a Writer. chunkSize bounds the rows per multi-row INSERT
// on the staged bulk path.
func NewWriter(db *DB, chunkSize int) *Writer {
	if chunkSize < 1 {
		chunkSize = 500
	}
	return &Writer{db: db, chunkSize: chunkSize}
}

// tableApply binds one entity table to its reconciliation strategy.
type tableApply struct {
	table string
	rows  int
	apply func(ctx context.Context, tx *sql.Tx) error
}

// SaveGameFacts writes one game's complete fact set. Re-ingesting an
// unchanged document is a no-op with respect to final stored state: the
// summary tables merge by key and every other table is fully replaced within
// its game scope.
func (w *Writer) SaveGameFacts(ctx context.Context, facts *models.GameFacts) error {
	start := time.Now()

	tx, err := w.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				logging.Warn().Err(rbErr).Int64("table_id", facts.TableID).Msg("Rollback failed")
			}
		}
	}()

	for _, step := range w.applyOrder(facts) {
		if w.beforeApply != nil {
			if err := w.beforeApply(step.table); err != nil {
				return fmt.Errorf("write to %s aborted: %w", step.table, err)
			}
		}
		stepStart := time.Now()
		err := step.apply(ctx, tx)
		metrics.RecordDBQuery("sync", step.table, time.Since(stepStart), err)
		if err != nil {
			return err
		}
		metrics.RecordRowsWritten(step.table, step.rows)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit game %d: %w", facts.TableID, err)
	}
	committed = true

	logging.Info().
		Int64("table_id", facts.TableID).
		Int64("player_perspective", facts.PlayerPerspective).
		Int("players", len(facts.PlayerStats)).
		Int("cards", len(facts.Cards)).
		Dur("elapsed", time.Since(start)).
		Msg("Game facts committed")
	return nil
}

// applyOrder returns the twelve strategy applications in their fixed order.
func (w *Writer) applyOrder(f *models.GameFacts) []tableApply {
	id := f.TableID
	return []tableApply{
		{TableGameStats, 1, func(ctx context.Context, tx *sql.Tx) error {
			return keyedMerge(ctx, tx, TableGameStats, gameStatsColumns, []string{"table_id"},
				[][]interface{}{gameStatsRow(f.PlayerPerspective, &f.Stats)})
		}},
		{TableGamePlayerStats, len(f.PlayerStats), func(ctx context.Context, tx *sql.Tx) error {
			return keyedMerge(ctx, tx, TableGamePlayerStats, playerStatsColumns,
				[]string{"table_id", "player_id"}, playerStatsRows(f.PlayerStats))
		}},
		{TableStartingHandCorps, len(f.StartingHandCorporations), func(ctx context.Context, tx *sql.Tx) error {
			return scopedReplace(ctx, tx, TableStartingHandCorps, id,
				startingHandColumns("corporation"), corpRows(f.StartingHandCorporations))
		}},
		{TableStartingHandPrel, len(f.StartingHandPreludes), func(ctx context.Context, tx *sql.Tx) error {
			return scopedReplace(ctx, tx, TableStartingHandPrel, id,
				startingHandColumns("prelude"), preludeRows(f.StartingHandPreludes))
		}},
		{TableStartingHandCards, len(f.StartingHandCards), func(ctx context.Context, tx *sql.Tx) error {
			return scopedReplace(ctx, tx, TableStartingHandCards, id,
				startingHandColumns("card"), handCardRows(f.StartingHandCards))
		}},
		{TableGameMilestones, len(f.Milestones), func(ctx context.Context, tx *sql.Tx) error {
			return scopedReplace(ctx, tx, TableGameMilestones, id, milestoneColumns, milestoneRows(f.Milestones))
		}},
		{TableGamePlayerAwards, len(f.Awards), func(ctx context.Context, tx *sql.Tx) error {
			return scopedReplace(ctx, tx, TableGamePlayerAwards, id, awardColumns, awardRows(f.Awards))
		}},
		{TableParameterChanges, len(f.ParameterChanges), func(ctx context.Context, tx *sql.Tx) error {
			return scopedReplace(ctx, tx, TableParameterChanges, id, parameterColumns, parameterRows(f.ParameterChanges))
		}},
		{TableGameCards, len(f.Cards), func(ctx context.Context, tx *sql.Tx) error {
			return stagedBulkReplace(ctx, tx, TableGameCards, id, cardColumns, cardRows(f.Cards), w.chunkSize)
		}},
		{TableGameCityLocations, len(f.CityLocations), func(ctx context.Context, tx *sql.Tx) error {
			return stagedBulkReplace(ctx, tx, TableGameCityLocations, id, cityColumns, cityRows(f.CityLocations), w.chunkSize)
		}},
		{TableGameGreeneryLocs, len(f.GreeneryLocations), func(ctx context.Context, tx *sql.Tx) error {
			return stagedBulkReplace(ctx, tx, TableGameGreeneryLocs, id, greeneryColumns, greeneryRows(f.GreeneryLocations), w.chunkSize)
		}},
		{TableGameTrackerChanges, len(f.TrackerChanges), func(ctx context.Context, tx *sql.Tx) error {
			return stagedBulkReplace(ctx, tx, TableGameTrackerChanges, id, trackerColumns, trackerRows(f.TrackerChanges), w.chunkSize)
		}},
	}
}

// Column lists and row builders. Column order must match the row builders.

var gameStatsColumns = []string{
	"table_id", "player_perspective", "generations", "duration_minutes",
	"player_count", "winner", "game_date", "map", "prelude_on", "colonies_on",
	"corporate_era_on", "draft_on", "beginners_corporations_on", "game_speed",
	"ingested_at",
}

func gameStatsRow(perspective int64, s *models.GameStats) []interface{} {
	return []interface{}{
		s.TableID, perspective, s.Generations, s.DurationMinutes,
		s.PlayerCount, s.Winner, s.GameDate, s.Map, s.PreludeOn, s.ColoniesOn,
		s.CorporateEraOn, s.DraftOn, s.BeginnersCorporationsOn, s.GameSpeed,
		s.IngestedAt,
	}
}

var playerStatsColumns = []string{
	"table_id", "player_id", "player_name", "corporation", "final_score",
	"final_tr", "award_points", "milestone_points", "city_points",
	"greenery_points", "card_points", "elo_rating", "elo_delta",
}

func playerStatsRows(rows []models.GamePlayerStats) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{
			r.TableID, r.PlayerID, r.PlayerName, r.Corporation, r.FinalScore,
			r.FinalTR, r.AwardPoints, r.MilestonePoints, r.CityPoints,
			r.GreeneryPoints, r.CardPoints, r.EloRating, r.EloDelta,
		}
	}
	return out
}

func startingHandColumns(option string) []string {
	return []string{"table_id", "player_id", option, "kept"}
}

func corpRows(rows []models.StartingHandCorporation) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{r.TableID, r.PlayerID, r.Corporation, r.Kept}
	}
	return out
}

func preludeRows(rows []models.StartingHandPrelude) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{r.TableID, r.PlayerID, r.Prelude, r.Kept}
	}
	return out
}

func handCardRows(rows []models.StartingHandCard) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{r.TableID, r.PlayerID, r.Card, r.Kept}
	}
	return out
}

var milestoneColumns = []string{"table_id", "milestone", "claimed_by_player_id", "claimed_generation"}

func milestoneRows(rows []models.GameMilestone) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{r.TableID, r.Milestone, r.ClaimedByPlayerID, r.ClaimedGeneration}
	}
	return out
}

var awardColumns = []string{
	"table_id", "player_id", "award", "funded_by_player_id",
	"funded_generation", "player_place", "player_counter",
}

func awardRows(rows []models.GamePlayerAward) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{
			r.TableID, r.PlayerID, r.Award, r.FundedByPlayerID,
			r.FundedGeneration, r.PlayerPlace, r.PlayerCounter,
		}
	}
	return out
}

var parameterColumns = []string{"table_id", "parameter", "generation", "increased_to", "increased_by_player_id"}

func parameterRows(rows []models.ParameterChange) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{r.TableID, r.Parameter, r.Generation, r.IncreasedTo, r.IncreasedByPlayerID}
	}
	return out
}

var cardColumns = []string{
	"table_id", "player_id", "card", "seen_gen", "drawn_gen", "kept_gen",
	"drafted_gen", "bought_gen", "played_gen", "draw_type", "draw_reason",
	"vp_scored",
}

func cardRows(rows []models.GameCard) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{
			r.TableID, r.PlayerID, r.Card, r.SeenGen, r.DrawnGen, r.KeptGen,
			r.DraftedGen, r.BoughtGen, r.PlayedGen, r.DrawType, r.DrawReason,
			r.VPScored,
		}
	}
	return out
}

var cityColumns = []string{"table_id", "player_id", "location", "points", "placed_generation"}

func cityRows(rows []models.GameCityLocation) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{r.TableID, r.PlayerID, r.Location, r.Points, r.PlacedGeneration}
	}
	return out
}

var greeneryColumns = []string{"table_id", "player_id", "location", "placed_generation"}

func greeneryRows(rows []models.GameGreeneryLocation) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{r.TableID, r.PlayerID, r.Location, r.PlacedGeneration}
	}
	return out
}

var trackerColumns = []string{"table_id", "player_id", "tracker_type", "tracker", "generation", "value"}

func trackerRows(rows []models.GamePlayerTrackerChange) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = []interface{}{r.TableID, r.PlayerID, r.TrackerType, r.Tracker, r.Generation, r.Value}
	}
	return out
}
