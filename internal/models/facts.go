// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package models

import "time"

// GameStats is the per-game summary row. One row per TableID, reconciled by
// keyed merge.
type GameStats struct {
	TableID         int64      `json:"table_id"`
	Generations     int        `json:"generations"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	PlayerCount     int        `json:"player_count"`
	Winner          *string    `json:"winner,omitempty"`
	GameDate        *time.Time `json:"game_date,omitempty"`

	Map                     string `json:"map,omitempty"`
	PreludeOn               bool   `json:"prelude_on"`
	ColoniesOn              bool   `json:"colonies_on"`
	CorporateEraOn          bool   `json:"corporate_era_on"`
	DraftOn                 bool   `json:"draft_on"`
	BeginnersCorporationsOn bool   `json:"beginners_corporations_on"`
	GameSpeed               string `json:"game_speed,omitempty"`

	IngestedAt time.Time `json:"ingested_at"`
}

// GamePlayerStats is the per-player summary row. One row per
// (TableID, PlayerID), reconciled by keyed merge.
type GamePlayerStats struct {
	TableID     int64  `json:"table_id"`
	PlayerID    int64  `json:"player_id"`
	PlayerName  string `json:"player_name"`
	Corporation string `json:"corporation,omitempty"`

	FinalScore int `json:"final_score"`
	FinalTR    int `json:"final_tr"`

	AwardPoints     int `json:"award_points"`
	MilestonePoints int `json:"milestone_points"`
	CityPoints      int `json:"city_points"`
	GreeneryPoints  int `json:"greenery_points"`
	CardPoints      int `json:"card_points"`

	EloRating *float64 `json:"elo_rating,omitempty"`
	EloDelta  *float64 `json:"elo_delta,omitempty"`
}

// StartingHandCorporation is one corporation option shown to a player at
// game start. Scope-replaced per (TableID, PlayerID).
type StartingHandCorporation struct {
	TableID     int64  `json:"table_id"`
	PlayerID    int64  `json:"player_id"`
	Corporation string `json:"corporation"`
	Kept        bool   `json:"kept"`
}

// StartingHandPrelude is one prelude option shown to a player at game start.
// Scope-replaced per (TableID, PlayerID).
type StartingHandPrelude struct {
	TableID  int64  `json:"table_id"`
	PlayerID int64  `json:"player_id"`
	Prelude  string `json:"prelude"`
	Kept     bool   `json:"kept"`
}

// StartingHandCard is one project-card option shown to a player at game
// start. Scope-replaced per (TableID, PlayerID).
type StartingHandCard struct {
	TableID  int64  `json:"table_id"`
	PlayerID int64  `json:"player_id"`
	Card     string `json:"card"`
	Kept     bool   `json:"kept"`
}

// GameMilestone records one claimed milestone. Scope-replaced per game.
type GameMilestone struct {
	TableID           int64  `json:"table_id"`
	Milestone         string `json:"milestone"`
	ClaimedByPlayerID int64  `json:"claimed_by_player_id"`
	ClaimedGeneration int    `json:"claimed_generation"`
}

// GamePlayerAward records one player's final standing on a funded award.
// Scope-replaced per game. PlayerCounter is the value the award is judged on
// and feeds VP computation downstream.
type GamePlayerAward struct {
	TableID          int64  `json:"table_id"`
	PlayerID         int64  `json:"player_id"`
	Award            string `json:"award"`
	FundedByPlayerID int64  `json:"funded_by_player_id"`
	FundedGeneration int    `json:"funded_generation"`
	PlayerPlace      int    `json:"player_place"`
	PlayerCounter    int    `json:"player_counter"`
}

// ParameterChange records one strictly-increasing global parameter step.
// Scope-replaced per game.
type ParameterChange struct {
	TableID             int64  `json:"table_id"`
	Parameter           string `json:"parameter"`
	Generation          int    `json:"generation"`
	IncreasedTo         int    `json:"increased_to"`
	IncreasedByPlayerID *int64 `json:"increased_by_player_id,omitempty"`
}

// GameCard is the per-(player, card) lifecycle row. Each lifecycle milestone
// holds the generation at which it was first observed. Staged-bulk-replaced
// per game.
type GameCard struct {
	TableID  int64  `json:"table_id"`
	PlayerID int64  `json:"player_id"`
	Card     string `json:"card"`

	SeenGen    *int `json:"seen_gen,omitempty"`
	DrawnGen   *int `json:"drawn_gen,omitempty"`
	KeptGen    *int `json:"kept_gen,omitempty"`
	DraftedGen *int `json:"drafted_gen,omitempty"`
	BoughtGen  *int `json:"bought_gen,omitempty"`
	PlayedGen  *int `json:"played_gen,omitempty"`

	DrawType   *string `json:"draw_type,omitempty"`
	DrawReason *string `json:"draw_reason,omitempty"`
	VPScored   *int    `json:"vp_scored,omitempty"`
}

// GameCityLocation is one placed city tile. Staged-bulk-replaced per game.
type GameCityLocation struct {
	TableID          int64  `json:"table_id"`
	PlayerID         int64  `json:"player_id"`
	Location         string `json:"location"`
	Points           int    `json:"points"`
	PlacedGeneration int    `json:"placed_generation"`
}

// GameGreeneryLocation is one placed greenery tile. Staged-bulk-replaced per
// game.
type GameGreeneryLocation struct {
	TableID          int64  `json:"table_id"`
	PlayerID         int64  `json:"player_id"`
	Location         string `json:"location"`
	PlacedGeneration int    `json:"placed_generation"`
}

// GamePlayerTrackerChange records the post-change value of one per-player
// counter in one generation. Staged-bulk-replaced per game.
type GamePlayerTrackerChange struct {
	TableID     int64  `json:"table_id"`
	PlayerID    int64  `json:"player_id"`
	TrackerType string `json:"tracker_type"` // tag, production, resource
	Tracker     string `json:"tracker"`
	Generation  int    `json:"generation"`
	Value       int    `json:"value"`
}

// GameFacts bundles the twelve fact collections extracted from one
// ReplayLog. The transactional writer applies all of them inside one
// database transaction.
type GameFacts struct {
	TableID           int64 `json:"table_id"`
	PlayerPerspective int64 `json:"player_perspective"`

	Stats       GameStats         `json:"stats"`
	PlayerStats []GamePlayerStats `json:"player_stats"`

	StartingHandCorporations []StartingHandCorporation `json:"starting_hand_corporations"`
	StartingHandPreludes     []StartingHandPrelude     `json:"starting_hand_preludes"`
	StartingHandCards        []StartingHandCard        `json:"starting_hand_cards"`

	Milestones       []GameMilestone   `json:"milestones"`
	Awards           []GamePlayerAward `json:"awards"`
	ParameterChanges []ParameterChange `json:"parameter_changes"`

	Cards             []GameCard                `json:"cards"`
	CityLocations     []GameCityLocation        `json:"city_locations"`
	GreeneryLocations []GameGreeneryLocation    `json:"greenery_locations"`
	TrackerChanges    []GamePlayerTrackerChange `json:"tracker_changes"`
}
