// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

// Package models defines the replay-log input contract and the normalized
// fact rows produced by ingestion.
package models

import (
	"fmt"
	"strconv"
)

// Move action types observed in exported replay logs.
const (
	ActionDrawCard       = "draw_card"
	ActionBuyCard        = "buy_card"
	ActionDraftCard      = "draft_card"
	ActionKeepCard       = "keep_card"
	ActionDiscardCard    = "discard_card"
	ActionPlayCard       = "play_card"
	ActionPlaceTile      = "place_tile"
	ActionClaimMilestone = "claim_milestone"
	ActionFundAward      = "fund_award"
	ActionRaiseParameter = "raise_parameter"
)

// Tile types carried by place_tile moves.
const (
	TileCity     = "city"
	TileGreenery = "greenery"
)

// Global parameter names.
const (
	ParameterTemperature = "temperature"
	ParameterOxygen      = "oxygen"
	ParameterOceans      = "oceans"
)

// Tracker types recorded for per-player counters.
const (
	TrackerTag        = "tag"
	TrackerProduction = "production"
	TrackerResource   = "resource"
)

// ReplayLog is one game's exported replay log from one player's viewpoint.
// It is the validated input contract of the ingestion pipeline: the boundary
// layer deserializes raw bytes into this struct and validates field presence
// before the document reaches the extractor.
type ReplayLog struct {
	ReplayID          string `json:"replay_id" validate:"required,number"`
	PlayerPerspective string `json:"player_perspective" validate:"required,number"`

	GameDate     string `json:"game_date,omitempty"`     // YYYY-MM-DD
	GameDuration string `json:"game_duration,omitempty"` // H:MM:SS
	Winner       string `json:"winner,omitempty"`        // player name
	Generations  int    `json:"generations,omitempty"`

	// Map and variant flags.
	Map                     string `json:"map,omitempty"`
	PreludeOn               bool   `json:"prelude_on"`
	ColoniesOn              bool   `json:"colonies_on"`
	CorporateEraOn          bool   `json:"corporate_era_on"`
	DraftOn                 bool   `json:"draft_on"`
	BeginnersCorporationsOn bool   `json:"beginners_corporations_on"`
	GameSpeed               string `json:"game_speed,omitempty"`

	// Players maps player-id (decimal digits) to the per-player summary.
	Players map[string]*PlayerSummary `json:"players" validate:"required,min=1,dive,required"`

	// Moves is the ordered move list for the whole game.
	Moves []Move `json:"moves"`

	FinalState           *FinalState                `json:"final_state,omitempty"`
	ParameterProgression map[string][]ParameterStep `json:"parameter_progression,omitempty"`
}

// TableID parses the replay identifier into the numeric game key shared by
// all derived tables. The identifier must be a positive decimal integer.
func (r *ReplayLog) TableID() (int64, error) {
	id, err := strconv.ParseInt(r.ReplayID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("replay_id %q is not a valid integer: %w", r.ReplayID, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("replay_id %q must be positive", r.ReplayID)
	}
	return id, nil
}

// PerspectiveID parses the perspective player identifier.
func (r *ReplayLog) PerspectiveID() (int64, error) {
	id, err := strconv.ParseInt(r.PlayerPerspective, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("player_perspective %q is not a valid integer: %w", r.PlayerPerspective, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("player_perspective %q must be positive", r.PlayerPerspective)
	}
	return id, nil
}

// PlayerSummary carries one player's end-of-game summary as exported by the
// replay source.
type PlayerSummary struct {
	PlayerID    string `json:"player_id"`
	PlayerName  string `json:"player_name"`
	Corporation string `json:"corporation,omitempty"`
	FinalVP     int    `json:"final_vp"`
	FinalTR     int    `json:"final_tr"`

	VPBreakdown *VPBreakdown `json:"vp_breakdown,omitempty"`

	CardsPlayed       []string `json:"cards_played,omitempty"`
	MilestonesClaimed []string `json:"milestones_claimed,omitempty"`
	AwardsFunded      []string `json:"awards_funded,omitempty"`

	StartingHand *StartingHand `json:"starting_hand,omitempty"`
	EloData      *EloData      `json:"elo_data,omitempty"`
}

// StartingHand lists the options presented to a player at game start.
// The *Kept lists are optional; when absent the kept flag is derived from
// the chosen corporation, the played preludes, and the bought cards.
type StartingHand struct {
	Corporations     []string `json:"corporations,omitempty"`
	CorporationsKept []string `json:"corporations_kept,omitempty"`
	Preludes         []string `json:"preludes,omitempty"`
	PreludesKept     []string `json:"preludes_kept,omitempty"`
	Cards            []string `json:"cards,omitempty"`
	CardsKept        []string `json:"cards_kept,omitempty"`
}

// VPBreakdown is the tagged per-category victory point breakdown. The source
// exports this as a free-form nested object; only the named categories are
// carried here.
type VPBreakdown struct {
	Total      int `json:"total"`
	TR         int `json:"tr"`
	Awards     int `json:"awards"`
	Milestones int `json:"milestones"`
	Cities     int `json:"cities"`
	Greeneries int `json:"greeneries"`
	Cards      int `json:"cards"`
}

// EloData is the optional per-player rating block.
type EloData struct {
	Rating float64 `json:"rating"`
	Delta  float64 `json:"delta,omitempty"`
	Rank   int     `json:"rank,omitempty"`
}

// Move is a single entry of the ordered move list.
type Move struct {
	MoveNumber int   `json:"move_number"`
	Timestamp  int64 `json:"timestamp,omitempty"` // unix seconds
	Generation int   `json:"generation,omitempty"`

	PlayerID string `json:"player_id"`
	Action   string `json:"action"`

	Card      string `json:"card,omitempty"`
	Tile      string `json:"tile,omitempty"`
	Location  string `json:"location,omitempty"`
	Parameter string `json:"parameter,omitempty"`
	Milestone string `json:"milestone,omitempty"`
	Award     string `json:"award,omitempty"`

	Cost       *int   `json:"cost,omitempty"`
	VP         *int   `json:"vp,omitempty"`
	DrawType   string `json:"draw_type,omitempty"`
	DrawReason string `json:"draw_reason,omitempty"`

	// GameState is an optional embedded snapshot taken after the move.
	GameState *GameState `json:"game_state,omitempty"`
}

// GameState is an embedded board snapshot.
type GameState struct {
	Generation  int                     `json:"generation"`
	Temperature int                     `json:"temperature"`
	Oxygen      int                     `json:"oxygen"`
	Oceans      int                     `json:"oceans"`
	Players     map[string]*PlayerState `json:"players,omitempty"`
}

// PlayerState carries per-player tracker values within a snapshot.
type PlayerState struct {
	Tags       map[string]int `json:"tags,omitempty"`
	Production map[string]int `json:"production,omitempty"`
	Resources  map[string]int `json:"resources,omitempty"`
}

// FinalState is the optional end-of-game block.
type FinalState struct {
	Generation  int `json:"generation,omitempty"`
	Temperature int `json:"temperature"`
	Oxygen      int `json:"oxygen"`
	Oceans      int `json:"oceans"`

	Milestones map[string]*MilestoneResult `json:"milestones,omitempty"`
	Awards     map[string]*AwardResult     `json:"awards,omitempty"`

	Players map[string]*FinalPlayerState `json:"players,omitempty"`
}

// MilestoneResult records who claimed a milestone and when.
type MilestoneResult struct {
	ClaimedBy  string `json:"claimed_by"`
	Generation int    `json:"generation"`
}

// AwardResult records who funded an award, when, and the final standings.
type AwardResult struct {
	FundedBy   string          `json:"funded_by"`
	Generation int             `json:"generation"`
	Standings  []AwardStanding `json:"standings,omitempty"`
}

// AwardStanding is one player's final place for a funded award. Counter is
// the numeric value the award is judged on (e.g. tag count).
type AwardStanding struct {
	PlayerID string `json:"player_id"`
	Place    int    `json:"place"`
	Counter  int    `json:"counter"`
}

// FinalPlayerState carries the end-of-game VP breakdown and tracker values
// for one player.
type FinalPlayerState struct {
	VPBreakdown *VPBreakdown   `json:"vp_breakdown,omitempty"`
	Tags        map[string]int `json:"tags,omitempty"`
	Production  map[string]int `json:"production,omitempty"`
	Resources   map[string]int `json:"resources,omitempty"`
}

// ParameterStep is one entry of a parameter progression series.
type ParameterStep struct {
	Generation int    `json:"generation"`
	Value      int    `json:"value"`
	PlayerID   string `json:"player_id,omitempty"`
}
