// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package extract

import (
	"sort"
	"strconv"

	"github.com/arestats/tharsis/internal/models"
)

// extractMilestones prefers the final-state milestone map and falls back to
// claim moves when the block is absent.
func extractMilestones(doc *models.ReplayLog, tableID int64) ([]models.GameMilestone, error) {
	var rows []models.GameMilestone

	if doc.FinalState != nil && len(doc.FinalState.Milestones) > 0 {
		for name, result := range doc.FinalState.Milestones {
			if result == nil {
				continue
			}
			claimedBy, err := parsePlayerID(result.ClaimedBy)
			if err != nil {
				return nil, errf("final_state.milestones", "milestone %q has invalid claimed_by %q", name, result.ClaimedBy)
			}
			rows = append(rows, models.GameMilestone{
				TableID:           tableID,
				Milestone:         name,
				ClaimedByPlayerID: claimedBy,
				ClaimedGeneration: result.Generation,
			})
		}
	} else {
		for _, move := range doc.Moves {
			if move.Action != models.ActionClaimMilestone || move.Milestone == "" {
				continue
			}
			claimedBy, err := parsePlayerID(move.PlayerID)
			if err != nil {
				return nil, errf("moves", "claim of %q has invalid player %q", move.Milestone, move.PlayerID)
			}
			rows = append(rows, models.GameMilestone{
				TableID:           tableID,
				Milestone:         move.Milestone,
				ClaimedByPlayerID: claimedBy,
				ClaimedGeneration: move.Generation,
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Milestone < rows[j].Milestone })
	return rows, nil
}

// extractAwards produces one row per (award, standing player). An award with
// no recorded standings yields a single row for the funder so the funding
// event itself is never lost. Falls back to fund moves when the final-state
// block is absent.
func extractAwards(doc *models.ReplayLog, tableID int64) ([]models.GamePlayerAward, error) {
	var rows []models.GamePlayerAward

	if doc.FinalState != nil && len(doc.FinalState.Awards) > 0 {
		for name, result := range doc.FinalState.Awards {
			if result == nil {
				continue
			}
			fundedBy, err := parsePlayerID(result.FundedBy)
			if err != nil {
				return nil, errf("final_state.awards", "award %q has invalid funded_by %q", name, result.FundedBy)
			}
			if len(result.Standings) == 0 {
				rows = append(rows, models.GamePlayerAward{
					TableID:          tableID,
					PlayerID:         fundedBy,
					Award:            name,
					FundedByPlayerID: fundedBy,
					FundedGeneration: result.Generation,
				})
				continue
			}
			for _, standing := range result.Standings {
				playerID, err := parsePlayerID(standing.PlayerID)
				if err != nil {
					return nil, errf("final_state.awards", "award %q standing has invalid player %q", name, standing.PlayerID)
				}
				rows = append(rows, models.GamePlayerAward{
					TableID:          tableID,
					PlayerID:         playerID,
					Award:            name,
					FundedByPlayerID: fundedBy,
					FundedGeneration: result.Generation,
					PlayerPlace:      standing.Place,
					PlayerCounter:    standing.Counter,
				})
			}
		}
	} else {
		for _, move := range doc.Moves {
			if move.Action != models.ActionFundAward || move.Award == "" {
				continue
			}
			fundedBy, err := parsePlayerID(move.PlayerID)
			if err != nil {
				return nil, errf("moves", "funding of %q has invalid player %q", move.Award, move.PlayerID)
			}
			rows = append(rows, models.GamePlayerAward{
				TableID:          tableID,
				PlayerID:         fundedBy,
				Award:            move.Award,
				FundedByPlayerID: fundedBy,
				FundedGeneration: move.Generation,
			})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Award != rows[j].Award {
			return rows[i].Award < rows[j].Award
		}
		return rows[i].PlayerID < rows[j].PlayerID
	})
	return rows, nil
}

// extractParameterChanges records one row per strictly-increasing step of
// each global parameter. The explicit progression block is preferred; when
// absent, increases are recovered by diffing embedded game-state snapshots.
// Unchanged or decreasing observations are dropped.
func extractParameterChanges(doc *models.ReplayLog, tableID int64) []models.ParameterChange {
	var rows []models.ParameterChange

	if len(doc.ParameterProgression) > 0 {
		for parameter, steps := range doc.ParameterProgression {
			last := -1 << 31
			for _, step := range steps {
				if step.Value <= last {
					continue
				}
				last = step.Value
				row := models.ParameterChange{
					TableID:     tableID,
					Parameter:   parameter,
					Generation:  step.Generation,
					IncreasedTo: step.Value,
				}
				if id, err := parsePlayerID(step.PlayerID); err == nil {
					row.IncreasedByPlayerID = &id
				}
				rows = append(rows, row)
			}
		}
	} else {
		rows = parameterChangesFromSnapshots(doc, tableID)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Parameter != rows[j].Parameter {
			return rows[i].Parameter < rows[j].Parameter
		}
		return rows[i].IncreasedTo < rows[j].IncreasedTo
	})
	return rows
}

func parameterChangesFromSnapshots(doc *models.ReplayLog, tableID int64) []models.ParameterChange {
	var rows []models.ParameterChange
	last := map[string]int{}
	seen := map[string]bool{}

	record := func(parameter string, value, generation int, actor string) {
		if seen[parameter] && value <= last[parameter] {
			return
		}
		if seen[parameter] {
			row := models.ParameterChange{
				TableID:     tableID,
				Parameter:   parameter,
				Generation:  generation,
				IncreasedTo: value,
			}
			if id, err := parsePlayerID(actor); err == nil {
				row.IncreasedByPlayerID = &id
			}
			rows = append(rows, row)
		}
		// The first snapshot establishes the baseline; a game's starting
		// values are not increases.
		seen[parameter] = true
		last[parameter] = value
	}

	for _, move := range doc.Moves {
		state := move.GameState
		if state == nil {
			continue
		}
		generation := state.Generation
		if generation == 0 {
			generation = move.Generation
		}
		record(models.ParameterTemperature, state.Temperature, generation, move.PlayerID)
		record(models.ParameterOxygen, state.Oxygen, generation, move.PlayerID)
		record(models.ParameterOceans, state.Oceans, generation, move.PlayerID)
	}
	return rows
}

// cardLifecycle accumulates first-observed generations for one (player, card)
// pair while scanning the move list.
type cardLifecycle struct {
	row models.GameCard
}

// extractCards produces one row per (player, card) observed anywhere in that
// player's card lifecycle. Each lifecycle milestone holds the generation at
// which it was first observed; later observations never overwrite it.
func extractCards(doc *models.ReplayLog, tableID int64, players []resolvedPlayer) []models.GameCard {
	byKey := map[string]*cardLifecycle{}
	var order []string

	lookup := func(playerKey, card string) *cardLifecycle {
		id, err := parsePlayerID(playerKey)
		if err != nil {
			return nil
		}
		key := playerKey + "\x00" + card
		lc, ok := byKey[key]
		if !ok {
			lc = &cardLifecycle{row: models.GameCard{TableID: tableID, PlayerID: id, Card: card}}
			byKey[key] = lc
			order = append(order, key)
		}
		return lc
	}

	setOnce := func(slot **int, generation int) {
		if *slot == nil {
			g := generation
			*slot = &g
		}
	}

	for i := range doc.Moves {
		move := &doc.Moves[i]
		if move.Card == "" || move.PlayerID == "" {
			continue
		}
		lc := lookup(move.PlayerID, move.Card)
		if lc == nil {
			continue
		}
		setOnce(&lc.row.SeenGen, move.Generation)

		switch move.Action {
		case models.ActionDrawCard:
			setOnce(&lc.row.DrawnGen, move.Generation)
			if lc.row.DrawType == nil && move.DrawType != "" {
				t := move.DrawType
				lc.row.DrawType = &t
			}
			if lc.row.DrawReason == nil && move.DrawReason != "" {
				r := move.DrawReason
				lc.row.DrawReason = &r
			}
		case models.ActionKeepCard:
			setOnce(&lc.row.KeptGen, move.Generation)
		case models.ActionDraftCard:
			setOnce(&lc.row.DraftedGen, move.Generation)
		case models.ActionBuyCard:
			setOnce(&lc.row.BoughtGen, move.Generation)
		case models.ActionPlayCard:
			setOnce(&lc.row.PlayedGen, move.Generation)
			if lc.row.VPScored == nil && move.VP != nil {
				vp := *move.VP
				lc.row.VPScored = &vp
			}
		case models.ActionDiscardCard:
			// Discards end the lifecycle without setting a keep slot.
		}
	}

	// Cards listed in a player's played summary but missing from the move
	// list still get a row; their lifecycle generations stay unknown.
	for _, p := range players {
		if p.summary == nil {
			continue
		}
		for _, card := range p.summary.CardsPlayed {
			lookup(p.key, card)
		}
	}

	rows := make([]models.GameCard, 0, len(order))
	for _, key := range order {
		rows = append(rows, byKey[key].row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PlayerID != rows[j].PlayerID {
			return rows[i].PlayerID < rows[j].PlayerID
		}
		return rows[i].Card < rows[j].Card
	})
	return rows
}

// extractTiles produces one row per city or greenery placement attributable
// to a player. City points come from the move's VP field when recorded.
func extractTiles(doc *models.ReplayLog, tableID int64) ([]models.GameCityLocation, []models.GameGreeneryLocation) {
	var cities []models.GameCityLocation
	var greeneries []models.GameGreeneryLocation

	for _, move := range doc.Moves {
		if move.Action != models.ActionPlaceTile || move.Location == "" {
			continue
		}
		playerID, err := parsePlayerID(move.PlayerID)
		if err != nil {
			continue
		}
		switch move.Tile {
		case models.TileCity:
			points := 0
			if move.VP != nil {
				points = *move.VP
			}
			cities = append(cities, models.GameCityLocation{
				TableID:          tableID,
				PlayerID:         playerID,
				Location:         move.Location,
				Points:           points,
				PlacedGeneration: move.Generation,
			})
		case models.TileGreenery:
			greeneries = append(greeneries, models.GameGreeneryLocation{
				TableID:          tableID,
				PlayerID:         playerID,
				Location:         move.Location,
				PlacedGeneration: move.Generation,
			})
		}
	}
	return cities, greeneries
}

// extractTrackerChanges diffs successive embedded game-state snapshots and
// records the post-change value of every per-player counter that moved. One
// row per (player, tracker, generation): within a generation the last
// observed value wins.
func extractTrackerChanges(doc *models.ReplayLog, tableID int64) []models.GamePlayerTrackerChange {
	type trackerKey struct {
		playerID    int64
		trackerType string
		tracker     string
		generation  int
	}
	latest := map[trackerKey]int{}
	var order []trackerKey
	prev := map[string]map[string]int{} // playerKey+type -> tracker -> last value

	observe := func(playerKey string, playerID int64, trackerType string, values map[string]int, generation int) {
		stateKey := playerKey + "\x00" + trackerType
		before := prev[stateKey]
		for tracker, value := range values {
			if before != nil {
				if old, ok := before[tracker]; ok && old == value {
					continue
				}
			} else if value == 0 {
				// A zero in the first snapshot is the default, not a change.
				continue
			}
			key := trackerKey{playerID: playerID, trackerType: trackerType, tracker: tracker, generation: generation}
			if _, ok := latest[key]; !ok {
				order = append(order, key)
			}
			latest[key] = value
		}
		next := make(map[string]int, len(values))
		for tracker, value := range values {
			next[tracker] = value
		}
		if before != nil {
			for tracker, value := range before {
				if _, ok := next[tracker]; !ok {
					next[tracker] = value
				}
			}
		}
		prev[stateKey] = next
	}

	for _, move := range doc.Moves {
		state := move.GameState
		if state == nil {
			continue
		}
		generation := state.Generation
		if generation == 0 {
			generation = move.Generation
		}
		for playerKey, ps := range state.Players {
			if ps == nil {
				continue
			}
			playerID, err := parsePlayerID(playerKey)
			if err != nil {
				continue
			}
			observe(playerKey, playerID, models.TrackerTag, ps.Tags, generation)
			observe(playerKey, playerID, models.TrackerProduction, ps.Production, generation)
			observe(playerKey, playerID, models.TrackerResource, ps.Resources, generation)
		}
	}

	rows := make([]models.GamePlayerTrackerChange, 0, len(order))
	for _, key := range order {
		rows = append(rows, models.GamePlayerTrackerChange{
			TableID:     tableID,
			PlayerID:    key.playerID,
			TrackerType: key.trackerType,
			Tracker:     key.tracker,
			Generation:  key.generation,
			Value:       latest[key],
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.PlayerID != b.PlayerID {
			return a.PlayerID < b.PlayerID
		}
		if a.TrackerType != b.TrackerType {
			return a.TrackerType < b.TrackerType
		}
		if a.Tracker != b.Tracker {
			return a.Tracker < b.Tracker
		}
		return a.Generation < b.Generation
	})
	return rows
}

// parsePlayerID parses a positive decimal player identifier.
func parsePlayerID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}
