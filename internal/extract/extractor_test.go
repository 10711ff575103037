// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arestats/tharsis/internal/models"
)

func intp(v int) *int { return &v }

// fixtureDoc builds a two-player document exercising every extraction path:
// one milestone claimed at generation 4, one award funded at generation 6
// with a single first-place standing, seven generations, and a short move
// list with embedded snapshots.
func fixtureDoc() *models.ReplayLog {
	return &models.ReplayLog{
		ReplayID:          "12345",
		PlayerPerspective: "1",
		GameDate:          "2026-03-14",
		GameDuration:      "1:23:45",
		Generations:       7,
		Map:               "tharsis",
		PreludeOn:         true,
		DraftOn:           true,
		Players: map[string]*models.PlayerSummary{
			"1": {
				PlayerID:    "1",
				PlayerName:  "red",
				Corporation: "Helion",
				FinalVP:     61,
				FinalTR:     30,
				VPBreakdown: &models.VPBreakdown{
					Total: 61, TR: 30, Awards: 5, Milestones: 5, Cities: 6, Greeneries: 4, Cards: 11,
				},
				CardsPlayed: []string{"Insulation", "Lunar Beam"},
				StartingHand: &models.StartingHand{
					Corporations:     []string{"Helion", "Thorgate"},
					CorporationsKept: []string{"Helion"},
					Preludes:         []string{"Supplier", "Dome Farming"},
					PreludesKept:     []string{"Supplier"},
					Cards:            []string{"Insulation", "Asteroid", "Comet"},
					CardsKept:        []string{"Insulation"},
				},
				EloData: &models.EloData{Rating: 1812.4, Delta: 12.3},
			},
			"2": {
				PlayerID:    "2",
				PlayerName:  "blue",
				Corporation: "Ecoline",
				FinalVP:     55,
				FinalTR:     28,
				CardsPlayed: []string{"Trees"},
				StartingHand: &models.StartingHand{
					Corporations: []string{"Ecoline", "Credicor"},
					Preludes:     []string{"Biolab"},
					Cards:        []string{"Trees", "Birds"},
				},
			},
		},
		Moves: []models.Move{
			{
				MoveNumber: 1, Generation: 1, PlayerID: "1",
				Action: models.ActionBuyCard, Card: "Insulation", Cost: intp(3),
			},
			{
				MoveNumber: 2, Generation: 1, PlayerID: "2",
				Action: models.ActionPlayCard, Card: "Trees",
				GameState: &models.GameState{
					Generation: 1, Temperature: -30, Oxygen: 0, Oceans: 0,
					Players: map[string]*models.PlayerState{
						"2": {
							Tags:       map[string]int{"plant": 1},
							Production: map[string]int{"plant": 2},
						},
					},
				},
			},
			{
				MoveNumber: 3, Generation: 2, PlayerID: "1",
				Action: models.ActionDrawCard, Card: "AI Central",
				DrawType: "standard", DrawReason: "research",
			},
			{
				MoveNumber: 4, Generation: 3, PlayerID: "1",
				Action: models.ActionPlayCard, Card: "Insulation", VP: intp(2),
				GameState: &models.GameState{
					Generation: 3, Temperature: -26, Oxygen: 1, Oceans: 0,
					Players: map[string]*models.PlayerState{
						"1": {
							Tags:       map[string]int{"building": 1},
							Production: map[string]int{"heat": 3},
						},
						"2": {
							Tags:       map[string]int{"plant": 1},
							Production: map[string]int{"plant": 2},
						},
					},
				},
			},
			{
				MoveNumber: 5, Generation: 4, PlayerID: "1",
				Action: models.ActionClaimMilestone, Milestone: "Terraformer",
			},
			{
				MoveNumber: 6, Generation: 5, PlayerID: "1",
				Action: models.ActionPlaceTile, Tile: models.TileCity,
				Location: "E7", VP: intp(3),
			},
			{
				MoveNumber: 7, Generation: 5, PlayerID: "2",
				Action: models.ActionPlaceTile, Tile: models.TileGreenery,
				Location: "F8",
			},
			{
				MoveNumber: 8, Generation: 6, PlayerID: "2",
				Action: models.ActionFundAward, Award: "Banker",
			},
		},
		FinalState: &models.FinalState{
			Generation: 7, Temperature: -2, Oxygen: 9, Oceans: 6,
			Milestones: map[string]*models.MilestoneResult{
				"Terraformer": {ClaimedBy: "1", Generation: 4},
			},
			Awards: map[string]*models.AwardResult{
				"Banker": {
					FundedBy:   "2",
					Generation: 6,
					Standings: []models.AwardStanding{
						{PlayerID: "2", Place: 1, Counter: 9},
					},
				},
			},
		},
		ParameterProgression: map[string][]models.ParameterStep{
			models.ParameterTemperature: {
				{Generation: 2, Value: -28, PlayerID: "1"},
				{Generation: 4, Value: -26, PlayerID: "2"},
				{Generation: 4, Value: -26, PlayerID: "2"}, // duplicate, must drop
				{Generation: 6, Value: -24, PlayerID: "1"},
			},
			models.ParameterOceans: {
				{Generation: 3, Value: 1, PlayerID: "2"},
			},
		},
	}
}

func newTestExtractor(rule string) *Extractor {
	return New(Options{
		KeepRule: rule,
		Now:      func() time.Time { return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC) },
	})
}

func TestExtractEndToEndScenario(t *testing.T) {
	facts, err := newTestExtractor(KeepRuleExplicit).Extract(fixtureDoc())
	require.NoError(t, err)

	assert.Equal(t, int64(12345), facts.TableID)
	assert.Equal(t, int64(1), facts.PlayerPerspective)

	assert.Equal(t, int64(12345), facts.Stats.TableID)
	assert.Equal(t, 7, facts.Stats.Generations)
	assert.Equal(t, 2, facts.Stats.PlayerCount)
	require.NotNil(t, facts.Stats.DurationMinutes)
	assert.Equal(t, 83, *facts.Stats.DurationMinutes)
	require.NotNil(t, facts.Stats.Winner)
	assert.Equal(t, "red", *facts.Stats.Winner) // highest final VP

	require.Len(t, facts.Milestones, 1)
	assert.Equal(t, models.GameMilestone{
		TableID:           12345,
		Milestone:         "Terraformer",
		ClaimedByPlayerID: 1,
		ClaimedGeneration: 4,
	}, facts.Milestones[0])

	require.Len(t, facts.Awards, 1)
	award := facts.Awards[0]
	assert.Equal(t, int64(2), award.PlayerID)
	assert.Equal(t, int64(2), award.FundedByPlayerID)
	assert.Equal(t, 6, award.FundedGeneration)
	assert.Equal(t, 1, award.PlayerPlace)
	assert.Equal(t, 9, award.PlayerCounter)
}

func TestExtractPlayerStats(t *testing.T) {
	facts, err := newTestExtractor(KeepRuleExplicit).Extract(fixtureDoc())
	require.NoError(t, err)

	require.Len(t, facts.PlayerStats, 2)
	red := facts.PlayerStats[0]
	assert.Equal(t, int64(1), red.PlayerID)
	assert.Equal(t, "Helion", red.Corporation)
	assert.Equal(t, 61, red.FinalScore)
	assert.Equal(t, 30, red.FinalTR)
	assert.Equal(t, 5, red.AwardPoints)
	assert.Equal(t, 5, red.MilestonePoints)
	assert.Equal(t, 6, red.CityPoints)
	assert.Equal(t, 4, red.GreeneryPoints)
	assert.Equal(t, 11, red.CardPoints)
	require.NotNil(t, red.EloRating)
	assert.InDelta(t, 1812.4, *red.EloRating, 0.001)

	blue := facts.PlayerStats[1]
	assert.Equal(t, int64(2), blue.PlayerID)
	assert.Equal(t, 55, blue.FinalScore)
	assert.Zero(t, blue.AwardPoints) // no breakdown block
}

func TestExtractStartingHandsExplicit(t *testing.T) {
	facts, err := newTestExtractor(KeepRuleExplicit).Extract(fixtureDoc())
	require.NoError(t, err)

	kept := map[string]bool{}
	for _, row := range facts.StartingHandCorporations {
		if row.PlayerID == 1 {
			kept[row.Corporation] = row.Kept
		}
	}
	assert.True(t, kept["Helion"])
	assert.False(t, kept["Thorgate"])

	// Player 2 has no explicit kept lists: derivation applies even under
	// the explicit rule.
	for _, row := range facts.StartingHandCorporations {
		if row.PlayerID == 2 {
			assert.Equal(t, row.Corporation == "Ecoline", row.Kept, row.Corporation)
		}
	}
	for _, row := range facts.StartingHandCards {
		if row.PlayerID == 2 {
			assert.Equal(t, row.Card == "Trees", row.Kept, row.Card)
		}
	}
}

func TestExtractStartingHandsDerived(t *testing.T) {
	facts, err := newTestExtractor(KeepRuleDerived).Extract(fixtureDoc())
	require.NoError(t, err)

	// Under the derived rule player 1's explicit lists are ignored:
	// Insulation was bought and played, Asteroid and Comet were not.
	cardKept := map[string]bool{}
	for _, row := range facts.StartingHandCards {
		if row.PlayerID == 1 {
			cardKept[row.Card] = row.Kept
		}
	}
	assert.True(t, cardKept["Insulation"])
	assert.False(t, cardKept["Asteroid"])
	assert.False(t, cardKept["Comet"])

	// Supplier was never played, so derivation marks no prelude kept.
	for _, row := range facts.StartingHandPreludes {
		if row.PlayerID == 1 {
			assert.False(t, row.Kept, row.Prelude)
		}
	}
}

func TestExtractParameterMonotonicity(t *testing.T) {
	facts, err := newTestExtractor(KeepRuleExplicit).Extract(fixtureDoc())
	require.NoError(t, err)

	var temps []models.ParameterChange
	for _, row := range facts.ParameterChanges {
		if row.Parameter == models.ParameterTemperature {
			temps = append(temps, row)
		}
	}
	require.Len(t, temps, 3) // duplicate step dropped
	for i := 1; i < len(temps); i++ {
		assert.Greater(t, temps[i].IncreasedTo, temps[i-1].IncreasedTo)
	}
}

func TestExtractParameterChangesFromSnapshots(t *testing.T) {
	doc := fixtureDoc()
	doc.ParameterProgression = nil

	facts, err := newTestExtractor(KeepRuleExplicit).Extract(doc)
	require.NoError(t, err)

	// First snapshot (-30, 0, 0) is the baseline; the second raises
	// temperature to -26 and oxygen to 1.
	byParam := map[string][]models.ParameterChange{}
	for _, row := range facts.ParameterChanges {
		byParam[row.Parameter] = append(byParam[row.Parameter], row)
	}
	require.Len(t, byParam[models.ParameterTemperature], 1)
	assert.Equal(t, -26, byParam[models.ParameterTemperature][0].IncreasedTo)
	require.Len(t, byParam[models.ParameterOxygen], 1)
	assert.Equal(t, 1, byParam[models.ParameterOxygen][0].IncreasedTo)
	assert.Empty(t, byParam[models.ParameterOceans])
}

func TestExtractCardLifecycle(t *testing.T) {
	facts, err := newTestExtractor(KeepRuleExplicit).Extract(fixtureDoc())
	require.NoError(t, err)

	byCard := map[string]models.GameCard{}
	for _, row := range facts.Cards {
		if row.PlayerID == 1 {
			byCard[row.Card] = row
		}
	}

	insulation := byCard["Insulation"]
	require.NotNil(t, insulation.SeenGen)
	assert.Equal(t, 1, *insulation.SeenGen)
	require.NotNil(t, insulation.BoughtGen)
	assert.Equal(t, 1, *insulation.BoughtGen)
	require.NotNil(t, insulation.PlayedGen)
	assert.Equal(t, 3, *insulation.PlayedGen)
	require.NotNil(t, insulation.VPScored)
	assert.Equal(t, 2, *insulation.VPScored)

	ai := byCard["AI Central"]
	require.NotNil(t, ai.DrawnGen)
	assert.Equal(t, 2, *ai.DrawnGen)
	require.NotNil(t, ai.DrawType)
	assert.Equal(t, "standard", *ai.DrawType)
	assert.Nil(t, ai.PlayedGen)

	// Lunar Beam appears only in the played summary: row exists, no
	// lifecycle generations.
	beam, ok := byCard["Lunar Beam"]
	require.True(t, ok)
	assert.Nil(t, beam.SeenGen)
	assert.Nil(t, beam.PlayedGen)
}

func TestExtractTiles(t *testing.T) {
	facts, err := newTestExtractor(KeepRuleExplicit).Extract(fixtureDoc())
	require.NoError(t, err)

	require.Len(t, facts.CityLocations, 1)
	city := facts.CityLocations[0]
	assert.Equal(t, int64(1), city.PlayerID)
	assert.Equal(t, "E7", city.Location)
	assert.Equal(t, 3, city.Points)
	assert.Equal(t, 5, city.PlacedGeneration)

	require.Len(t, facts.GreeneryLocations, 1)
	greenery := facts.GreeneryLocations[0]
	assert.Equal(t, int64(2), greenery.PlayerID)
	assert.Equal(t, "F8", greenery.Location)
}

func TestExtractTrackerChanges(t *testing.T) {
	facts, err := newTestExtractor(KeepRuleExplicit).Extract(fixtureDoc())
	require.NoError(t, err)

	type key struct {
		player  int64
		ttype   string
		tracker string
	}
	got := map[key]models.GamePlayerTrackerChange{}
	for _, row := range facts.TrackerChanges {
		got[key{row.PlayerID, row.TrackerType, row.Tracker}] = row
	}

	// Player 2's plant tag appears in the first snapshot with value 1.
	plantTag := got[key{2, models.TrackerTag, "plant"}]
	assert.Equal(t, 1, plantTag.Value)
	assert.Equal(t, 1, plantTag.Generation)

	// Player 1's trackers appear only in the generation-3 snapshot.
	heat := got[key{1, models.TrackerProduction, "heat"}]
	assert.Equal(t, 3, heat.Value)
	assert.Equal(t, 3, heat.Generation)

	// Player 2's unchanged values produce no second row.
	for _, row := range facts.TrackerChanges {
		if row.PlayerID == 2 && row.Tracker == "plant" && row.TrackerType == models.TrackerTag {
			assert.Equal(t, 1, row.Generation)
		}
	}
}

func TestExtractDeterminism(t *testing.T) {
	e := newTestExtractor(KeepRuleExplicit)
	first, err := e.Extract(fixtureDoc())
	require.NoError(t, err)
	second, err := e.Extract(fixtureDoc())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtractStructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.ReplayLog)
		field  string
	}{
		{
			name:   "non-numeric replay id",
			mutate: func(d *models.ReplayLog) { d.ReplayID = "abc" },
			field:  "replay_id",
		},
		{
			name:   "perspective not in players map",
			mutate: func(d *models.ReplayLog) { d.PlayerPerspective = "9" },
			field:  "player_perspective",
		},
		{
			name: "move references unknown player",
			mutate: func(d *models.ReplayLog) {
				d.Moves[0].PlayerID = "99"
			},
			field: "moves",
		},
		{
			name:   "malformed duration",
			mutate: func(d *models.ReplayLog) { d.GameDuration = "90m" },
			field:  "game_duration",
		},
		{
			name:   "malformed game date",
			mutate: func(d *models.ReplayLog) { d.GameDate = "14/03/2026" },
			field:  "game_date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fixtureDoc()
			tt.mutate(doc)
			_, err := newTestExtractor(KeepRuleExplicit).Extract(doc)
			require.Error(t, err)
			var extractErr *Error
			require.ErrorAs(t, err, &extractErr)
			assert.Equal(t, tt.field, extractErr.Field)
		})
	}
}

func TestParseDurationMinutes(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "1:23:45", want: 83},
		{in: "0:05:59", want: 5},
		{in: "2:00:00", want: 120},
		{in: "90m", wantErr: true},
		{in: "1:75:00", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseDurationMinutes(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
