// Tharsis - Terraforming Mars Replay Ingestion and Normalization
// Copyright 2026 Ares Stats (arestats)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arestats/tharsis

// Package extract maps a validated replay log to the twelve normalized fact
// collections. Extraction is a pure projection: no I/O, deterministic output
// for identical input. Any structural inconsistency aborts before a single
// row is produced, so nothing downstream ever sees a partial fact set.
package extract

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/arestats/tharsis/internal/models"
)

// Keep rules for starting-hand extraction.
const (
	// KeepRuleExplicit trusts the document's kept lists when present and
	// falls back to derivation from the move list when they are absent.
	KeepRuleExplicit = "explicit"
	// KeepRuleDerived always reconstructs keeps from the chosen
	// corporation, the played preludes, and the bought/kept cards.
	KeepRuleDerived = "derived"
)

// Error describes a structural inconsistency found during extraction. It is
// reported before any database write begins.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed on %s: %s", e.Field, e.Reason)
}

func errf(field, format string, args ...interface{}) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Options configures the extractor.
type Options struct {
	// KeepRule selects the starting-hand keep derivation, one of
	// KeepRuleExplicit or KeepRuleDerived.
	KeepRule string

	// Now supplies the ingestion timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Extractor converts replay logs into normalized game facts.
type Extractor struct {
	keepRule string
	now      func() time.Time
}

// New returns an Extractor with the given options.
func New(opts Options) *Extractor {
	rule := opts.KeepRule
	if rule == "" {
		rule = KeepRuleExplicit
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Extractor{keepRule: rule, now: now}
}

// Extract produces the twelve fact collections for one replay log. The
// document must already have passed boundary validation; Extract still
// verifies the structural invariants it depends on (parseable identifiers,
// perspective present in the players map, every move actor known).
func (e *Extractor) Extract(doc *models.ReplayLog) (*models.GameFacts, error) {
	tableID, err := doc.TableID()
	if err != nil {
		return nil, errf("replay_id", "%v", err)
	}
	perspective, err := doc.PerspectiveID()
	if err != nil {
		return nil, errf("player_perspective", "%v", err)
	}
	if _, ok := doc.Players[doc.PlayerPerspective]; !ok {
		return nil, errf("player_perspective", "player %q is not a key of the players map", doc.PlayerPerspective)
	}

	players, err := resolvePlayers(doc)
	if err != nil {
		return nil, err
	}
	if err := checkMoveActors(doc); err != nil {
		return nil, err
	}

	facts := &models.GameFacts{
		TableID:           tableID,
		PlayerPerspective: perspective,
	}

	facts.Stats, err = e.extractStats(doc, tableID, players)
	if err != nil {
		return nil, err
	}
	facts.PlayerStats = extractPlayerStats(doc, tableID, players)

	facts.StartingHandCorporations, facts.StartingHandPreludes, facts.StartingHandCards =
		e.extractStartingHands(doc, tableID, players)

	facts.Milestones, err = extractMilestones(doc, tableID)
	if err != nil {
		return nil, err
	}
	facts.Awards, err = extractAwards(doc, tableID)
	if err != nil {
		return nil, err
	}
	facts.ParameterChanges = extractParameterChanges(doc, tableID)

	facts.Cards = extractCards(doc, tableID, players)
	facts.CityLocations, facts.GreeneryLocations = extractTiles(doc, tableID)
	facts.TrackerChanges = extractTrackerChanges(doc, tableID)

	return facts, nil
}

// resolvedPlayer pairs a parsed numeric player id with its summary.
type resolvedPlayer struct {
	key     string
	id      int64
	summary *models.PlayerSummary
}

// resolvePlayers parses and sorts the players map for deterministic output.
func resolvePlayers(doc *models.ReplayLog) ([]resolvedPlayer, error) {
	players := make([]resolvedPlayer, 0, len(doc.Players))
	for key, summary := range doc.Players {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 {
			return nil, errf("players", "player key %q is not a positive integer", key)
		}
		players = append(players, resolvedPlayer{key: key, id: id, summary: summary})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].id < players[j].id })
	return players, nil
}

// checkMoveActors verifies that every move actor is a key of the players map.
func checkMoveActors(doc *models.ReplayLog) error {
	for _, move := range doc.Moves {
		if move.PlayerID == "" {
			continue
		}
		if _, ok := doc.Players[move.PlayerID]; !ok {
			return errf("moves", "move %d references unknown player %q", move.MoveNumber, move.PlayerID)
		}
	}
	return nil
}

func (e *Extractor) extractStats(doc *models.ReplayLog, tableID int64, players []resolvedPlayer) (models.GameStats, error) {
	stats := models.GameStats{
		TableID:     tableID,
		Generations: doc.Generations,
		PlayerCount: len(players),

		Map:                     doc.Map,
		PreludeOn:               doc.PreludeOn,
		ColoniesOn:              doc.ColoniesOn,
		CorporateEraOn:          doc.CorporateEraOn,
		DraftOn:                 doc.DraftOn,
		BeginnersCorporationsOn: doc.BeginnersCorporationsOn,
		GameSpeed:               doc.GameSpeed,

		IngestedAt: e.now().UTC(),
	}

	if doc.GameDuration != "" {
		minutes, err := parseDurationMinutes(doc.GameDuration)
		if err != nil {
			return stats, errf("game_duration", "%v", err)
		}
		stats.DurationMinutes = &minutes
	}

	if doc.GameDate != "" {
		date, err := time.Parse("2006-01-02", doc.GameDate)
		if err != nil {
			return stats, errf("game_date", "%q is not a valid YYYY-MM-DD date", doc.GameDate)
		}
		stats.GameDate = &date
	}

	if winner := deriveWinner(doc, players); winner != "" {
		stats.Winner = &winner
	}

	return stats, nil
}

// parseDurationMinutes converts an "H:MM:SS" duration into whole minutes.
func parseDurationMinutes(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("duration %q is not in H:MM:SS form", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("duration %q has an invalid hour field", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("duration %q has an invalid minute field", s)
	}
	if _, err := strconv.Atoi(parts[2]); err != nil {
		return 0, fmt.Errorf("duration %q has an invalid second field", s)
	}
	return h*60 + m, nil
}

// deriveWinner returns the explicit winner if the document names one,
// otherwise the name of the player with the highest final VP. Ties resolve
// to the lowest player id for determinism.
func deriveWinner(doc *models.ReplayLog, players []resolvedPlayer) string {
	if doc.Winner != "" {
		return doc.Winner
	}
	best := ""
	bestVP := -1
	for _, p := range players {
		if p.summary == nil {
			continue
		}
		if p.summary.FinalVP > bestVP {
			bestVP = p.summary.FinalVP
			best = p.summary.PlayerName
		}
	}
	return best
}

func extractPlayerStats(doc *models.ReplayLog, tableID int64, players []resolvedPlayer) []models.GamePlayerStats {
	rows := make([]models.GamePlayerStats, 0, len(players))
	for _, p := range players {
		if p.summary == nil {
			continue
		}
		row := models.GamePlayerStats{
			TableID:     tableID,
			PlayerID:    p.id,
			PlayerName:  p.summary.PlayerName,
			Corporation: p.summary.Corporation,
			FinalScore:  p.summary.FinalVP,
			FinalTR:     p.summary.FinalTR,
		}
		if bd := playerBreakdown(doc, p); bd != nil {
			row.AwardPoints = bd.Awards
			row.MilestonePoints = bd.Milestones
			row.CityPoints = bd.Cities
			row.GreeneryPoints = bd.Greeneries
			row.CardPoints = bd.Cards
			if bd.Total != 0 {
				row.FinalScore = bd.Total
			}
		}
		if elo := p.summary.EloData; elo != nil {
			rating := elo.Rating
			delta := elo.Delta
			row.EloRating = &rating
			row.EloDelta = &delta
		}
		rows = append(rows, row)
	}
	return rows
}

// playerBreakdown prefers the final-state VP breakdown over the summary one;
// the final-state block is written at game end and is authoritative when both
// are present.
func playerBreakdown(doc *models.ReplayLog, p resolvedPlayer) *models.VPBreakdown {
	if doc.FinalState != nil {
		if fp, ok := doc.FinalState.Players[p.key]; ok && fp != nil && fp.VPBreakdown != nil {
			return fp.VPBreakdown
		}
	}
	return p.summary.VPBreakdown
}

func (e *Extractor) extractStartingHands(doc *models.ReplayLog, tableID int64, players []resolvedPlayer) (
	[]models.StartingHandCorporation, []models.StartingHandPrelude, []models.StartingHandCard,
) {
	var corps []models.StartingHandCorporation
	var preludes []models.StartingHandPrelude
	var cards []models.StartingHandCard

	for _, p := range players {
		if p.summary == nil || p.summary.StartingHand == nil {
			continue
		}
		hand := p.summary.StartingHand
		derived := deriveKeeps(doc, p)

		for _, corp := range hand.Corporations {
			corps = append(corps, models.StartingHandCorporation{
				TableID:     tableID,
				PlayerID:    p.id,
				Corporation: corp,
				Kept:        e.keptFlag(corp, hand.CorporationsKept, derived.corporations),
			})
		}
		for _, prelude := range hand.Preludes {
			preludes = append(preludes, models.StartingHandPrelude{
				TableID:  tableID,
				PlayerID: p.id,
				Prelude:  prelude,
				Kept:     e.keptFlag(prelude, hand.PreludesKept, derived.preludes),
			})
		}
		for _, card := range hand.Cards {
			cards = append(cards, models.StartingHandCard{
				TableID:  tableID,
				PlayerID: p.id,
				Card:     card,
				Kept:     e.keptFlag(card, hand.CardsKept, derived.cards),
			})
		}
	}
	return corps, preludes, cards
}

// keptFlag resolves one option's kept flag under the configured keep rule.
// Under the explicit rule a present (non-nil) kept list is authoritative even
// when empty; an absent list falls back to the derived set.
func (e *Extractor) keptFlag(option string, explicit []string, derived map[string]bool) bool {
	if e.keepRule == KeepRuleExplicit && explicit != nil {
		for _, kept := range explicit {
			if kept == option {
				return true
			}
		}
		return false
	}
	return derived[option]
}

// derivedKeeps holds per-player keep sets reconstructed from game evidence.
type derivedKeeps struct {
	corporations map[string]bool
	preludes     map[string]bool
	cards        map[string]bool
}

// deriveKeeps reconstructs keeps from game evidence: the chosen corporation,
// preludes that were played, and cards that were kept, bought, or eventually
// played by the same player.
func deriveKeeps(doc *models.ReplayLog, p resolvedPlayer) derivedKeeps {
	d := derivedKeeps{
		corporations: map[string]bool{},
		preludes:     map[string]bool{},
		cards:        map[string]bool{},
	}
	if p.summary.Corporation != "" {
		d.corporations[p.summary.Corporation] = true
	}
	played := map[string]bool{}
	for _, card := range p.summary.CardsPlayed {
		played[card] = true
	}
	for _, move := range doc.Moves {
		if move.PlayerID != p.key || move.Card == "" {
			continue
		}
		switch move.Action {
		case models.ActionPlayCard:
			played[move.Card] = true
		case models.ActionKeepCard, models.ActionBuyCard:
			d.cards[move.Card] = true
		}
	}
	if hand := p.summary.StartingHand; hand != nil {
		for _, prelude := range hand.Preludes {
			if played[prelude] {
				d.preludes[prelude] = true
			}
		}
		for _, card := range hand.Cards {
			if played[card] {
				d.cards[card] = true
			}
		}
	}
	return d
}
