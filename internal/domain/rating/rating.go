// Package rating turns one player's match contribution into an MMR delta and
// drives the visible rank and RP state machine. It performs no I/O.
package rating

import (
	"math"

	"github.com/okian/bastion/internal/domain/model"
)

const (
	defaultK = 30

	perfFloor = 0.8
	perfCeil  = 1.2

	flagWeight     = 0.2
	uptimeWeight   = 0.15
	downtimeWeight = 0.1
	evenShare      = 0.5

	winRP            = 15
	lossRP           = 15
	repeatedLossRP   = 30
	protectedLossRP  = 25
	protectionLosses = 3
)

// Outcome is the match result from one side's perspective.
type Outcome float64

// Match outcomes.
const (
	Loss Outcome = 0
	Draw Outcome = 0.5
	Win  Outcome = 1
)

var difficultyMultiplier = map[model.Difficulty]float64{
	model.DifficultyEasy:   0.6,
	model.DifficultyMedium: 1.0,
	model.DifficultyHard:   1.35,
	model.DifficultyInsane: 1.7,
}

// Team summarises one side of a match for rating purposes.
type Team struct {
	MMR      float64 // average MMR of the side
	Flags    int
	Uptime   int
	Downtime int
}

// Match carries the per-match inputs shared by every participant.
type Match struct {
	Difficulty model.Difficulty
	Result     Outcome
}

// RankUpdate is the outcome of UpdateRankAndRP.
type RankUpdate struct {
	Rank                 string
	RP                   int
	Promoted             bool
	Demoted              bool
	Protected            bool
	LossesSincePromotion int
}

// Engine computes rating changes. It is safe for concurrent use.
type Engine struct {
	tiers tierTable
	k     float64
}

// NewEngine creates an engine with the default ladder and K=30.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tiers: newTierTable(DefaultTiers()),
		k:     defaultK,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tiers returns the ladder in ascending order.
func (e *Engine) Tiers() []Tier {
	out := make([]Tier, len(e.tiers))
	copy(out, e.tiers)
	return out
}

// LowestRank is the rank given to players with no history.
func (e *Engine) LowestRank() string {
	return e.tiers[0].Name
}

// NewPlayer returns the default rating for an unseen player.
func (e *Engine) NewPlayer(playerID string) model.PlayerRating {
	return model.PlayerRating{
		PlayerID: playerID,
		MMR:      model.DefaultMMR,
		Rank:     e.LowestRank(),
	}
}

// Expected is the logistic win expectation of a side rated teamMMR against enemyMMR.
func Expected(teamMMR, enemyMMR float64) float64 {
	return 1 / (1 + math.Pow(10, (enemyMMR-teamMMR)/400))
}

// CalculateMMRDelta returns the signed MMR change for one player, rounded to
// one decimal place.
func (e *Engine) CalculateMMRDelta(_ model.PlayerRating, team, enemy Team, match Match, stats model.PlayerStats) float64 {
	expected := Expected(team.MMR, enemy.MMR)
	mult, ok := difficultyMultiplier[match.Difficulty]
	if !ok {
		mult = 1.0
	}
	perf := PerformanceModifier(team, stats)
	delta := e.k * mult * perf * (float64(match.Result) - expected)
	return math.Round(delta*10) / 10
}

// PerformanceModifier scales a delta by the player's share of team output.
// The result is always within [0.8, 1.2].
func PerformanceModifier(team Team, stats model.PlayerStats) float64 {
	mod := 1.0

	flagShare := float64(stats.FlagsCaptured) / float64(max(team.Flags, 1))
	mod += flagWeight * (flagShare - evenShare)

	uptimeShare := float64(stats.UptimeTicks) / float64(max(team.Uptime, 1))
	mod += uptimeWeight * (uptimeShare - evenShare)

	if team.Downtime > 0 && stats.DowntimeTicks > 0 {
		downShare := float64(stats.DowntimeTicks) / float64(team.Downtime)
		mod -= downtimeWeight * downShare
	}

	return math.Max(perfFloor, math.Min(perfCeil, mod))
}

// RankFromMMR returns the name of the highest tier whose minimum is <= mmr.
func (e *Engine) RankFromMMR(mmr float64) string {
	return e.tiers[e.tiers.indexOf(mmr)].Name
}

// UpdateRankAndRP advances the rank/RP state machine after one match.
//
// Promotion is unconditional when MMR crosses a tier upward. A drop below the
// current tier demotes immediately on a win, and on a loss only once the
// third loss since promotion is reached; earlier losses keep the old rank.
func (e *Engine) UpdateRankAndRP(player model.PlayerRating, newMMR float64, won bool) RankUpdate {
	current := e.tiers.indexByName(player.Rank)
	if current < 0 {
		current = 0
	}
	implied := e.tiers.indexOf(newMMR)

	u := RankUpdate{
		Rank:                 e.tiers[current].Name,
		RP:                   player.RP,
		LossesSincePromotion: player.LossesSincePromotion,
	}

	switch {
	case implied > current:
		u.Rank = e.tiers[implied].Name
		u.RP = model.MinRP
		u.LossesSincePromotion = 0
		u.Promoted = true

	case implied < current && won:
		u.Rank = e.tiers[implied].Name
		u.RP = model.MaxRP
		u.LossesSincePromotion = 0
		u.Demoted = true

	case implied < current:
		u.LossesSincePromotion++
		if u.LossesSincePromotion >= protectionLosses {
			u.Rank = e.tiers[implied].Name
			u.RP = model.MaxRP
			u.LossesSincePromotion = 0
			u.Demoted = true
		} else {
			u.RP -= protectedLossRP
			u.Protected = true
		}

	case won:
		u.RP += winRP

	default:
		u.LossesSincePromotion++
		if u.LossesSincePromotion >= protectionLosses {
			u.RP -= repeatedLossRP
		} else {
			u.RP -= lossRP
		}
	}

	u.RP = clampRP(u.RP)
	return u
}

func clampRP(rp int) int {
	return max(model.MinRP, min(model.MaxRP, rp))
}
