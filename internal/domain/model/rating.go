package model

import "time"

// Rating defaults for a player without history.
const (
	DefaultMMR = 1000.0
	MaxRP      = 100
	MinRP      = 0
)

// PlayerRating is the persisted skill state of a player.
type PlayerRating struct {
	PlayerID             string    `json:"player_id"`
	MMR                  float64   `json:"mmr"`
	Rank                 string    `json:"rank"`
	RP                   int       `json:"rp"`
	LossesSincePromotion int       `json:"losses_since_promotion"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// PlayerStats is a player's contribution in one finished match.
type PlayerStats struct {
	PlayerID      string `json:"player_id"`
	FlagsCaptured int    `json:"flags_captured"`
	UptimeTicks   int    `json:"uptime_ticks"`
	DowntimeTicks int    `json:"downtime_ticks"`
}

// MatchResult is the final statistics reported by the match engine.
type MatchResult struct {
	MatchID string        `json:"match_id"`
	Scores  *Scores       `json:"scores,omitempty"`
	Players []PlayerStats `json:"players"`
}

// Stats returns the statistics of one player, zero-valued when absent.
func (r *MatchResult) Stats(playerID string) PlayerStats {
	for _, p := range r.Players {
		if p.PlayerID == playerID {
			return p
		}
	}
	return PlayerStats{PlayerID: playerID}
}

// RatingChange records one settlement applied to one player.
type RatingChange struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	PlayerID  string    `json:"player_id"`
	Delta     float64   `json:"delta"`
	MMR       float64   `json:"mmr"`
	Rank      string    `json:"rank"`
	RP        int       `json:"rp"`
	Promoted  bool      `json:"promoted"`
	Demoted   bool      `json:"demoted"`
	CreatedAt time.Time `json:"created_at"`
}
