package matchsim

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Matches    int           // Number of matches to play
	Players    int           // Size of the player pool
	TeamSize   int           // Players per side
	Ticks      int           // Ticks per match
	Difficulty string        // Difficulty of every match
	Workers    int           // Matches played concurrently
	Seed       int64         // Seed of the match generator
	Timeout    time.Duration // HTTP request timeout
	SettleWait time.Duration // How long to wait for settlements
	TopN       int           // Leaderboard entries to fetch
	LogFile    string        // Log file for run output
	Verbose    bool          // Enable verbose logging
}

// MatchRequest mirrors the body of POST /matches.
type MatchRequest struct {
	MatchID    string   `json:"match_id"`
	Difficulty string   `json:"difficulty"`
	TeamSize   int      `json:"team_size"`
	TeamA      []string `json:"team_a"`
	TeamB      []string `json:"team_b"`
}

// HealthResult is one service check within a tick.
type HealthResult struct {
	ServiceID      string `json:"service_id"`
	Status         string `json:"status"`
	ResponseTimeMS int    `json:"response_time_ms"`
}

// FlagCapture mirrors the body of POST /matches/{id}/flags.
type FlagCapture struct {
	TeamID    string `json:"team_id"`
	ServiceID string `json:"service_id"`
	Tick      int    `json:"tick"`
}

// Rating is a player's rating as served by the API.
type Rating struct {
	PlayerID string  `json:"player_id"`
	MMR      float64 `json:"mmr"`
	Rank     string  `json:"rank"`
	RP       int     `json:"rp"`

	// UpdatedAt is zero for players who were never settled.
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry represents a leaderboard entry.
type Entry struct {
	Position int     `json:"position"`
	PlayerID string  `json:"player_id"`
	MMR      float64 `json:"mmr"`
	Rank     string  `json:"rank"`
	RP       int     `json:"rp"`
}

// Stats holds run statistics.
type Stats struct {
	MatchesPlayed      int
	MatchesFailed      int
	TicksSent          int
	FlagsSent          int
	PlayersRated       int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
