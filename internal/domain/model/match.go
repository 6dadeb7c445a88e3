// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty selects the point tables and rating multiplier for a match.
type Difficulty string

// Difficulty tiers, lowest first.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyInsane Difficulty = "insane"
)

// ParseDifficulty accepts both the tier names and the admin-facing labels.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy", "beginner":
		return DifficultyEasy, nil
	case "medium", "intermediate":
		return DifficultyMedium, nil
	case "hard", "advanced":
		return DifficultyHard, nil
	case "insane", "expert":
		return DifficultyInsane, nil
	}
	return "", fmt.Errorf("unknown difficulty %q: %w", s, ErrInvalidInput)
}

// Status is the lifecycle position of a match. Values are ordered.
type Status int

// Match lifecycle, forward only.
const (
	StatusPending Status = iota
	StatusStarting
	StatusRunning
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Team names used in service ids and flag captures.
const (
	TeamA = "teamA"
	TeamB = "teamB"
)

// Match identifies one competitive session.
type Match struct {
	ID         string
	Difficulty Difficulty
	TeamSize   int
	TeamA      []string
	TeamB      []string
	Status     Status
	Invalid    bool
	CreatedAt  time.Time
}

// Validate checks the invariants required before a match may start.
func (m *Match) Validate() error {
	switch {
	case strings.TrimSpace(m.ID) == "":
		return fmt.Errorf("missing match id: %w", ErrInvalidInput)
	case m.TeamSize < 1:
		return fmt.Errorf("team size must be positive: %w", ErrInvalidInput)
	case len(m.TeamA) != m.TeamSize || len(m.TeamB) != m.TeamSize:
		return fmt.Errorf("teams must both have %d players: %w", m.TeamSize, ErrInvalidInput)
	}
	seen := make(map[string]struct{}, 2*m.TeamSize)
	for _, p := range m.Players() {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("missing player id: %w", ErrInvalidInput)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("player %s listed twice: %w", p, ErrInvalidInput)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// Players returns all participants, team A first.
func (m *Match) Players() []string {
	out := make([]string, 0, len(m.TeamA)+len(m.TeamB))
	out = append(out, m.TeamA...)
	return append(out, m.TeamB...)
}

// ServiceStatus is the outcome of one health check.
type ServiceStatus string

// Health check outcomes.
const (
	StatusUp   ServiceStatus = "UP"
	StatusDown ServiceStatus = "DOWN"
)

// HealthResult is one service's health check result within a tick.
type HealthResult struct {
	ServiceID      string        `json:"service_id"`
	Status         ServiceStatus `json:"status"`
	ResponseTimeMS int           `json:"response_time_ms"`
}

// Scores holds both team totals. Totals may be negative.
type Scores struct {
	TeamA int `json:"teamA"`
	TeamB int `json:"teamB"`
}

// ServiceHealth tracks one service across ticks.
type ServiceHealth struct {
	ServiceID       string        `json:"service_id"`
	LastStatus      ServiceStatus `json:"last_status"`
	ConsecutiveUp   int           `json:"consecutive_up"`
	ConsecutiveDown int           `json:"consecutive_down"`
	TotalUp         int           `json:"total_up"`
	TotalDown       int           `json:"total_down"`
}
