// Package repository holds the persistence capabilities for matches and
// player ratings.
package repository

import (
	"context"

	"github.com/okian/bastion/internal/domain/model"
)

// Entry represents a leaderboard row.
type Entry struct {
	Position int     `json:"position"`
	PlayerID string  `json:"player_id"`
	MMR      float64 `json:"mmr"`
	Rank     string  `json:"rank"`
	RP       int     `json:"rp"`
}

// Mutation turns the current rating into its successor and describes the
// change to record. Returning an error aborts the update.
type Mutation func(current model.PlayerRating) (model.PlayerRating, model.RatingChange, error)

// RatingStore provides atomic per-player access to ratings.
type RatingStore interface {
	// Get returns the stored rating or model.ErrPlayerNotFound.
	Get(ctx context.Context, playerID string) (model.PlayerRating, error)

	// Update runs fn as a read-modify-write with no other writer for the same
	// player in between. seed stands in for a player without a stored rating.
	// A change whose match was already applied to the player fails with
	// model.ErrAlreadySettled and leaves the rating untouched.
	Update(ctx context.Context, playerID string, seed model.PlayerRating, fn Mutation) (model.PlayerRating, error)

	// History returns the latest changes of a player, newest first.
	History(ctx context.Context, playerID string, limit int) ([]model.RatingChange, error)

	// TopN returns the top-N players ordered by MMR desc, then id asc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of rated players.
	Count(ctx context.Context) int
}

// MatchStore reads and advances match records.
type MatchStore interface {
	// Put stores a new match. Existing ids fail with ErrExists.
	Put(ctx context.Context, m model.Match) error

	// Get returns a copy of the match or model.ErrMatchNotFound.
	Get(ctx context.Context, matchID string) (model.Match, error)

	// AdvanceStatus moves a match forward. Moving to the current status is a
	// no-op; moving backwards fails with model.ErrInvalidTransition and an
	// invalid match fails with model.ErrMatchInvalid.
	AdvanceStatus(ctx context.Context, matchID string, to model.Status) (model.Match, error)

	// MarkInvalid sets the administrative invalid marker from any state.
	MarkInvalid(ctx context.Context, matchID string) (model.Match, error)
}
