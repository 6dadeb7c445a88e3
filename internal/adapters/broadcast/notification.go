// Package broadcast delivers match state changes to per-match subscriber
// groups addressed as match:<id>.
package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TypeMatchState is the only message type emitted for match phases.
const TypeMatchState = "match_state"

// Notification is one state change sent to a match group.
type Notification struct {
	ID      uuid.UUID `json:"id"`
	Type    string    `json:"type"`
	MatchID string    `json:"matchId"`
	State   string    `json:"state"`
	At      time.Time `json:"at"`
}

// Channel returns the group address of a match.
func Channel(matchID string) string {
	return "match:" + matchID
}

func newNotification(matchID, state string) Notification {
	return Notification{
		ID:      uuid.New(),
		Type:    TypeMatchState,
		MatchID: matchID,
		State:   state,
		At:      time.Now().UTC(),
	}
}

// Publisher sends a state change to a match group.
type Publisher interface {
	Publish(ctx context.Context, matchID, state string) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, matchID, state string) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, matchID, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
