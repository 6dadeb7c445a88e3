package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/okian/bastion/internal/domain/model"
)

type playerSlot struct {
	mu      sync.Mutex
	rating  model.PlayerRating
	stored  bool
	history []model.RatingChange
	settled map[string]struct{}
}

// MemoryRatingStore is an in-process RatingStore. Writers for one player are
// serialized by that player's slot lock; different players proceed in parallel.
type MemoryRatingStore struct {
	mu      sync.RWMutex
	players map[string]*playerSlot

	ladderMu sync.RWMutex
	ladder   ladder

	now func() time.Time
}

var _ RatingStore = (*MemoryRatingStore)(nil)

// NewMemoryRatingStore creates an empty store.
func NewMemoryRatingStore() *MemoryRatingStore {
	return &MemoryRatingStore{
		players: make(map[string]*playerSlot),
		now:     time.Now,
	}
}

func (s *MemoryRatingStore) lookup(playerID string) *playerSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.players[playerID]
}

func (s *MemoryRatingStore) slot(playerID string) *playerSlot {
	if p := s.lookup(playerID); p != nil {
		return p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[playerID]; ok {
		return p
	}
	p := &playerSlot{settled: make(map[string]struct{})}
	s.players[playerID] = p
	return p
}

// Get returns the stored rating of a player.
func (s *MemoryRatingStore) Get(ctx context.Context, playerID string) (model.PlayerRating, error) {
	if err := ctx.Err(); err != nil {
		return model.PlayerRating{}, err
	}
	p := s.lookup(playerID)
	if p == nil {
		return model.PlayerRating{}, fmt.Errorf("player %s: %w", playerID, model.ErrPlayerNotFound)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stored {
		return model.PlayerRating{}, fmt.Errorf("player %s: %w", playerID, model.ErrPlayerNotFound)
	}
	return p.rating, nil
}

// Update applies fn under the player's lock.
func (s *MemoryRatingStore) Update(ctx context.Context, playerID string, seed model.PlayerRating, fn Mutation) (model.PlayerRating, error) {
	if err := ctx.Err(); err != nil {
		return model.PlayerRating{}, err
	}
	p := s.slot(playerID)
	p.mu.Lock()
	defer p.mu.Unlock()

	cur := seed
	if p.stored {
		cur = p.rating
	}
	cur.PlayerID = playerID

	next, change, err := fn(cur)
	if err != nil {
		return model.PlayerRating{}, err
	}
	if change.MatchID != "" {
		if _, dup := p.settled[change.MatchID]; dup {
			return model.PlayerRating{}, fmt.Errorf("match %s for player %s: %w", change.MatchID, playerID, model.ErrAlreadySettled)
		}
	}
	if change.ID == "" {
		if change.ID, err = gonanoid.New(); err != nil {
			return model.PlayerRating{}, fmt.Errorf("failed to generate nanoid: %w", err)
		}
	}

	now := s.now()
	next.PlayerID = playerID
	next.UpdatedAt = now
	change.PlayerID = playerID
	change.CreatedAt = now

	s.ladderMu.Lock()
	if p.stored {
		s.ladder.remove(p.rating.MMR, playerID)
	}
	s.ladder.insert(Entry{PlayerID: playerID, MMR: next.MMR, Rank: next.Rank, RP: next.RP})
	s.ladderMu.Unlock()

	p.rating = next
	p.stored = true
	p.history = append(p.history, change)
	if change.MatchID != "" {
		p.settled[change.MatchID] = struct{}{}
	}
	return next, nil
}

// History returns up to limit changes, newest first. A non-positive limit
// returns everything.
func (s *MemoryRatingStore) History(ctx context.Context, playerID string, limit int) ([]model.RatingChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := s.lookup(playerID)
	if p == nil {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.RatingChange, 0, n)
	for i := len(p.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, p.history[i])
	}
	return out, nil
}

// TopN returns the leaderboard head.
func (s *MemoryRatingStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, ErrInvalidLimit
	}
	s.ladderMu.RLock()
	defer s.ladderMu.RUnlock()
	return s.ladder.top(n), nil
}

// Count returns the number of rated players.
func (s *MemoryRatingStore) Count(_ context.Context) int {
	s.ladderMu.RLock()
	defer s.ladderMu.RUnlock()
	return len(s.ladder)
}
