package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/bastion/internal/domain/model"
)

// MemoryMatchStore is an in-process MatchStore.
type MemoryMatchStore struct {
	mu      sync.RWMutex
	matches map[string]model.Match
}

var _ MatchStore = (*MemoryMatchStore)(nil)

// NewMemoryMatchStore creates an empty store.
func NewMemoryMatchStore() *MemoryMatchStore {
	return &MemoryMatchStore{matches: make(map[string]model.Match)}
}

// Put stores a new match.
func (s *MemoryMatchStore) Put(_ context.Context, m model.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[m.ID]; ok {
		return fmt.Errorf("match %s: %w", m.ID, ErrExists)
	}
	s.matches[m.ID] = cloneMatch(m)
	return nil
}

// Get returns a copy of a match.
func (s *MemoryMatchStore) Get(_ context.Context, matchID string) (model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[matchID]
	if !ok {
		return model.Match{}, fmt.Errorf("match %s: %w", matchID, model.ErrMatchNotFound)
	}
	return cloneMatch(m), nil
}

// AdvanceStatus moves a match forward in its lifecycle. Invalid matches stay
// where they are.
func (s *MemoryMatchStore) AdvanceStatus(_ context.Context, matchID string, to model.Status) (model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return model.Match{}, fmt.Errorf("match %s: %w", matchID, model.ErrMatchNotFound)
	}
	if m.Invalid {
		return cloneMatch(m), fmt.Errorf("match %s: %w", matchID, model.ErrMatchInvalid)
	}
	if to < m.Status {
		return cloneMatch(m), fmt.Errorf("match %s %s -> %s: %w", matchID, m.Status, to, model.ErrInvalidTransition)
	}
	m.Status = to
	s.matches[matchID] = m
	return cloneMatch(m), nil
}

// MarkInvalid flags a match as invalid.
func (s *MemoryMatchStore) MarkInvalid(_ context.Context, matchID string) (model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return model.Match{}, fmt.Errorf("match %s: %w", matchID, model.ErrMatchNotFound)
	}
	m.Invalid = true
	s.matches[matchID] = m
	return cloneMatch(m), nil
}

func cloneMatch(m model.Match) model.Match {
	m.TeamA = append([]string(nil), m.TeamA...)
	m.TeamB = append([]string(nil), m.TeamB...)
	return m
}
