// Package scoring is the single source of truth for in-match scores. It turns
// per-tick service health results and validated flag captures into integer
// team totals. No external calls are made.
package scoring

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/okian/bastion/internal/domain/model"
	"github.com/okian/bastion/pkg/logger"
	"github.com/okian/bastion/pkg/metrics"
)

// Scorer is the surface request handlers use during a running match.
type Scorer interface {
	RecordTick(ctx context.Context, matchID string, results []model.HealthResult) bool
	OnFlagCaptured(ctx context.Context, matchID, teamID, serviceID string, tick int) bool
	GetScores(matchID string) (model.Scores, bool)
}

// matchState is guarded by its own mutex so ticks and captures for one match
// apply in arrival order while other matches proceed in parallel.
type matchState struct {
	mu         sync.Mutex
	difficulty model.Difficulty
	scores     model.Scores
	services   map[string]*model.ServiceHealth
	tick       int
	frozen     bool
	closed     bool
}

// Model holds the live scoring state of every running match.
type Model struct {
	mu      sync.RWMutex
	matches map[string]*matchState
	logger  logger.Logger
}

var _ Scorer = (*Model)(nil)

// NewModel creates an empty scoring registry.
func NewModel(opts ...Option) *Model {
	m := &Model{
		matches: make(map[string]*matchState),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Get().Named("scoring")
	}
	return m
}

// Begin registers a match for scoring. Registering twice keeps the existing state.
func (m *Model) Begin(matchID string, difficulty model.Difficulty) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.matches[matchID]; ok {
		return false
	}
	m.matches[matchID] = &matchState{
		difficulty: difficulty,
		services:   make(map[string]*model.ServiceHealth),
	}
	metrics.UpdateScoringMatches(len(m.matches))
	return true
}

// End discards a match's scoring state. Later ticks become no-ops.
func (m *Model) End(matchID string) bool {
	m.mu.Lock()
	st, ok := m.matches[matchID]
	delete(m.matches, matchID)
	metrics.UpdateScoringMatches(len(m.matches))
	m.mu.Unlock()
	if !ok {
		return false
	}
	st.mu.Lock()
	st.closed = true
	st.mu.Unlock()
	return true
}

// Freeze closes a match for writes once it has ended. Its totals stay
// readable until End.
func (m *Model) Freeze(matchID string) bool {
	st := m.acquire(matchID)
	if st == nil {
		return false
	}
	defer st.mu.Unlock()
	if st.frozen {
		return false
	}
	st.frozen = true
	return true
}

// acquire returns the locked state for matchID, or nil when it is unknown.
func (m *Model) acquire(matchID string) *matchState {
	m.mu.RLock()
	st, ok := m.matches[matchID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil
	}
	return st
}

// RecordTick applies one evaluation interval of health results. It reports
// false, after logging a warning, when the match is unknown or frozen.
func (m *Model) RecordTick(ctx context.Context, matchID string, results []model.HealthResult) bool {
	st := m.acquire(matchID)
	if st == nil {
		metrics.RecordTickDropped()
		m.logger.Warn(ctx, "tick for unknown match ignored",
			logger.String("match_id", matchID),
			logger.Int("results", len(results)))
		return false
	}
	defer st.mu.Unlock()
	if st.frozen {
		metrics.RecordTickDropped()
		m.logger.Warn(ctx, "tick after match end ignored",
			logger.String("match_id", matchID),
			logger.Int("results", len(results)))
		return false
	}

	var up, down int
	for _, r := range results {
		h := st.services[r.ServiceID]
		if h == nil {
			h = &model.ServiceHealth{ServiceID: r.ServiceID}
			st.services[r.ServiceID] = h
		}
		applyHealth(h, r.Status)

		var delta int
		switch r.Status {
		case model.StatusUp:
			up++
			delta = uptimePoints.get(st.difficulty)
		case model.StatusDown:
			down++
			delta = -downtimePenalty.get(st.difficulty)
		}
		if delta != 0 {
			addScore(&st.scores, ownerOf(r.ServiceID), delta)
		}
	}
	st.tick++
	metrics.RecordTick(up, down)
	return true
}

// OnFlagCaptured awards flag points to teamID. Validation and at-most-once
// semantics belong to the caller; this only applies the score.
func (m *Model) OnFlagCaptured(ctx context.Context, matchID, teamID, serviceID string, tick int) bool {
	if teamID != model.TeamA && teamID != model.TeamB {
		metrics.RecordFlagIgnored()
		m.logger.Debug(ctx, "flag capture for unknown team ignored",
			logger.String("match_id", matchID),
			logger.String("team_id", teamID))
		return false
	}
	st := m.acquire(matchID)
	if st == nil {
		metrics.RecordFlagIgnored()
		m.logger.Warn(ctx, "flag capture for unknown match ignored",
			logger.String("match_id", matchID),
			logger.String("service_id", serviceID),
			logger.Int("tick", tick))
		return false
	}
	defer st.mu.Unlock()
	if st.frozen {
		metrics.RecordFlagIgnored()
		m.logger.Warn(ctx, "flag capture after match end ignored",
			logger.String("match_id", matchID),
			logger.String("service_id", serviceID),
			logger.Int("tick", tick))
		return false
	}
	addScore(&st.scores, teamID, flagPoints.get(st.difficulty))
	metrics.RecordFlagCaptured()
	return true
}

// GetScores returns the current totals of a match.
func (m *Model) GetScores(matchID string) (model.Scores, bool) {
	st := m.acquire(matchID)
	if st == nil {
		return model.Scores{}, false
	}
	defer st.mu.Unlock()
	return st.scores, true
}

// Tick returns how many ticks a match has seen.
func (m *Model) Tick(matchID string) (int, bool) {
	st := m.acquire(matchID)
	if st == nil {
		return 0, false
	}
	defer st.mu.Unlock()
	return st.tick, true
}

// ServiceHealth returns a copy of every tracked service, ordered by id.
func (m *Model) ServiceHealth(matchID string) ([]model.ServiceHealth, bool) {
	st := m.acquire(matchID)
	if st == nil {
		return nil, false
	}
	defer st.mu.Unlock()
	out := make([]model.ServiceHealth, 0, len(st.services))
	for _, h := range st.services {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceID < out[j].ServiceID })
	return out, true
}

// Len returns the number of matches with live state.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.matches)
}

func applyHealth(h *model.ServiceHealth, status model.ServiceStatus) {
	switch status {
	case model.StatusUp:
		h.ConsecutiveUp++
		h.ConsecutiveDown = 0
		h.TotalUp++
	case model.StatusDown:
		h.ConsecutiveDown++
		h.ConsecutiveUp = 0
		h.TotalDown++
	default:
		return
	}
	h.LastStatus = status
}

// ownerOf resolves the team from the "<owner>_<matchId>_<slot>" service id.
func ownerOf(serviceID string) string {
	switch {
	case strings.HasPrefix(serviceID, model.TeamA+"_"):
		return model.TeamA
	case strings.HasPrefix(serviceID, model.TeamB+"_"):
		return model.TeamB
	}
	return ""
}

func addScore(s *model.Scores, team string, delta int) {
	switch team {
	case model.TeamA:
		s.TeamA += delta
	case model.TeamB:
		s.TeamB += delta
	}
}
