package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/bastion/internal/adapters/repository"
	"github.com/okian/bastion/internal/domain/model"
	"github.com/okian/bastion/internal/domain/reconciler"
	"github.com/okian/bastion/pkg/logger"
)

// MatchView is a match record with its last broadcast phase.
type MatchView struct {
	model.Match
	Phase string `json:"phase,omitempty"`
}

// Scoreboard is the live scoring state of a running match.
type Scoreboard struct {
	MatchID  string                `json:"match_id"`
	Tick     int                   `json:"tick"`
	Scores   model.Scores          `json:"scores"`
	Services []model.ServiceHealth `json:"services"`
}

// AcceptMatch registers a match, asks the engine to start it and begins
// scoring and tracking it. A match stuck in starting after an engine failure
// may be accepted again.
func (s *Service) AcceptMatch(ctx context.Context, m model.Match) (model.Match, error) {
	if err := s.ensureStarted(); err != nil {
		return model.Match{}, err
	}
	d, err := model.ParseDifficulty(string(m.Difficulty))
	if err != nil {
		return model.Match{}, err
	}
	m.Difficulty = d
	m.ID = strings.TrimSpace(m.ID)
	if err := m.Validate(); err != nil {
		return model.Match{}, err
	}
	m.Status = model.StatusPending
	m.Invalid = false
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	if err := s.matches.Put(ctx, m); err != nil {
		if !errors.Is(err, repository.ErrExists) {
			return model.Match{}, err
		}
		existing, gerr := s.matches.Get(ctx, m.ID)
		if gerr != nil {
			return model.Match{}, gerr
		}
		if existing.Invalid || existing.Status > model.StatusStarting || s.reconciler.Tracked(m.ID) {
			return model.Match{}, err
		}
		m = existing
	}

	if m, err = s.matches.AdvanceStatus(ctx, m.ID, model.StatusStarting); err != nil {
		return model.Match{}, err
	}
	if err := s.engine.StartMatch(ctx, m); err != nil {
		s.logger.Warn(ctx, "engine refused match start",
			logger.String("match_id", m.ID),
			logger.Error(err))
		return model.Match{}, fmt.Errorf("start match %s: %w", m.ID, err)
	}

	s.scores.Begin(m.ID, m.Difficulty)
	s.reconciler.StartTracking(ctx, m.ID, reconciler.PhaseInitializing)
	s.logger.Info(ctx, "match accepted",
		logger.String("match_id", m.ID),
		logger.String("difficulty", string(m.Difficulty)),
		logger.Int("team_size", m.TeamSize))
	return m, nil
}

// GetMatch returns the stored match with its last broadcast phase.
func (s *Service) GetMatch(ctx context.Context, matchID string) (MatchView, error) {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return MatchView{}, err
	}
	v := MatchView{Match: m}
	v.Phase, _ = s.Phase(matchID)
	return v, nil
}

// RecordTick applies one tick of health results. It reports whether the
// match is being scored.
func (s *Service) RecordTick(ctx context.Context, matchID string, results []model.HealthResult) (bool, error) {
	if err := s.ensureStarted(); err != nil {
		return false, err
	}
	return s.scores.RecordTick(ctx, matchID, results), nil
}

// CaptureFlag credits a flag capture. It reports whether the capture counted.
func (s *Service) CaptureFlag(ctx context.Context, matchID, teamID, serviceID string, tick int) (bool, error) {
	if err := s.ensureStarted(); err != nil {
		return false, err
	}
	return s.scores.OnFlagCaptured(ctx, matchID, teamID, serviceID, tick), nil
}

// Scores returns the live scoreboard of a match being scored.
func (s *Service) Scores(_ context.Context, matchID string) (Scoreboard, error) {
	if err := s.ensureStarted(); err != nil {
		return Scoreboard{}, err
	}
	scores, ok := s.scores.GetScores(matchID)
	if !ok {
		return Scoreboard{}, fmt.Errorf("scores for %s: %w", matchID, model.ErrMatchNotFound)
	}
	tick, _ := s.scores.Tick(matchID)
	services, _ := s.scores.ServiceHealth(matchID)
	return Scoreboard{MatchID: matchID, Tick: tick, Scores: scores, Services: services}, nil
}

// EndMatch ends a match on the caller's word and schedules its settlement.
func (s *Service) EndMatch(ctx context.Context, matchID string) error {
	if err := s.ensureStarted(); err != nil {
		return err
	}
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if m.Invalid {
		return fmt.Errorf("end match %s: %w", matchID, model.ErrMatchInvalid)
	}
	if _, err := s.matches.AdvanceStatus(ctx, matchID, model.StatusEnded); err != nil {
		return err
	}
	s.scores.Freeze(matchID)
	if s.reconciler.StopTracking(matchID) {
		if err := s.publisher.Publish(ctx, matchID, string(reconciler.PhaseEnded)); err != nil {
			s.logger.Warn(ctx, "end broadcast failed",
				logger.String("match_id", matchID),
				logger.Error(err))
		}
	}
	return s.scheduleSettlement(ctx, matchID)
}

// InvalidateMatch marks a match invalid so it is never settled.
func (s *Service) InvalidateMatch(ctx context.Context, matchID string) error {
	if err := s.ensureStarted(); err != nil {
		return err
	}
	if _, err := s.matches.MarkInvalid(ctx, matchID); err != nil {
		return err
	}
	s.reconciler.StopTracking(matchID)
	s.scores.End(matchID)
	s.logger.Info(ctx, "match invalidated", logger.String("match_id", matchID))
	return nil
}

// SettleMatch schedules the settlement of an ended match. A match is settled
// at most once; later calls fail with model.ErrAlreadySettled.
func (s *Service) SettleMatch(ctx context.Context, matchID string) error {
	if err := s.ensureStarted(); err != nil {
		return err
	}
	return s.scheduleSettlement(ctx, matchID)
}

// PlayerRating returns a player's rating, or the default one for a player
// who has never been settled.
func (s *Service) PlayerRating(ctx context.Context, playerID string) (model.PlayerRating, error) {
	if strings.TrimSpace(playerID) == "" {
		return model.PlayerRating{}, fmt.Errorf("missing player id: %w", model.ErrInvalidInput)
	}
	r, err := s.ratings.Get(ctx, playerID)
	if errors.Is(err, model.ErrPlayerNotFound) {
		return s.rater.NewPlayer(playerID), nil
	}
	return r, err
}

// RatingHistory returns a player's latest rating changes, newest first.
func (s *Service) RatingHistory(ctx context.Context, playerID string, limit int) ([]model.RatingChange, error) {
	return s.ratings.History(ctx, playerID, limit)
}

// Leaderboard returns the top n players.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]repository.Entry, error) {
	return s.ratings.TopN(ctx, n)
}

func (s *Service) ensureStarted() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}
