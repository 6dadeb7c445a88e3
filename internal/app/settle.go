package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/bastion/internal/domain/model"
	"github.com/okian/bastion/internal/domain/rating"
	"github.com/okian/bastion/pkg/logger"
	"github.com/okian/bastion/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// WinnerDraw is the winner label of a tied match.
const WinnerDraw = "draw"

// Settlement summarises the ratings applied for one match.
type Settlement struct {
	MatchID string               `json:"match_id"`
	Winner  string               `json:"winner"`
	Scores  model.Scores         `json:"scores"`
	Changes []model.RatingChange `json:"changes"`
}

// settle applies rating changes to every participant of an ended match.
// Players already settled for the match are skipped, so a retried job
// completes the remainder.
func (s *Service) settle(ctx context.Context, matchID string) (Settlement, error) {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return Settlement{}, err
	}
	if err := settleable(m); err != nil {
		return Settlement{}, err
	}

	result, err := s.engine.GetMatchResult(ctx, matchID)
	if err != nil {
		return Settlement{}, fmt.Errorf("fetch result of %s: %w", matchID, err)
	}

	scores, ok := s.scores.GetScores(matchID)
	if !ok {
		if result.Scores == nil {
			return Settlement{}, fmt.Errorf("no final scores for %s: %w", matchID, model.ErrInvalidInput)
		}
		scores = *result.Scores
	}

	current, err := s.loadRatings(ctx, m.Players())
	if err != nil {
		return Settlement{}, err
	}
	teamA := aggregate(m.TeamA, current, &result)
	teamB := aggregate(m.TeamB, current, &result)
	outcomeA := outcomeOf(scores)

	out := Settlement{MatchID: matchID, Winner: winnerOf(outcomeA), Scores: scores}
	sides := []struct {
		players []string
		team    rating.Team
		enemy   rating.Team
		outcome rating.Outcome
	}{
		{m.TeamA, teamA, teamB, outcomeA},
		{m.TeamB, teamB, teamA, rating.Win - outcomeA},
	}
	for _, side := range sides {
		for _, playerID := range side.players {
			in := rating.Match{Difficulty: m.Difficulty, Result: side.outcome}
			change, err := s.applyRating(ctx, matchID, playerID, side.team, side.enemy, in, result.Stats(playerID))
			if errors.Is(err, model.ErrAlreadySettled) {
				continue
			}
			if err != nil {
				return Settlement{}, fmt.Errorf("settle %s for %s: %w", matchID, playerID, err)
			}
			out.Changes = append(out.Changes, change)
		}
	}

	s.scores.End(matchID)
	metrics.RecordSettlement("settled")
	s.logger.Info(ctx, "match settled",
		logger.String("match_id", matchID),
		logger.String("winner", out.Winner),
		logger.Int("team_a", scores.TeamA),
		logger.Int("team_b", scores.TeamB),
		logger.Int("changes", len(out.Changes)))
	return out, nil
}

// loadRatings reads every participant's rating concurrently. Unknown
// players start from the default rating.
func (s *Service) loadRatings(ctx context.Context, players []string) (map[string]model.PlayerRating, error) {
	ratings := make([]model.PlayerRating, len(players))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range players {
		g.Go(func() error {
			r, err := s.ratings.Get(gctx, id)
			switch {
			case errors.Is(err, model.ErrPlayerNotFound):
				r = s.rater.NewPlayer(id)
			case err != nil:
				return fmt.Errorf("read rating of %s: %w", id, err)
			}
			ratings[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]model.PlayerRating, len(players))
	for _, r := range ratings {
		out[r.PlayerID] = r
	}
	return out, nil
}

// applyRating updates one player inside the store's per-player transaction.
func (s *Service) applyRating(ctx context.Context, matchID, playerID string, team, enemy rating.Team, match rating.Match, stats model.PlayerStats) (model.RatingChange, error) {
	var change model.RatingChange
	_, err := s.ratings.Update(ctx, playerID, s.rater.NewPlayer(playerID),
		func(cur model.PlayerRating) (model.PlayerRating, model.RatingChange, error) {
			delta := s.rater.CalculateMMRDelta(cur, team, enemy, match, stats)
			newMMR := cur.MMR + delta
			u := s.rater.UpdateRankAndRP(cur, newMMR, match.Result == rating.Win)

			next := cur
			next.MMR = newMMR
			next.Rank = u.Rank
			next.RP = u.RP
			next.LossesSincePromotion = u.LossesSincePromotion

			change = model.RatingChange{
				MatchID:  matchID,
				PlayerID: playerID,
				Delta:    delta,
				MMR:      newMMR,
				Rank:     u.Rank,
				RP:       u.RP,
				Promoted: u.Promoted,
				Demoted:  u.Demoted,
			}
			return next, change, nil
		})
	if err != nil {
		return model.RatingChange{}, err
	}

	metrics.RecordRatingUpdate(change.Delta)
	switch {
	case change.Promoted:
		metrics.RecordRankTransition("promoted")
	case change.Demoted:
		metrics.RecordRankTransition("demoted")
	}
	return change, nil
}

// aggregate averages MMR and sums the match statistics of one side.
func aggregate(players []string, ratings map[string]model.PlayerRating, result *model.MatchResult) rating.Team {
	var t rating.Team
	if len(players) == 0 {
		return t
	}
	for _, id := range players {
		t.MMR += ratings[id].MMR
		st := result.Stats(id)
		t.Flags += st.FlagsCaptured
		t.Uptime += st.UptimeTicks
		t.Downtime += st.DowntimeTicks
	}
	t.MMR /= float64(len(players))
	return t
}

// outcomeOf is the result from team A's side.
func outcomeOf(s model.Scores) rating.Outcome {
	switch {
	case s.TeamA > s.TeamB:
		return rating.Win
	case s.TeamA < s.TeamB:
		return rating.Loss
	default:
		return rating.Draw
	}
}

func winnerOf(o rating.Outcome) string {
	switch o {
	case rating.Win:
		return model.TeamA
	case rating.Loss:
		return model.TeamB
	default:
		return WinnerDraw
	}
}
