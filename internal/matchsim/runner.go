package matchsim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/bastion/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const settlePollInterval = 250 * time.Millisecond

// Run plays cfg.Matches matches against the service, waits for their
// settlements and verifies the ladder.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	if cfg.TeamSize < 1 || 2*cfg.TeamSize > cfg.Players {
		return nil, fmt.Errorf("need at least %d players for team size %d", 2*cfg.TeamSize, cfg.TeamSize)
	}
	stats := &Stats{StartTime: time.Now()}
	log.Info(ctx, "starting match simulation",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("matches", cfg.Matches),
		logger.Int("players", cfg.Players),
		logger.Int("team_size", cfg.TeamSize),
		logger.Int("ticks", cfg.Ticks),
		logger.Int("workers", cfg.Workers),
		logger.Int64("seed", cfg.Seed))

	c := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := c.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	gen := NewGenerator(cfg.Seed, cfg.Players)
	plans := make([]Plan, cfg.Matches)
	participants := make(map[string]struct{})
	for i := range plans {
		plans[i] = gen.Next(cfg.Difficulty, cfg.TeamSize, cfg.Ticks)
		for _, p := range append(plans[i].Match.TeamA, plans[i].Match.TeamB...) {
			participants[p] = struct{}{}
		}
	}

	var played, failed, ticks, flags atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for _, p := range plans {
		g.Go(func() error {
			t, f, err := play(gctx, c, p)
			ticks.Add(int64(t))
			flags.Add(int64(f))
			if err != nil {
				failed.Add(1)
				log.Warn(gctx, "match failed", logger.String("match_id", p.Match.MatchID), logger.Error(err))
				return nil
			}
			played.Add(1)
			log.Debug(gctx, "match played", logger.String("match_id", p.Match.MatchID))
			return nil
		})
	}
	_ = g.Wait()
	stats.MatchesPlayed = int(played.Load())
	stats.MatchesFailed = int(failed.Load())
	stats.TicksSent = int(ticks.Load())
	stats.FlagsSent = int(flags.Load())
	if stats.MatchesPlayed == 0 {
		return stats, errors.New("no match was played")
	}

	rated, err := waitForSettlements(ctx, c, participants, cfg.SettleWait)
	stats.PlayersRated = rated
	if err != nil {
		return stats, err
	}

	board, err := c.Leaderboard(ctx, cfg.TopN)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(board)
	if err := VerifyLeaderboard(board); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logStats(ctx, log, stats, board)
	return stats, nil
}

// play sends one plan through the API and returns the ticks and flags sent.
func play(ctx context.Context, c *Client, p Plan) (int, int, error) {
	var ticks, flags int
	if err := c.AcceptMatch(ctx, p.Match); err != nil {
		return 0, 0, err
	}
	for i, results := range p.Ticks {
		if err := c.Tick(ctx, p.Match.MatchID, results); err != nil {
			return ticks, flags, err
		}
		ticks++
		for _, f := range p.Flags[i+1] {
			if err := c.CaptureFlag(ctx, p.Match.MatchID, f); err != nil {
				return ticks, flags, err
			}
			flags++
		}
	}
	return ticks, flags, c.EndMatch(ctx, p.Match.MatchID)
}

// waitForSettlements polls player ratings until every participant has been
// rated at least once or wait runs out.
func waitForSettlements(ctx context.Context, c *Client, participants map[string]struct{}, wait time.Duration) (int, error) {
	deadline := time.Now().Add(wait)
	pending := make(map[string]struct{}, len(participants))
	for p := range participants {
		pending[p] = struct{}{}
	}
	for {
		for p := range pending {
			r, err := c.Rating(ctx, p)
			if err != nil {
				return len(participants) - len(pending), err
			}
			if !r.UpdatedAt.IsZero() {
				delete(pending, p)
			}
		}
		if len(pending) == 0 {
			return len(participants), nil
		}
		if time.Now().After(deadline) {
			return len(participants) - len(pending), fmt.Errorf("%d players still unrated after %s", len(pending), wait)
		}
		select {
		case <-ctx.Done():
			return len(participants) - len(pending), ctx.Err()
		case <-time.After(settlePollInterval):
		}
	}
}

func logStats(ctx context.Context, log logger.Logger, s *Stats, board []Entry) {
	var matchesPerSecond float64
	if s.Duration > 0 {
		matchesPerSecond = float64(s.MatchesPlayed) / s.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("matches_played", s.MatchesPlayed),
		logger.Int("matches_failed", s.MatchesFailed),
		logger.Int("ticks_sent", s.TicksSent),
		logger.Int("flags_sent", s.FlagsSent),
		logger.Int("players_rated", s.PlayersRated),
		logger.Int("leaderboard_entries", s.LeaderboardEntries),
		logger.Duration("duration", s.Duration),
		logger.Float64("matches_per_second", matchesPerSecond))
	for _, e := range board {
		log.Info(ctx, "ladder",
			logger.Int("position", e.Position),
			logger.String("player_id", e.PlayerID),
			logger.Float64("mmr", e.MMR),
			logger.String("rank", e.Rank),
			logger.Int("rp", e.RP))
	}
}
