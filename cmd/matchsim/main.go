package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/bastion/internal/matchsim"
	"github.com/okian/bastion/pkg/logger"
)

const (
	defaultMatches    = 20
	defaultPlayers    = 40
	defaultTeamSize   = 2
	defaultTicks      = 30
	defaultTopN       = 20
	defaultTimeout    = 10 * time.Second
	defaultSettleWait = 30 * time.Second
	runTimeout        = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		matches    = flag.Int("matches", defaultMatches, "Number of matches to play")
		players    = flag.Int("players", defaultPlayers, "Size of the player pool")
		teamSize   = flag.Int("team-size", defaultTeamSize, "Players per side")
		ticks      = flag.Int("ticks", defaultTicks, "Ticks per match")
		difficulty = flag.String("difficulty", "medium", "Difficulty of every match")
		workers    = flag.Int("workers", runtime.NumCPU(), "Matches played concurrently")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "Generator seed")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", defaultSettleWait, "How long to wait for settlements")
		topN       = flag.Int("top", defaultTopN, "Leaderboard entries to fetch")
		logFile    = flag.String("log", "", "Log file (default: matchsim_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		matchsim.ShowHelp()
		return
	}

	closer, err := matchsim.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	cfg := &matchsim.Config{
		BaseURL:    *baseURL,
		Matches:    *matches,
		Players:    *players,
		TeamSize:   *teamSize,
		Ticks:      *ticks,
		Difficulty: *difficulty,
		Workers:    *workers,
		Seed:       *seed,
		Timeout:    *timeout,
		SettleWait: *settle,
		TopN:       *topN,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}
	if _, err := matchsim.Run(ctx, cfg, logger.Named("matchsim")); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		cancel()
		_ = closer.Close()
		os.Exit(1)
	}
}
