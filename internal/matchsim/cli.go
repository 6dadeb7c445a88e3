package matchsim

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/bastion/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging sends logs to stdout and to logFile. An empty logFile gets a
// timestamped name.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		logFile = "matchsim_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return file, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`bastion match simulator
=======================

Plays randomized attack/defense matches against a running bastion service
and checks the resulting ladder.

Usage:
  go run ./cmd/matchsim [options]

Options:
  -url string         Base URL of the service (default "http://localhost:9080")
  -matches int        Number of matches to play (default 20)
  -players int        Size of the player pool (default 40)
  -team-size int      Players per side (default 2)
  -ticks int          Ticks per match (default 30)
  -difficulty string  easy, medium, hard or insane (default "medium")
  -workers int        Matches played concurrently (default CPU cores)
  -seed int           Generator seed (default: current time)
  -timeout duration   HTTP request timeout (default 10s)
  -settle duration    How long to wait for settlements (default 30s)
  -top int            Leaderboard entries to fetch (default 20)
  -log string         Log file (default: matchsim_TIMESTAMP.log)
  -verbose            Enable debug logging
  -help               Show this help message
`)
}
