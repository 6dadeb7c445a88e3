// Package config defines service configuration and its layered loader.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Rating store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	LogJSON  bool   `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// PollIntervalMS is the engine poll period of every tracked match.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// EngineURL is the base URL of the match-execution engine.
	EngineURL       string `koanf:"engine_url"`
	EngineTimeoutMS int    `koanf:"engine_timeout_ms"`

	// QueueSize bounds the settlement queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of settlement workers.
	WorkerCount int `koanf:"worker_count"`

	// SettleMaxAttempts bounds retries of a settlement hitting engine outages.
	SettleMaxAttempts int `koanf:"settle_max_attempts"`

	// DedupeSize bounds the remembered settlement claims.
	DedupeSize int `koanf:"dedupe_size"`

	// RatingStore selects the rating backend: memory or sqlite.
	RatingStore string `koanf:"rating_store"`
	SQLitePath  string `koanf:"sqlite_path"`

	// RedisAddr enables cross-process match broadcasts when set.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// CORSOrigins lists allowed browser origins, also used for websocket
	// origin checks.
	CORSOrigins []string `koanf:"cors_origins"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		PollIntervalMS:      3000,
		EngineURL:           "http://localhost:7070",
		EngineTimeoutMS:     5000,
		QueueSize:           1024,
		WorkerCount:         runtime.NumCPU(),
		SettleMaxAttempts:   5,
		DedupeSize:          50_000,
		RatingStore:         StoreMemory,
		SQLitePath:          "bastion.db",
		CORSOrigins:         []string{"*"},
		MaxLeaderboardLimit: 100,
	}
}

// PollInterval returns PollIntervalMS as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// EngineTimeout returns EngineTimeoutMS as a duration.
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.EngineTimeoutMS) * time.Millisecond
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.EngineURL == "":
		return fmt.Errorf("%w: engine_url must not be empty", ErrInvalidConfig)
	case c.PollIntervalMS <= 0:
		return fmt.Errorf("%w: poll_interval_ms must be positive", ErrInvalidConfig)
	case c.EngineTimeoutMS <= 0:
		return fmt.Errorf("%w: engine_timeout_ms must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	case c.RatingStore != StoreMemory && c.RatingStore != StoreSQLite:
		return fmt.Errorf("%w: rating_store must be %q or %q", ErrInvalidConfig, StoreMemory, StoreSQLite)
	case c.RatingStore == StoreSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path is required for the sqlite store", ErrInvalidConfig)
	}
	return nil
}
