package api

import (
	"time"

	"github.com/okian/bastion/internal/adapters/broadcast"
	"github.com/okian/bastion/pkg/logger"
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxLeaderboardLimit caps the limit accepted by GET /leaderboard.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithHub enables the match subscription endpoint backed by hub.
func WithHub(hub *broadcast.Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithOrigins sets the origin patterns accepted on websocket upgrades.
func WithOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithRequestTimeout bounds non-streaming requests.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
