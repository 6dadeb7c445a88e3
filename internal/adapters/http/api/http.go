// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/okian/bastion/internal/adapters/broadcast"
	"github.com/okian/bastion/internal/adapters/repository"
	service "github.com/okian/bastion/internal/app"
	"github.com/okian/bastion/internal/domain/model"
	"github.com/okian/bastion/pkg/logger"
)

const (
	defaultMaxLimit       = 100
	defaultRequestTimeout = 10 * time.Second
	maxBodyBytes          = 1 << 20
)

// MatchService is the match lifecycle surface used by the handlers.
type MatchService interface {
	AcceptMatch(ctx context.Context, m model.Match) (model.Match, error)
	GetMatch(ctx context.Context, matchID string) (service.MatchView, error)
	RecordTick(ctx context.Context, matchID string, results []model.HealthResult) (bool, error)
	CaptureFlag(ctx context.Context, matchID, teamID, serviceID string, tick int) (bool, error)
	Scores(ctx context.Context, matchID string) (service.Scoreboard, error)
	EndMatch(ctx context.Context, matchID string) error
	InvalidateMatch(ctx context.Context, matchID string) error
	SettleMatch(ctx context.Context, matchID string) error
	Phase(matchID string) (string, bool)
}

// RatingService exposes player ratings and the ladder.
type RatingService interface {
	PlayerRating(ctx context.Context, playerID string) (model.PlayerRating, error)
	RatingHistory(ctx context.Context, playerID string, limit int) ([]model.RatingChange, error)
	Leaderboard(ctx context.Context, n int) ([]repository.Entry, error)
}

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) service.Stats
}

// Dependencies bundles everything the handlers need.
type Dependencies interface {
	MatchService
	RatingService
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps           Dependencies
	hub            *broadcast.Hub
	maxLimit       int
	origins        []string
	requestTimeout time.Duration
	logger         logger.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:           deps,
		maxLimit:       defaultMaxLimit,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Metrics)
	r.Use(AccessLog(s.logger))

	r.Get("/healthz", HandleHealth)
	r.Handle("/metrics", MetricsHandler())
	if s.hub != nil {
		ws := broadcast.NewWSHandler(s.hub,
			func(r *http.Request) string { return chi.URLParam(r, "matchID") },
			s.deps.Phase, s.origins, s.logger.Named("ws"))
		r.Handle("/ws/matches/{matchID}", ws)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout))
		r.Get("/stats", s.handleStats)

		r.Route("/matches", func(r chi.Router) {
			r.Post("/", s.handleAcceptMatch)
			r.Route("/{matchID}", func(r chi.Router) {
				r.Get("/", s.handleGetMatch)
				r.Get("/scores", s.handleScores)
				r.Post("/ticks", s.handleTick)
				r.Post("/flags", s.handleFlag)
				r.Post("/end", s.handleEnd)
				r.Post("/invalidate", s.handleInvalidate)
				r.Post("/settle", s.handleSettle)
			})
		})

		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Get("/rating", s.handleRating)
			r.Get("/history", s.handleHistory)
		})

		r.Get("/leaderboard", s.handleLeaderboard)
	})
	return r
}

type ackResponse struct {
	Status  string `json:"status"`
	MatchID string `json:"match_id,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("code", code),
			logger.Error(err))
	}
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decode reads a JSON body, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// ackStatus is "ignored" for input reaching a match that is not being scored.
func ackStatus(applied bool) string {
	if applied {
		return "accepted"
	}
	return "ignored"
}
