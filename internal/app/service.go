// Package service wires the match lifecycle: scoring during a match, engine
// reconciliation, and rating settlement once a match ends.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/bastion/internal/adapters/broadcast"
	"github.com/okian/bastion/internal/adapters/mq/queue"
	"github.com/okian/bastion/internal/adapters/mq/worker"
	"github.com/okian/bastion/internal/adapters/repository"
	"github.com/okian/bastion/internal/domain/dedupe"
	"github.com/okian/bastion/internal/domain/model"
	"github.com/okian/bastion/internal/domain/rating"
	"github.com/okian/bastion/internal/domain/reconciler"
	"github.com/okian/bastion/internal/domain/scoring"
	"github.com/okian/bastion/pkg/logger"
	"github.com/okian/bastion/pkg/metrics"
)

const (
	defaultWorkerCount    = 4
	defaultQueueSize      = 1024
	defaultDedupeSize     = 50_000
	defaultSettleAttempts = 5
	defaultSettleBackoff  = 2 * time.Second
)

// Engine is the external match-execution engine.
type Engine interface {
	StartMatch(ctx context.Context, m model.Match) error
	GetMatchStatus(ctx context.Context, matchID string) (string, error)
	GetMatchResult(ctx context.Context, matchID string) (model.MatchResult, error)
}

// Service owns one instance of every lifecycle component.
type Service struct {
	mu sync.RWMutex

	engine     Engine
	matches    repository.MatchStore
	ratings    repository.RatingStore
	publisher  reconciler.Publisher
	rater      *rating.Engine
	scores     *scoring.Model
	reconciler *reconciler.Reconciler
	deduper    dedupe.Deduper
	queue      *queue.InMemoryQueue
	pool       *worker.Pool

	pollInterval   time.Duration
	workerCount    int
	queueSize      int
	dedupeSize     int
	settleAttempts int
	settleBackoff  time.Duration

	started bool
	logger  logger.Logger
}

// New constructs a Service around the engine client.
func New(engine Engine, opts ...Option) *Service {
	s := &Service{
		engine:         engine,
		pollInterval:   reconciler.DefaultInterval,
		workerCount:    defaultWorkerCount,
		queueSize:      defaultQueueSize,
		dedupeSize:     defaultDedupeSize,
		settleAttempts: defaultSettleAttempts,
		settleBackoff:  defaultSettleBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.matches == nil {
		s.matches = repository.NewMemoryMatchStore()
	}
	if s.ratings == nil {
		s.ratings = repository.NewMemoryRatingStore()
	}
	if s.publisher == nil {
		s.publisher = broadcast.NewHub(broadcast.WithLogger(s.logger.Named("broadcast")))
	}
	if s.rater == nil {
		s.rater = rating.NewEngine()
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.scores = scoring.NewModel(scoring.WithLogger(s.logger.Named("scoring")))
	s.reconciler = reconciler.New(s.engine, s.publisher,
		reconciler.WithInterval(s.pollInterval),
		reconciler.WithLogger(s.logger.Named("reconciler")),
		reconciler.WithPhaseHook(s.onPhase))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.queue, settlementHandler{s},
		worker.WithWorkerCount(s.workerCount),
		worker.WithMaxAttempts(s.settleAttempts),
		worker.WithRetryBackoff(s.settleBackoff),
		worker.WithLogger(s.logger.Named("worker-pool")))
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "match service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Duration("poll_interval", s.pollInterval))
	return nil
}

// Stop stops every tracker and drains pending settlements.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.reconciler.Close()
	err := s.pool.Shutdown(ctx)
	s.started = false
	s.logger.Info(ctx, "match service stopped")
	return err
}

// Stats is a snapshot for monitoring.
type Stats struct {
	Started        bool `json:"started"`
	TrackedMatches int  `json:"tracked_matches"`
	ScoredMatches  int  `json:"scored_matches"`
	PendingSettles int  `json:"pending_settlements"`
	SettleClaims   int  `json:"settlement_claims"`
	RatedPlayers   int  `json:"rated_players"`
	WorkerCount    int  `json:"worker_count"`
	QueueCapacity  int  `json:"queue_capacity"`
}

// GetStats returns service statistics.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Started:       s.started,
		WorkerCount:   s.workerCount,
		QueueCapacity: s.queueSize,
		RatedPlayers:  s.ratings.Count(ctx),
	}
	if s.reconciler != nil {
		st.TrackedMatches = s.reconciler.Len()
		st.ScoredMatches = s.scores.Len()
		st.PendingSettles = s.queue.Len()
		st.SettleClaims = s.deduper.Size()
	}
	return st
}

// Phase returns the last broadcast phase of a tracked match.
func (s *Service) Phase(matchID string) (string, bool) {
	s.mu.RLock()
	r := s.reconciler
	s.mu.RUnlock()
	if r == nil {
		return "", false
	}
	p, ok := r.Phase(matchID)
	return string(p), ok
}

// onPhase keeps the match record in step with the engine and schedules
// settlement when a match ends.
func (s *Service) onPhase(ctx context.Context, matchID string, phase reconciler.Phase) {
	var to model.Status
	switch phase {
	case reconciler.PhaseRunning:
		to = model.StatusRunning
	case reconciler.PhaseEnded:
		to = model.StatusEnded
	default:
		return
	}
	if _, err := s.matches.AdvanceStatus(ctx, matchID, to); err != nil {
		if errors.Is(err, model.ErrMatchInvalid) {
			s.logger.Debug(ctx, "phase of invalid match ignored",
				logger.String("match_id", matchID),
				logger.String("phase", string(phase)))
			return
		}
		s.logger.Warn(ctx, "cannot advance match status",
			logger.String("match_id", matchID),
			logger.String("to", to.String()),
			logger.Error(err))
		return
	}
	if to == model.StatusEnded {
		s.scores.Freeze(matchID)
		if err := s.scheduleSettlement(ctx, matchID); err != nil && !errors.Is(err, model.ErrAlreadySettled) {
			s.logger.Error(ctx, "cannot schedule settlement",
				logger.String("match_id", matchID),
				logger.Error(err))
		}
	}
}

// scheduleSettlement claims and enqueues a settlement for an ended match.
func (s *Service) scheduleSettlement(ctx context.Context, matchID string) error {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if err := settleable(m); err != nil {
		return err
	}
	if !s.deduper.Claim(ctx, matchID) {
		metrics.RecordDuplicateSettlement()
		return fmt.Errorf("match %s: %w", matchID, model.ErrAlreadySettled)
	}
	if err := s.queue.Enqueue(ctx, queue.Job{MatchID: matchID}); err != nil {
		s.deduper.Release(ctx, matchID)
		return fmt.Errorf("enqueue settlement: %w", err)
	}
	return nil
}

func settleable(m model.Match) error {
	if m.Invalid {
		return fmt.Errorf("match %s: %w", m.ID, model.ErrMatchInvalid)
	}
	if m.Status != model.StatusEnded {
		return fmt.Errorf("match %s is %s: %w", m.ID, m.Status, model.ErrMatchNotEnded)
	}
	return nil
}

// settlementHandler adapts the service to the worker pool.
type settlementHandler struct{ s *Service }

func (h settlementHandler) Handle(ctx context.Context, job queue.Job) error {
	_, err := h.s.settle(ctx, job.MatchID)
	return err
}

func (h settlementHandler) Dropped(ctx context.Context, job queue.Job, err error) {
	h.s.deduper.Release(ctx, job.MatchID)
	metrics.RecordSettlement("failed")
	h.s.logger.Error(ctx, "settlement abandoned",
		logger.String("match_id", job.MatchID),
		logger.Int("attempts", job.Attempt),
		logger.Error(err))
}
