package service

import (
	"time"

	"github.com/okian/bastion/internal/adapters/repository"
	"github.com/okian/bastion/internal/domain/rating"
	"github.com/okian/bastion/internal/domain/reconciler"
	"github.com/okian/bastion/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithMatchStore sets the match store. Defaults to an in-memory store.
func WithMatchStore(store repository.MatchStore) Option {
	return func(s *Service) {
		if store != nil {
			s.matches = store
		}
	}
}

// WithRatingStore sets the rating store. Defaults to an in-memory store.
func WithRatingStore(store repository.RatingStore) Option {
	return func(s *Service) {
		if store != nil {
			s.ratings = store
		}
	}
}

// WithPublisher sets where phase changes are broadcast.
func WithPublisher(p reconciler.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithRatingEngine overrides the default rating engine.
func WithRatingEngine(e *rating.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.rater = e
		}
	}
}

// WithPollInterval sets the engine poll period of tracked matches.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithWorkerCount sets the number of settlement workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending settlements.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many settlement claims are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSettleRetry sets the attempt budget and base backoff of settlements
// failing on engine outages.
func WithSettleRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.settleAttempts = attempts
		}
		if backoff > 0 {
			s.settleBackoff = backoff
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
