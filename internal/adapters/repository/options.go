package repository

import (
	"time"

	"github.com/okian/bastion/pkg/logger"
)

// Option applies a configuration option to the SQLiteRatingStore.
type Option func(*SQLiteRatingStore)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLiteRatingStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for UpdatedAt and history rows.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteRatingStore) {
		if now != nil {
			s.now = now
		}
	}
}
