package reconciler

import (
	"time"

	"github.com/okian/bastion/pkg/logger"
)

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithInterval sets the poll interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPhaseHook registers a callback run after every broadcast transition.
func WithPhaseHook(h PhaseHook) Option {
	return func(r *Reconciler) {
		r.hook = h
	}
}
