// Package reconciler bridges the external match engine's state to
// client-facing phases. One poll loop runs per tracked match and subscribers
// are only notified when the phase changes.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/bastion/internal/domain/model"
	"github.com/okian/bastion/pkg/logger"
	"github.com/okian/bastion/pkg/metrics"
)

// DefaultInterval is the engine poll period.
const DefaultInterval = 3 * time.Second

// StatusSource reports the engine's current state for a match.
type StatusSource interface {
	GetMatchStatus(ctx context.Context, matchID string) (string, error)
}

// Publisher delivers a state change to the match:<id> subscriber group.
type Publisher interface {
	Publish(ctx context.Context, matchID, state string) error
}

// PhaseHook observes broadcast transitions. It runs on the poll goroutine
// without any tracker lock held.
type PhaseHook func(ctx context.Context, matchID string, phase Phase)

type tracker struct {
	mu      sync.Mutex
	phase   Phase
	stopped bool
	gen     uint64
	cancel  context.CancelFunc
}

// Reconciler owns every active tracker of the process.
type Reconciler struct {
	mu       sync.Mutex
	trackers map[string]*tracker
	gen      uint64
	wg       sync.WaitGroup

	source    StatusSource
	publisher Publisher
	interval  time.Duration
	logger    logger.Logger
	hook      PhaseHook
}

// New creates a reconciler polling source and broadcasting through publisher.
func New(source StatusSource, publisher Publisher, opts ...Option) *Reconciler {
	r := &Reconciler{
		trackers:  make(map[string]*tracker),
		source:    source,
		publisher: publisher,
		interval:  DefaultInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("reconciler")
	}
	return r
}

// StartTracking begins polling matchID. A second call for a tracked match is a
// no-op and reports false. A non-empty initial phase is broadcast before the
// first poll. The loop outlives ctx; use StopTracking to end it.
func (r *Reconciler) StartTracking(ctx context.Context, matchID string, initial Phase) bool {
	r.mu.Lock()
	if _, ok := r.trackers[matchID]; ok {
		r.mu.Unlock()
		return false
	}
	r.gen++
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &tracker{gen: r.gen, cancel: cancel}
	r.trackers[matchID] = t
	metrics.UpdateTrackedMatches(len(r.trackers))
	r.mu.Unlock()

	r.logger.Info(ctx, "tracking match",
		logger.String("match_id", matchID),
		logger.String("initial_phase", string(initial)))

	if initial != "" {
		if r.transition(loopCtx, matchID, t, initial) {
			return true
		}
	}

	r.wg.Add(1)
	go r.run(loopCtx, matchID, t)
	return true
}

// StopTracking cancels matchID's loop and forgets it. Once it returns no
// further broadcast for that tracker can happen. Untracked ids are a no-op.
func (r *Reconciler) StopTracking(matchID string) bool {
	r.mu.Lock()
	t, ok := r.trackers[matchID]
	if ok {
		delete(r.trackers, matchID)
		metrics.UpdateTrackedMatches(len(r.trackers))
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	// waits for any broadcast in flight
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	return true
}

// Tracked reports whether matchID has an active loop.
func (r *Reconciler) Tracked(matchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.trackers[matchID]
	return ok
}

// Phase returns the last broadcast phase of a tracked match.
func (r *Reconciler) Phase(matchID string) (Phase, bool) {
	r.mu.Lock()
	t, ok := r.trackers[matchID]
	r.mu.Unlock()
	if !ok {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase, true
}

// Len returns the number of tracked matches.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}

// Close stops every tracker and waits for the loops to exit.
func (r *Reconciler) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.trackers))
	for id := range r.trackers {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.StopTracking(id)
	}
	r.wg.Wait()
}

func (r *Reconciler) run(ctx context.Context, matchID string, t *tracker) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.poll(ctx, matchID, t) {
				return
			}
		}
	}
}

// poll runs one engine query and reports whether the loop should exit.
func (r *Reconciler) poll(ctx context.Context, matchID string, t *tracker) bool {
	metrics.RecordPoll()
	state, err := r.source.GetMatchStatus(ctx, matchID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		metrics.RecordPollFailure(failureReason(err))
		r.logger.Warn(ctx, "engine poll failed",
			logger.String("match_id", matchID),
			logger.Error(err))
		return false
	}

	phase, ok := MapEngineState(state)
	if !ok {
		r.logger.Debug(ctx, "unrecognized engine state",
			logger.String("match_id", matchID),
			logger.String("state", state))
		return false
	}
	return r.transition(ctx, matchID, t, phase)
}

// transition broadcasts phase when it differs from the cached one. It reports
// whether the tracker is finished.
func (r *Reconciler) transition(ctx context.Context, matchID string, t *tracker, phase Phase) bool {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return true
	}
	if t.phase == phase {
		t.mu.Unlock()
		return false
	}
	t.phase = phase
	if err := r.publisher.Publish(ctx, matchID, string(phase)); err != nil {
		r.logger.Warn(ctx, "broadcast failed",
			logger.String("match_id", matchID),
			logger.String("phase", string(phase)),
			logger.Error(err))
	} else {
		metrics.RecordBroadcast()
	}
	done := phase == PhaseEnded
	if done {
		t.stopped = true
	}
	t.mu.Unlock()

	if done {
		r.forget(matchID, t)
		r.logger.Info(ctx, "match ended, tracking stopped", logger.String("match_id", matchID))
	}
	if r.hook != nil && (done || !r.isStopped(t)) {
		r.hook(ctx, matchID, phase)
	}
	if done {
		t.cancel()
	}
	return done
}

func (r *Reconciler) isStopped(t *tracker) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// forget removes t unless the id was re-tracked under a newer generation.
func (r *Reconciler) forget(matchID string, t *tracker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.trackers[matchID]; ok && cur.gen == t.gen {
		delete(r.trackers, matchID)
		metrics.UpdateTrackedMatches(len(r.trackers))
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, model.ErrEngineTimeout):
		return "timeout"
	case errors.Is(err, model.ErrEngineUnavailable):
		return "unavailable"
	case errors.Is(err, model.ErrMatchNotFound):
		return "not_found"
	default:
		return "other"
	}
}
