// Package worker runs settlement jobs from the queue on a fixed pool of
// goroutines, retrying transient failures with backoff.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/bastion/internal/adapters/mq/queue"
	"github.com/okian/bastion/internal/domain/model"
	"github.com/okian/bastion/pkg/logger"
	"github.com/okian/bastion/pkg/metrics"
)

const (
	defaultWorkerCount = 4
	defaultMaxAttempts = 5
	defaultBackoff     = 2 * time.Second
	defaultJobTimeout  = 30 * time.Second
)

// Handler settles one job.
type Handler interface {
	Handle(ctx context.Context, job queue.Job) error
}

// DropHandler is notified when a job is given up on.
type DropHandler interface {
	Dropped(ctx context.Context, job queue.Job, err error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job queue.Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, job queue.Job) error { return f(ctx, job) }

// Pool consumes a queue with a fixed number of workers.
type Pool struct {
	queue   queue.Queue
	handler Handler

	workerCount int
	maxAttempts int
	backoff     time.Duration
	jobTimeout  time.Duration
	logger      logger.Logger

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewPool creates a pool. Start must be called to begin consuming.
func NewPool(q queue.Queue, h Handler, opts ...Option) *Pool {
	p := &Pool{
		queue:       q,
		handler:     h,
		workerCount: defaultWorkerCount,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		jobTimeout:  defaultJobTimeout,
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}
	return p
}

// Start launches the workers. They exit when ctx ends or the queue drains
// after Close.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, p.logger.Named("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(p.workerCount)
}

func (p *Pool) run(ctx context.Context, log logger.Logger) {
	defer p.wg.Done()
	jobs := p.queue.Jobs()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			p.process(ctx, log, job)
		}
	}
}

func (p *Pool) process(ctx context.Context, log logger.Logger, job queue.Job) {
	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	err := p.handler.Handle(jobCtx, job)
	cancel()
	metrics.RecordWorkerLatency(float64(time.Since(start).Milliseconds()))
	metrics.UpdateQueueSize(p.queue.Len())
	if err == nil {
		return
	}

	metrics.RecordWorkerError()
	job.Attempt++
	if model.IsTransient(err) && job.Attempt < p.maxAttempts {
		delay := p.backoff << (job.Attempt - 1)
		log.Warn(ctx, "settlement failed, retrying",
			logger.String("match_id", job.MatchID),
			logger.Int("attempt", job.Attempt),
			logger.Duration("retry_in", delay),
			logger.Error(err))
		p.retry(ctx, job, delay)
		return
	}

	log.Error(ctx, "settlement failed",
		logger.String("match_id", job.MatchID),
		logger.Int("attempt", job.Attempt),
		logger.Error(err))
	p.drop(ctx, job, err)
}

func (p *Pool) retry(ctx context.Context, job queue.Job, delay time.Duration) {
	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			p.drop(ctx, job, ctx.Err())
			return
		case <-p.stop:
			p.drop(ctx, job, queue.ErrClosed)
			return
		}
		job.EnqueuedAt = time.Time{}
		if err := p.queue.Enqueue(ctx, job); err != nil {
			p.drop(ctx, job, fmt.Errorf("requeue: %w", err))
		}
	}()
}

func (p *Pool) drop(ctx context.Context, job queue.Job, err error) {
	if d, ok := p.handler.(DropHandler); ok {
		d.Dropped(ctx, job, err)
	}
}

// Shutdown closes the queue and waits for workers to drain the remaining
// jobs or for ctx to expire. Pending retries are dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() { close(p.stop) })
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "worker shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
