package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotRunning is returned by Enqueue before Start or after Stop.
var ErrNotRunning = errors.New("jobs: queue is not running")

// ErrFull is returned by Enqueue when the buffer has no room. Callers that
// must not block decide themselves whether to drop or report.
var ErrFull = errors.New("jobs: queue buffer is full")

// Job is one unit of background work.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. A returned error triggers an in-place retry with
// backoff until MaxRetries is exhausted.
type Handler func(context.Context, Job) error

// QueueConfig sizes the worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue is an in-process work queue. Enqueue never blocks; a failing job is
// retried by the worker that holds it, so ordering within a worker is kept.
// Stop drains jobs already accepted before returning.
type Queue struct {
	name       string
	handler    Handler
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	jobs chan Job
	quit chan struct{}
	wg   sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// NewQueue builds a queue with the provided handler. Zero config fields fall
// back to small defaults suited for fire-and-forget writes.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	q := &Queue{
		name:       name,
		handler:    handler,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With(zap.String("queue", name)),
		jobs:       make(chan Job, cfg.BufferSize),
		quit:       make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Start marks the queue as accepting jobs. Workers are already running; the
// ctx bounds handler execution once Stop begins.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.logger.Info("queue accepting jobs")

	go func() {
		select {
		case <-ctx.Done():
			q.Stop()
		case <-q.quit:
		}
	}()
}

// Stop refuses new jobs, drains the buffer and waits for workers to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	close(q.quit)
	close(q.jobs)
	q.wg.Wait()
	q.logger.Info("queue drained")
}

// Enqueue hands a job to the pool without blocking. The read lock pins the
// channel open against a concurrent Stop.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return ErrNotRunning
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrFull
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(job)
	}
}

// run executes a job, retrying in place with linear backoff. The job is
// abandoned with a log line once retries are exhausted or the queue quits.
func (q *Queue) run(job Job) {
	ctx := context.Background()
	for {
		err := q.handler(ctx, job)
		if err == nil {
			return
		}
		job.Attempt++
		if job.Attempt > q.maxRetries {
			q.logger.Error("job abandoned",
				zap.String("job_id", job.ID),
				zap.String("type", job.Type),
				zap.Int("attempts", job.Attempt),
				zap.Error(err))
			return
		}
		q.logger.Warn("job failed, retrying",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Int("attempt", job.Attempt),
			zap.Error(err))

		timer := time.NewTimer(q.retryDelay * time.Duration(job.Attempt))
		select {
		case <-q.quit:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
