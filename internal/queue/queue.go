// Package queue provides admission and concurrency control for order
// execution: one job per order id, a bounded worker pool, a rolling-window
// dequeue rate limit, and exponential-backoff retries up to an attempt cap.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avelinsk/swapflow/internal/domain"
)

// Executor runs one order's full state-machine sequence for a single attempt.
// A returned error signals the attempt failed and the queue's retry policy
// applies; errors matching domain.ErrLimitNotMet are business-rule failures
// and are never retried.
type Executor interface {
	Execute(ctx context.Context, o domain.Order, attempt int) error
}

// Config holds the queue's scheduling parameters.
type Config struct {
	Workers         int
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Metrics is a point-in-time snapshot of the queue's bookkeeping.
type Metrics struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

type jobState int

const (
	stateWaiting jobState = iota
	stateActive
	stateRetryWait
	stateCompleted
	stateFailed
)

// job is the unit of scheduled work, one per order. jobID == orderID, which
// guarantees at most one in-flight execution per order.
type job struct {
	order   domain.Order // admitted payload; per-attempt state reset by the executor
	attempt int
	state   jobState
	timer   *time.Timer
}

const rateLimitKey = "order-execution"

// rate-limit poll interval while a worker waits for a dequeue slot.
const limiterPoll = 50 * time.Millisecond

// Queue schedules order executions across a bounded worker pool.
type Queue struct {
	cfg     Config
	exec    Executor
	limiter domain.RateLimiter
	logger  *slog.Logger

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool

	ready chan string
}

// New creates a Queue. Run must be called before enqueued jobs are processed.
func New(cfg Config, exec Executor, limiter domain.RateLimiter, logger *slog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	return &Queue{
		cfg:     cfg,
		exec:    exec,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "queue")),
		jobs:    make(map[string]*job),
		ready:   make(chan string, 4096),
	}
}

// Enqueue admits an order for execution. It is idempotent per order id: if a
// job for the id already exists in any state, it returns domain.ErrJobExists
// and nothing changes.
func (q *Queue) Enqueue(ctx context.Context, o domain.Order) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueClosed
	}
	if _, ok := q.jobs[o.ID]; ok {
		q.mu.Unlock()
		return domain.ErrJobExists
	}
	q.jobs[o.ID] = &job{order: o, state: stateWaiting}
	q.mu.Unlock()

	select {
	case q.ready <- o.ID:
	case <-ctx.Done():
		// Admission recorded; the job will be picked up even though the
		// caller gave up waiting for the hand-off.
		go func() { q.ready <- o.ID }()
		return ctx.Err()
	}

	q.logger.InfoContext(ctx, "order enqueued", slog.String("order_id", o.ID))
	return nil
}

// Run starts the worker pool and blocks until the context is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			q.workerLoop(ctx, worker)
		}(i)
	}
	<-ctx.Done()
	wg.Wait()

	q.mu.Lock()
	q.closed = true
	for _, j := range q.jobs {
		if j.timer != nil {
			j.timer.Stop()
		}
	}
	q.mu.Unlock()

	return ctx.Err()
}

func (q *Queue) workerLoop(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.ready:
			if err := q.awaitSlot(ctx); err != nil {
				return
			}
			q.process(ctx, id, worker)
		}
	}
}

// awaitSlot blocks until the rolling-window rate limit admits another dequeue.
// A nil limiter, or a limiter error, fails open so a Redis outage degrades to
// unlimited dequeues instead of stalling the pool.
func (q *Queue) awaitSlot(ctx context.Context) error {
	if q.limiter == nil {
		return nil
	}
	for {
		allowed, err := q.limiter.Allow(ctx, rateLimitKey, q.cfg.RateLimitMax, q.cfg.RateLimitWindow)
		if err != nil {
			q.logger.WarnContext(ctx, "rate limiter unavailable, failing open",
				slog.String("error", err.Error()),
			)
			return nil
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(limiterPoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *Queue) process(ctx context.Context, id string, worker int) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok || j.state != stateWaiting {
		q.mu.Unlock()
		return
	}
	j.state = stateActive
	attempt := j.attempt
	order := j.order
	q.mu.Unlock()

	q.logger.InfoContext(ctx, "processing order",
		slog.String("order_id", id),
		slog.Int("attempt", attempt+1),
		slog.Int("worker", worker),
	)

	err := q.exec.Execute(ctx, order, attempt)

	q.mu.Lock()
	defer q.mu.Unlock()

	if err == nil {
		j.state = stateCompleted
		q.logger.InfoContext(ctx, "order completed", slog.String("order_id", id))
		return
	}

	if errors.Is(err, context.Canceled) {
		// Shutdown mid-attempt: put the job back so a restart can retry it.
		j.state = stateWaiting
		return
	}

	permanent := errors.Is(err, domain.ErrLimitNotMet)
	lastAttempt := attempt+1 >= q.cfg.MaxAttempts

	if permanent || lastAttempt {
		j.state = stateFailed
		q.logger.ErrorContext(ctx, "order permanently failed",
			slog.String("order_id", id),
			slog.Int("attempts", attempt+1),
			slog.String("error", err.Error()),
		)
		return
	}

	delay := Backoff(q.cfg.BaseBackoff, q.cfg.MaxBackoff, attempt)
	j.attempt = attempt + 1
	j.state = stateRetryWait
	j.timer = time.AfterFunc(delay, func() { q.requeue(id) })

	q.logger.WarnContext(ctx, "order attempt failed, retry scheduled",
		slog.String("order_id", id),
		slog.Int("attempt", attempt+1),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}

func (q *Queue) requeue(id string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	j, ok := q.jobs[id]
	if !ok || j.state != stateRetryWait {
		q.mu.Unlock()
		return
	}
	j.state = stateWaiting
	j.timer = nil
	q.mu.Unlock()

	q.ready <- id
}

// Metrics returns the queue's state at call time.
func (q *Queue) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	var m Metrics
	for _, j := range q.jobs {
		switch j.state {
		case stateWaiting, stateRetryWait:
			m.Waiting++
		case stateActive:
			m.Active++
		case stateCompleted:
			m.Completed++
		case stateFailed:
			m.Failed++
		}
	}
	m.Total = m.Waiting + m.Active + m.Completed + m.Failed
	return m
}
