// Package scheduler serializes outbound provider calls through a single worker.
//
// Calls run one at a time in FIFO order with at least MinInterval between dispatches. A call that
// fails because the provider rate limited it sleeps BaseDelay*BackoffMultiplier^retry and is then
// put back at the head of the queue, ahead of anything submitted while it was waiting.
package scheduler

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"aaronromeo.com/inboxsweep/pkg/base"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "aaronromeo.com/inboxsweep/internal/scheduler"

type Config struct {
	MinInterval       time.Duration
	BaseDelay         time.Duration
	BackoffMultiplier float64
	MaxRetries        int
}

func DefaultConfig() Config {
	return Config{
		MinInterval:       100 * time.Millisecond,
		BaseDelay:         time.Second,
		BackoffMultiplier: 2,
		MaxRetries:        3,
	}
}

// Backoff returns the delay before retry number retryCount+1.
func (c Config) Backoff(retryCount int) time.Duration {
	return time.Duration(float64(c.BaseDelay) * math.Pow(c.BackoffMultiplier, float64(retryCount)))
}

// Operation is one outbound call.
type Operation func(ctx context.Context) (any, error)

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.log = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithSleep replaces the timer used for throttling and backoff.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		s.sleep = sleep
	}
}

// WithRateLimitClassifier replaces base.IsRateLimited.
func WithRateLimitClassifier(fn func(error) bool) Option {
	return func(s *Scheduler) {
		s.isRateLimited = fn
	}
}

func WithMeter(meter metric.Meter) Option {
	return func(s *Scheduler) {
		s.meter = meter
	}
}

type result struct {
	value any
	err   error
}

type job struct {
	ctx        context.Context
	op         Operation
	retryCount int
	done       chan result
}

func (j *job) finish(value any, err error) {
	j.done <- result{value: value, err: err}
}

type Scheduler struct {
	cfg           Config
	log           *slog.Logger
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	isRateLimited func(error) bool
	meter         metric.Meter

	mu           sync.Mutex
	queue        []*job
	processing   bool
	lastDispatch time.Time
	cleared      chan struct{}

	dispatches metric.Int64Counter
	retries    metric.Int64Counter
}

func New(cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:           cfg,
		log:           slog.Default(),
		now:           time.Now,
		sleep:         sleepContext,
		isRateLimited: base.IsRateLimited,
		meter:         otel.Meter(instrumentationName),
		cleared:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMetrics()
	return s
}

func (s *Scheduler) setupMetrics() {
	var err error
	s.dispatches, err = s.meter.Int64Counter("inboxsweep.scheduler.dispatches",
		metric.WithDescription("Provider calls dispatched, retries included"))
	if err != nil {
		s.log.Warn("scheduler dispatch counter unavailable", slog.Any("error", err))
		s.dispatches = noop.Int64Counter{}
	}
	s.retries, err = s.meter.Int64Counter("inboxsweep.scheduler.retries",
		metric.WithDescription("Rate limited calls put back for another attempt"))
	if err != nil {
		s.log.Warn("scheduler retry counter unavailable", slog.Any("error", err))
		s.retries = noop.Int64Counter{}
	}
	_, err = s.meter.Int64ObservableGauge("inboxsweep.scheduler.queue_length",
		metric.WithDescription("Calls waiting for the worker"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(s.Len()))
			return nil
		}))
	if err != nil {
		s.log.Warn("scheduler queue gauge unavailable", slog.Any("error", err))
	}
}

// Execute queues op and blocks until it succeeds, fails, or is rejected.
func (s *Scheduler) Execute(ctx context.Context, op Operation) (any, error) {
	return s.Submit(ctx, op).Wait()
}

// Pending is a call queued by Submit.
type Pending struct {
	done <-chan result
	once sync.Once
	res  result
}

// Wait blocks until the call finishes. It may be called more than once.
func (p *Pending) Wait() (any, error) {
	p.once.Do(func() {
		p.res = <-p.done
	})
	return p.res.value, p.res.err
}

// Submit queues op without waiting for it. Calls submitted from one goroutine run in
// submission order.
func (s *Scheduler) Submit(ctx context.Context, op Operation) *Pending {
	j := &job{ctx: ctx, op: op, done: make(chan result, 1)}

	s.mu.Lock()
	s.queue = append(s.queue, j)
	if !s.processing {
		s.processing = true
		go s.process()
	}
	s.mu.Unlock()

	return &Pending{done: j.done}
}

// Do is Execute with a typed result.
func Do[T any](ctx context.Context, s *Scheduler, op func(ctx context.Context) (T, error)) (T, error) {
	value, err := s.Execute(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := value.(T)
	return typed, nil
}

// Len is the number of calls waiting, excluding the one in flight.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// LastDispatch is when the most recent attempt started.
func (s *Scheduler) LastDispatch() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDispatch
}

// Clear rejects every waiting call with base.ErrSchedulerCleared and interrupts a
// backoff in progress. The call in flight, if any, runs to completion.
func (s *Scheduler) Clear() int {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	close(s.cleared)
	s.cleared = make(chan struct{})
	s.mu.Unlock()

	for _, j := range pending {
		j.finish(nil, base.ErrSchedulerCleared)
	}
	if len(pending) > 0 {
		s.log.Info("scheduler cleared", slog.Int("rejected", len(pending)))
	}
	return len(pending)
}

func (s *Scheduler) process() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.processing = false
			s.mu.Unlock()
			return
		}
		j := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		cleared := s.cleared
		wait := s.cfg.MinInterval - s.now().Sub(s.lastDispatch)
		s.mu.Unlock()

		if err := j.ctx.Err(); err != nil {
			j.finish(nil, err)
			continue
		}
		if wait > 0 {
			if err := s.pause(j.ctx, cleared, wait); err != nil {
				j.finish(nil, err)
				continue
			}
		}

		s.mu.Lock()
		s.lastDispatch = s.now()
		s.mu.Unlock()
		s.dispatches.Add(j.ctx, 1)

		value, err := j.op(j.ctx)
		if err == nil {
			j.finish(value, nil)
			continue
		}
		if !s.isRateLimited(err) {
			j.finish(nil, err)
			continue
		}
		if j.retryCount >= s.cfg.MaxRetries {
			s.log.WarnContext(j.ctx, "rate limit retries exhausted",
				slog.Int("attempts", j.retryCount+1),
				slog.Any("error", err))
			j.finish(nil, &base.RetryError{Attempts: j.retryCount + 1, Err: err})
			continue
		}

		delay := s.cfg.Backoff(j.retryCount)
		s.log.DebugContext(j.ctx, "rate limited, backing off",
			slog.Int("retry", j.retryCount+1),
			slog.Duration("delay", delay))
		if err := s.pause(j.ctx, cleared, delay); err != nil {
			j.finish(nil, err)
			continue
		}
		j.retryCount++
		s.retries.Add(j.ctx, 1)

		s.mu.Lock()
		s.queue = append([]*job{j}, s.queue...)
		s.mu.Unlock()
	}
}

// pause sleeps for d unless the job's context ends or the queue is cleared first.
func (s *Scheduler) pause(ctx context.Context, cleared <-chan struct{}, d time.Duration) error {
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-cleared:
			cancel()
		case <-pctx.Done():
		}
	}()

	if err := s.sleep(pctx, d); err != nil {
		select {
		case <-cleared:
			return base.ErrSchedulerCleared
		default:
		}
		return err
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
