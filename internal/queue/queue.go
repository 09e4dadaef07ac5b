// Package queue persists mutating actions that could not be executed right away and replays
// them through the scheduler once the provider is reachable again.
//
// Delivery is at least once. Replaying an intent whose earlier attempt reached the provider
// relies on the gateway calls being idempotent.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"aaronromeo.com/inboxsweep/internal/announcer"
	"aaronromeo.com/inboxsweep/internal/gateway"
	"aaronromeo.com/inboxsweep/internal/scheduler"
	"aaronromeo.com/inboxsweep/pkg/base"
	"aaronromeo.com/inboxsweep/pkg/commands"
	"aaronromeo.com/inboxsweep/pkg/models/action"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "aaronromeo.com/inboxsweep/internal/queue"

// Store is an ordered, persistent key-value store of intents keyed by id.
type Store interface {
	Init(ctx context.Context) error
	Add(ctx context.Context, intent action.Intent) error
	// GetAll returns every intent in insertion order.
	GetAll(ctx context.Context) ([]action.Intent, error)
	Get(ctx context.Context, id string) (action.Intent, bool, error)
	// Put overwrites an existing intent. Unknown ids are ignored.
	Put(ctx context.Context, intent action.Intent) error
	// Delete removes an intent. Unknown ids are ignored.
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

type Config struct {
	// MaxRetries is the number of failed flush attempts after which an intent is evicted.
	MaxRetries int
}

func DefaultConfig() Config {
	return Config{MaxRetries: 5}
}

// Result summarizes one flush pass.
type Result struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

type Option func(*Queue)

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.log = logger
	}
}

func WithAnnouncer(a announcer.Service) Option {
	return func(q *Queue) {
		q.announce = a
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

func WithMeter(meter metric.Meter) Option {
	return func(q *Queue) {
		q.meter = meter
	}
}

type Queue struct {
	cfg      Config
	store    Store
	// gateway runs each provider call as its own scheduler job.
	gateway  gateway.Gateway
	executor *commands.CommandExecutor
	log      *slog.Logger
	announce announcer.Service
	now      func() time.Time
	meter    metric.Meter
	tracer   trace.Tracer

	initMu    sync.Mutex
	available bool

	flushMu sync.Mutex
	keys    keyLocks

	synced metric.Int64Counter
	failed metric.Int64Counter
}

func New(store Store, sched *scheduler.Scheduler, gw gateway.Gateway, cfg Config, opts ...Option) *Queue {
	q := &Queue{
		cfg:      cfg,
		store:    store,
		gateway:  scheduler.Throttle(sched, gw),
		log:      slog.Default(),
		announce: announcer.Noop{},
		now:      time.Now,
		meter:    otel.Meter(instrumentationName),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.executor = commands.NewCommandExecutor(q.log)

	var err error
	if q.synced, err = q.meter.Int64Counter("inboxsweep.queue.synced"); err != nil {
		q.synced = noop.Int64Counter{}
	}
	if q.failed, err = q.meter.Int64Counter("inboxsweep.queue.failed"); err != nil {
		q.failed = noop.Int64Counter{}
	}
	return q
}

// Init opens the backing store. It is safe to call repeatedly. When the store cannot be
// opened the queue stays usable as a no-op and Available reports false.
func (q *Queue) Init(ctx context.Context) error {
	q.initMu.Lock()
	defer q.initMu.Unlock()
	if q.available {
		return nil
	}
	if q.store == nil {
		q.log.WarnContext(ctx, "no durable store configured, offline actions will not be kept")
		return nil
	}
	if err := q.store.Init(ctx); err != nil {
		q.log.WarnContext(ctx, "durable store unavailable, offline actions will not be kept",
			slog.Any("error", err))
		return nil
	}
	q.available = true
	return nil
}

func (q *Queue) Available() bool {
	q.initMu.Lock()
	defer q.initMu.Unlock()
	return q.available
}

// Enqueue assigns an id, resets the retry count and persists the intent.
func (q *Queue) Enqueue(ctx context.Context, intent action.Intent) (string, error) {
	if err := intent.Validate(); err != nil {
		return "", err
	}
	if !q.Available() {
		return "", base.ErrStorageUnavailable
	}

	intent.ID = uuid.NewString()
	intent.RetryCount = 0
	intent.LastError = ""
	intent.CreatedAt = q.now().UTC()
	if err := q.store.Add(ctx, intent); err != nil {
		return "", errors.Wrapf(err, "persist %s intent", intent.Type)
	}

	q.log.InfoContext(ctx, "action queued",
		slog.String("intent", intent.ID),
		slog.String("type", string(intent.Type)))
	q.announcePending(ctx)
	return intent.ID, nil
}

// ListPending returns the pending intents in insertion order.
func (q *Queue) ListPending(ctx context.Context) ([]action.Intent, error) {
	if !q.Available() {
		return nil, nil
	}
	intents, err := q.store.GetAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list pending intents")
	}
	return intents, nil
}

func (q *Queue) Count(ctx context.Context) (int, error) {
	if !q.Available() {
		return 0, nil
	}
	n, err := q.store.Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "count pending intents")
	}
	return n, nil
}

// Remove deletes an intent. Unknown ids are ignored.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.remove(ctx, id); err != nil {
		return err
	}
	q.announcePending(ctx)
	return nil
}

func (q *Queue) remove(ctx context.Context, id string) error {
	if !q.Available() {
		return nil
	}
	unlock := q.keys.lock(id)
	defer unlock()
	if err := q.store.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "remove intent %s", id)
	}
	return nil
}

// Cancel removes a pending intent before it runs and reports whether it was still pending.
// An intent that a flush is attempting is waited for; if it synced, Cancel reports false.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	if !q.Available() {
		return false, nil
	}
	unlock := q.keys.lock(id)
	_, ok, err := q.store.Get(ctx, id)
	if err == nil && ok {
		err = q.store.Delete(ctx, id)
	}
	unlock()
	if err != nil {
		return false, errors.Wrapf(err, "cancel intent %s", id)
	}
	if !ok {
		return false, nil
	}
	q.log.InfoContext(ctx, "queued action cancelled", slog.String("intent", id))
	q.announcePending(ctx)
	return true, nil
}

// IncrementRetry bumps the retry count of an intent. Unknown ids are ignored.
func (q *Queue) IncrementRetry(ctx context.Context, id string) error {
	return q.incrementRetry(ctx, id, "")
}

// incrementRetry is a read-modify-write, serialized per id.
func (q *Queue) incrementRetry(ctx context.Context, id, lastError string) error {
	if !q.Available() {
		return nil
	}
	unlock := q.keys.lock(id)
	defer unlock()

	intent, ok, err := q.store.Get(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "load intent %s", id)
	}
	if !ok {
		return nil
	}
	intent.RetryCount++
	if lastError != "" {
		intent.LastError = lastError
	}
	if err := q.store.Put(ctx, intent); err != nil {
		return errors.Wrapf(err, "update intent %s", id)
	}
	return nil
}

// Flush attempts every intent pending when it starts. Intents that have used their retry
// budget are evicted without another attempt. Overlapping calls return base.ErrFlushInProgress.
func (q *Queue) Flush(ctx context.Context) (Result, error) {
	if !q.flushMu.TryLock() {
		return Result{}, base.ErrFlushInProgress
	}
	defer q.flushMu.Unlock()

	ctx, span := q.tracer.Start(ctx, "queue.Flush")
	defer span.End()

	var res Result
	if !q.Available() {
		return res, nil
	}

	snapshot, err := q.store.GetAll(ctx)
	if err != nil {
		span.RecordError(err)
		return res, errors.Wrap(err, "snapshot pending intents")
	}
	span.SetAttributes(attribute.Int("queue.snapshot", len(snapshot)))

pass:
	for _, pending := range snapshot {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		outcome, err := q.attempt(ctx, pending.ID)
		if err != nil {
			return res, err
		}
		switch outcome {
		case attemptSynced:
			res.Synced++
		case attemptEvicted:
			res.Failed++
		case attemptStopped:
			break pass
		}
	}

	span.SetAttributes(
		attribute.Int("queue.synced", res.Synced),
		attribute.Int("queue.failed", res.Failed),
	)
	if res.Synced > 0 || res.Failed > 0 {
		q.announcePending(ctx)
	}
	return res, nil
}

type attemptOutcome int

const (
	attemptSkipped attemptOutcome = iota
	attemptSynced
	attemptRetry
	attemptEvicted
	attemptStopped
)

// attempt runs one pending intent while holding its key, so Cancel either removes it before
// the provider sees it or waits until the attempt is settled.
func (q *Queue) attempt(ctx context.Context, id string) (attemptOutcome, error) {
	unlock := q.keys.lock(id)
	defer unlock()

	intent, ok, err := q.store.Get(ctx, id)
	if err != nil {
		return attemptSkipped, errors.Wrapf(err, "load intent %s", id)
	}
	if !ok {
		return attemptSkipped, nil
	}

	if intent.RetryCount >= q.cfg.MaxRetries {
		return attemptEvicted, q.evict(ctx, intent, "action evicted after exhausting retries")
	}

	_, err = q.executor.ExecuteIntent(ctx, q.gateway, intent)
	switch {
	case err == nil:
		if err := q.store.Delete(ctx, id); err != nil {
			return attemptSkipped, errors.Wrapf(err, "remove intent %s", id)
		}
		q.synced.Add(ctx, 1)
		return attemptSynced, nil

	case base.IsNetworkUnavailable(err):
		q.log.InfoContext(ctx, "provider unreachable, stopping flush",
			slog.String("intent", id),
			slog.Any("error", err))
		return attemptStopped, nil

	case base.IsPermanent(err):
		intent.LastError = err.Error()
		return attemptEvicted, q.evict(ctx, intent, "action rejected by provider, evicted")
	}

	q.log.InfoContext(ctx, "queued action failed, will retry",
		slog.String("intent", id),
		slog.String("type", string(intent.Type)),
		slog.Int("retry", intent.RetryCount+1),
		slog.Any("error", err))
	intent.RetryCount++
	intent.LastError = err.Error()
	if err := q.store.Put(ctx, intent); err != nil {
		return attemptSkipped, errors.Wrapf(err, "update intent %s", id)
	}
	return attemptRetry, nil
}

// evict drops intent for good and announces it. The caller holds the intent's key.
func (q *Queue) evict(ctx context.Context, intent action.Intent, msg string) error {
	if err := q.store.Delete(ctx, intent.ID); err != nil {
		return errors.Wrapf(err, "evict intent %s", intent.ID)
	}
	q.failed.Add(ctx, 1)
	q.log.WarnContext(ctx, msg,
		slog.String("intent", intent.ID),
		slog.String("type", string(intent.Type)),
		slog.Int("retries", intent.RetryCount),
		slog.String("last_error", intent.LastError))
	_ = q.announce.Do(ctx, announcer.Event{
		Kind:       announcer.ActionEvicted,
		IntentID:   intent.ID,
		ActionType: string(intent.Type),
		At:         q.now().UTC(),
	})
	return nil
}

// Close releases the backing store.
func (q *Queue) Close() error {
	q.initMu.Lock()
	defer q.initMu.Unlock()
	if !q.available {
		return nil
	}
	q.available = false
	return q.store.Close()
}

func (q *Queue) announcePending(ctx context.Context) {
	n, err := q.Count(ctx)
	if err != nil {
		q.log.WarnContext(ctx, "count pending intents", slog.Any("error", err))
		return
	}
	_ = q.announce.Do(ctx, announcer.Event{
		Kind:    announcer.PendingCountChanged,
		Pending: n,
		At:      q.now().UTC(),
	})
}

type keyLock struct {
	sync.Mutex
	refs int
}

// keyLocks hands out one mutex per intent id for as long as somebody holds or waits on it.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func (k *keyLocks) lock(id string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
