// Package optimistic applies user actions to the visible collection before the provider has
// confirmed them and keeps a bounded undo history of what was applied.
//
// Apply runs in two phases. The first removes the affected items and pushes an undo entry; it
// cannot fail once the action is valid. The second dispatches the remote call, directly through
// the scheduler when online or through the durable queue when not. Only a direct dispatch that
// fails for good reverts the first phase. Queued actions are trusted locally until Refresh.
package optimistic

import (
	"context"
	"log/slog"
	"time"

	"aaronromeo.com/inboxsweep/internal/gateway"
	"aaronromeo.com/inboxsweep/internal/queue"
	"aaronromeo.com/inboxsweep/internal/scheduler"
	"aaronromeo.com/inboxsweep/pkg/base"
	"aaronromeo.com/inboxsweep/pkg/commands"
	"aaronromeo.com/inboxsweep/pkg/models/action"
	"aaronromeo.com/inboxsweep/pkg/models/mailitem"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "aaronromeo.com/inboxsweep/internal/optimistic"

// Connectivity is what the coordinator needs from the connectivity monitor.
type Connectivity interface {
	Online() bool
	// MarkOffline records that a call just failed for lack of network.
	MarkOffline(ctx context.Context)
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool                { return true }
func (alwaysOnline) MarkOffline(context.Context) {}

type Config struct {
	UndoCapacity     int
	UntrashBatchSize int
}

func DefaultConfig() Config {
	return Config{
		UndoCapacity:     10,
		UntrashBatchSize: base.UntrashBatchSize,
	}
}

// Dispatch says what happened to the remote half of an applied action.
type Dispatch string

const (
	// Local actions never reach the provider.
	Local  Dispatch = "local"
	Synced Dispatch = "synced"
	Queued Dispatch = "queued"
)

// Applied describes a successful Apply.
type Applied struct {
	UndoID       string          `json:"undo_id"`
	Removed      []mailitem.Item `json:"removed"`
	Dispatch     Dispatch        `json:"dispatch"`
	IntentID     string          `json:"intent_id,omitempty"`
	ServerHandle string          `json:"server_handle,omitempty"`
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func WithConnectivity(conn Connectivity) Option {
	return func(c *Coordinator) {
		c.conn = conn
	}
}

// WithQueue hands actions that cannot be dispatched right away to q.
func WithQueue(q *queue.Queue) Option {
	return func(c *Coordinator) {
		c.queue = q
	}
}

type Coordinator struct {
	cfg       Config
	items     *Collection
	undo      *UndoStack
	scheduler *scheduler.Scheduler
	provider  gateway.Provider
	gateway   gateway.Gateway
	queue     *queue.Queue
	conn      Connectivity
	executor  *commands.CommandExecutor
	log       *slog.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

func New(items *Collection, sched *scheduler.Scheduler, provider gateway.Provider, cfg Config, opts ...Option) *Coordinator {
	if cfg.UntrashBatchSize < 1 {
		cfg.UntrashBatchSize = base.UntrashBatchSize
	}
	c := &Coordinator{
		cfg:       cfg,
		items:     items,
		undo:      NewUndoStack(cfg.UndoCapacity),
		scheduler: sched,
		provider:  provider,
		gateway:   scheduler.Throttle(sched, provider),
		conn:      alwaysOnline{},
		log:       slog.Default(),
		now:       time.Now,
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.executor = commands.NewCommandExecutor(c.log)
	return c
}

func (c *Coordinator) Items() *Collection {
	return c.items
}

func (c *Coordinator) UndoDepth() int {
	return c.undo.Depth()
}

// UndoHistory lists the reachable undo entries, most recent first.
func (c *Coordinator) UndoHistory() []action.UndoEntry {
	return c.undo.Peek()
}

// Apply removes the items covered by target from the collection, records an undo entry and
// dispatches the remote call. On a final synchronous failure the removal is reverted and the
// error is returned.
func (c *Coordinator) Apply(ctx context.Context, typ action.Type, target action.Target) (Applied, error) {
	intent := action.Intent{Type: typ, Target: target}
	if err := intent.Validate(); err != nil {
		return Applied{}, err
	}

	removed := c.items.remove(target)
	if len(target.EmailIDs) > 0 && len(removed) == 0 {
		return Applied{}, base.Validationf("none of %v is in the visible collection", target.EmailIDs)
	}

	entry := action.UndoEntry{
		ID:               uuid.NewString(),
		ActionType:       typ,
		AffectedEmailIDs: mailitem.IDs(removed.items()),
		Removed:          removed.items(),
		CreatedAt:        c.now().UTC(),
	}
	if c.undo.Push(entry) {
		c.log.DebugContext(ctx, "oldest undo entry discarded", slog.Int("capacity", c.undo.capacity))
	}
	res := Applied{UndoID: entry.ID, Removed: entry.Removed, Dispatch: Local}

	ctx, span := c.tracer.Start(ctx, "coordinator.Apply", trace.WithAttributes(
		attribute.String("action.type", string(typ)),
		attribute.Int("action.removed", len(removed)),
	))
	defer span.End()

	if typ == action.Keep {
		return res, nil
	}

	if !c.conn.Online() && c.queueAvailable() {
		id, err := c.queue.Enqueue(ctx, intent)
		if err == nil {
			c.undo.AttachIntent(entry.ID, id)
			res.Dispatch = Queued
			res.IntentID = id
			return res, nil
		}
		c.log.WarnContext(ctx, "queueing offline action failed, trying the provider directly",
			slog.Any("error", err))
	}

	outcome, err := c.executor.ExecuteIntent(ctx, c.gateway, intent)
	if err == nil {
		if outcome.ServerHandle != "" {
			c.undo.Attach(entry.ID, outcome.ServerHandle)
		}
		res.Dispatch = Synced
		res.ServerHandle = outcome.ServerHandle
		return res, nil
	}

	if base.IsNetworkUnavailable(err) && c.queueAvailable() {
		c.conn.MarkOffline(ctx)
		id, qerr := c.queue.Enqueue(ctx, intent)
		if qerr == nil {
			c.undo.AttachIntent(entry.ID, id)
			c.log.InfoContext(ctx, "provider unreachable, action queued",
				slog.String("intent", id),
				slog.String("type", string(typ)))
			res.Dispatch = Queued
			res.IntentID = id
			return res, nil
		}
		c.log.WarnContext(ctx, "queueing action after network failure failed", slog.Any("error", qerr))
	}

	c.items.restore(removed)
	c.undo.Drop(entry.ID)
	span.RecordError(err)
	span.SetStatus(codes.Error, "dispatch failed")
	c.log.WarnContext(ctx, "action failed, local change reverted",
		slog.String("type", string(typ)),
		slog.Int("restored", len(removed)),
		slog.Any("error", err))
	return Applied{}, errors.Wrapf(err, "%s", typ)
}

func (c *Coordinator) queueAvailable() bool {
	return c.queue != nil && c.queue.Available()
}

// UndoLast pops the most recent undo entry and compensates it. It reports false when there was
// nothing to undo or the compensation failed. A failed entry is not pushed back.
func (c *Coordinator) UndoLast(ctx context.Context) (bool, error) {
	entry, ok := c.undo.Pop()
	if !ok {
		return false, nil
	}

	ctx, span := c.tracer.Start(ctx, "coordinator.UndoLast", trace.WithAttributes(
		attribute.String("action.type", string(entry.ActionType)),
		attribute.Int("action.affected", len(entry.AffectedEmailIDs)),
	))
	defer span.End()

	if err := c.compensate(ctx, entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "undo failed")
		c.log.WarnContext(ctx, "undo failed, entry dropped",
			slog.String("undo", entry.ID),
			slog.String("type", string(entry.ActionType)),
			slog.Any("error", err))
		return false, err
	}
	c.log.InfoContext(ctx, "action undone",
		slog.String("undo", entry.ID),
		slog.String("type", string(entry.ActionType)))
	return true, nil
}

func (c *Coordinator) compensate(ctx context.Context, entry action.UndoEntry) error {
	if entry.IntentID != "" && c.queue != nil {
		cancelled, err := c.queue.Cancel(ctx, entry.IntentID)
		if err != nil {
			return err
		}
		if cancelled {
			c.items.Merge(entry.Removed)
			return nil
		}
	}

	switch entry.ActionType {
	case action.Keep:
		c.items.Merge(entry.Removed)
		return nil

	case action.Unsubscribe:
		return errors.Wrap(base.ErrUndoImpossible, "spam reports cannot be withdrawn")

	case action.Block, action.Nuke:
		if entry.ServerHandle == "" {
			return errors.Wrapf(base.ErrUndoImpossible, "%s has no filter to release", entry.ActionType)
		}
		if err := c.gateway.DeleteFilter(ctx, entry.ServerHandle); err != nil {
			return errors.Wrapf(err, "release filter %s", entry.ServerHandle)
		}
		return c.resync(ctx, entry.AffectedEmailIDs)

	case action.Trash:
		if err := c.untrash(ctx, entry.AffectedEmailIDs); err != nil {
			return err
		}
		return c.resync(ctx, entry.AffectedEmailIDs)
	}
	return base.Validationf("no undo for action type %q", entry.ActionType)
}

// untrash submits one scheduler job per id, at most UntrashBatchSize at a time.
func (c *Coordinator) untrash(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += c.cfg.UntrashBatchSize {
		batch := ids[start:min(start+c.cfg.UntrashBatchSize, len(ids))]
		pending := make([]*scheduler.Pending, 0, len(batch))
		for _, id := range batch {
			pending = append(pending, c.scheduler.Submit(ctx, func(ctx context.Context) (any, error) {
				return nil, c.provider.Untrash(ctx, id)
			}))
		}

		var first error
		for i, p := range pending {
			if _, err := p.Wait(); err != nil && first == nil {
				first = errors.Wrapf(err, "untrash %s", batch[i])
			}
		}
		if first != nil {
			return first
		}
	}
	return nil
}

// resync asks the provider which of ids are back in the inbox and shows those.
func (c *Coordinator) resync(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	items, err := scheduler.Do(ctx, c.scheduler, func(ctx context.Context) ([]mailitem.Item, error) {
		return c.provider.Lookup(ctx, ids)
	})
	if err != nil {
		return errors.Wrap(err, "resync after undo")
	}
	added := c.items.Merge(items)
	c.log.DebugContext(ctx, "resynced after undo",
		slog.Int("requested", len(ids)),
		slog.Int("restored", added))
	return nil
}

// Refresh reloads the collection from the provider, ending the window in which queued
// actions are only trusted locally.
func (c *Coordinator) Refresh(ctx context.Context, limit int) (int, error) {
	items, err := scheduler.Do(ctx, c.scheduler, func(ctx context.Context) ([]mailitem.Item, error) {
		return c.provider.Inbox(ctx, limit)
	})
	if err != nil {
		return 0, errors.Wrap(err, "refresh inbox")
	}
	c.items.Load(items)
	return len(items), nil
}
