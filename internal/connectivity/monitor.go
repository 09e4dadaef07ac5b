// Package connectivity tracks whether the provider is reachable and replays the durable queue
// when it becomes reachable again.
package connectivity

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"aaronromeo.com/inboxsweep/internal/announcer"
	"aaronromeo.com/inboxsweep/internal/queue"
	"aaronromeo.com/inboxsweep/pkg/base"
	"github.com/pkg/errors"
)

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("connectivity watcher already running")

type Transition string

const (
	Online  Transition = "online"
	Offline Transition = "offline"
	// Visible means the process came back to the foreground, for example after a resume.
	Visible Transition = "visible"
)

func ParseTransition(value string) (Transition, error) {
	t := Transition(strings.ToLower(strings.TrimSpace(value)))
	switch t {
	case Online, Offline, Visible:
		return t, nil
	}
	return "", base.Validationf("unknown connectivity state %q", value)
}

// Monitor reports reachability and calls hooks when it is restored.
type Monitor interface {
	Online() bool
	OnConnectivityRestored(fn func(ctx context.Context))
}

type Option func(*Watcher)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.log = logger
	}
}

// Watcher is a Monitor fed by Report. Its state changes immediately; restore hooks run on the
// single Run loop. Restores reported while hooks are running collapse into one more round.
type Watcher struct {
	log      *slog.Logger
	online   atomic.Bool
	running  atomic.Bool
	restored chan struct{}

	mu       sync.Mutex
	hooks    []func(ctx context.Context)
	changed  time.Time
	restores int
}

func NewWatcher(online bool, opts ...Option) *Watcher {
	w := &Watcher{
		log:      slog.Default(),
		restored: make(chan struct{}, 1),
		changed:  time.Now(),
	}
	w.online.Store(online)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher) Online() bool {
	return w.online.Load()
}

func (w *Watcher) OnConnectivityRestored(fn func(ctx context.Context)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, fn)
}

// Report records a transition. Going online, or becoming visible while online, schedules
// the restore hooks.
func (w *Watcher) Report(ctx context.Context, t Transition) {
	var restore bool
	switch t {
	case Online:
		restore = !w.online.Swap(true)
		if restore {
			w.touch()
		}
	case Offline:
		if w.online.Swap(false) {
			w.touch()
			w.log.InfoContext(ctx, "provider unreachable, actions will be queued")
		}
	case Visible:
		restore = w.online.Load()
	default:
		w.log.WarnContext(ctx, "ignoring unknown connectivity transition", slog.String("transition", string(t)))
		return
	}

	if !restore {
		return
	}
	w.log.DebugContext(ctx, "connectivity restored", slog.String("transition", string(t)))
	select {
	case w.restored <- struct{}{}:
	default:
	}
}

// MarkOffline is Report(ctx, Offline).
func (w *Watcher) MarkOffline(ctx context.Context) {
	w.Report(ctx, Offline)
}

func (w *Watcher) touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changed = time.Now()
}

// Status is a snapshot for the status page.
type Status struct {
	Online   bool      `json:"online"`
	Since    time.Time `json:"since"`
	Restores int       `json:"restores"`
}

func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{Online: w.Online(), Since: w.changed, Restores: w.restores}
}

// Run dispatches restore hooks until ctx ends. Only one Run may be active per Watcher.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.restored:
			w.mu.Lock()
			hooks := append(([]func(context.Context))(nil), w.hooks...)
			w.restores++
			w.mu.Unlock()
			for _, hook := range hooks {
				hook(ctx)
			}
		}
	}
}

// SyncOnRestore flushes q whenever m reports connectivity restored and announces a
// sync complete event when anything was synced.
func SyncOnRestore(m Monitor, q *queue.Queue, a announcer.Service, logger *slog.Logger) {
	m.OnConnectivityRestored(func(ctx context.Context) {
		res, err := q.Flush(ctx)
		if errors.Is(err, base.ErrFlushInProgress) {
			logger.DebugContext(ctx, "flush already running, skipping restore sync")
			return
		}
		if err != nil {
			logger.WarnContext(ctx, "restore sync failed", slog.Any("error", err))
			return
		}
		logger.InfoContext(ctx, "restore sync finished",
			slog.Int("synced", res.Synced),
			slog.Int("failed", res.Failed))
		if res.Synced == 0 {
			return
		}
		if err := a.Do(ctx, announcer.Event{
			Kind:   announcer.SyncComplete,
			Synced: res.Synced,
			Failed: res.Failed,
			At:     time.Now().UTC(),
		}); err != nil {
			logger.WarnContext(ctx, "announcing sync failed", slog.Any("error", errors.Wrap(err, "sync complete")))
		}
	})
}
