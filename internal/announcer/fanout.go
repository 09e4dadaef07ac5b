package announcer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Noop discards events.
type Noop struct{}

func (Noop) Do(context.Context, Event) error { return nil }

// Fanout delivers each event to every service and joins their errors.
type Fanout []Service

func (f Fanout) Do(ctx context.Context, event Event) error {
	var err error
	for _, s := range f {
		err = errors.Join(err, s.Do(ctx, event))
	}
	return err
}

// Logged wraps a service so delivery failures are logged instead of returned.
// Signals are best effort and must never fail the operation that raised them.
func Logged(s Service, logger *slog.Logger) Service {
	return &logged{next: s, log: logger}
}

type logged struct {
	next Service
	log  *slog.Logger
}

func (l *logged) Do(ctx context.Context, event Event) error {
	if err := l.next.Do(ctx, event); err != nil {
		l.log.WarnContext(ctx, "announcement failed",
			slog.String("kind", string(event.Kind)),
			slog.Any("error", err))
	}
	return nil
}

const recorderCapacity = 100

// Recorder keeps the most recent events in memory. The HTTP status page reads from it.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Do(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if len(r.events) > recorderCapacity {
		r.events = append([]Event(nil), r.events[len(r.events)-recorderCapacity:]...)
	}
	return nil
}

// Events returns a copy of what was recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Last returns the most recent event of kind.
func (r *Recorder) Last(kind Kind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}
