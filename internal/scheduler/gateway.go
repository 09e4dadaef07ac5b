package scheduler

import (
	"context"

	"aaronromeo.com/inboxsweep/internal/gateway"
)

// Throttle returns a gateway that runs each call to gw as its own job on s, so calls made by
// one multi-message action are spaced and retried one by one.
func Throttle(s *Scheduler, gw gateway.Gateway) gateway.Gateway {
	return &throttled{s: s, gw: gw}
}

type throttled struct {
	s  *Scheduler
	gw gateway.Gateway
}

func (t *throttled) Trash(ctx context.Context, ids []string) error {
	_, err := t.s.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, t.gw.Trash(ctx, ids)
	})
	return err
}

func (t *throttled) Untrash(ctx context.Context, id string) error {
	_, err := t.s.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, t.gw.Untrash(ctx, id)
	})
	return err
}

func (t *throttled) CreateBlockFilter(ctx context.Context, senderOrDomain string) (string, error) {
	return Do(ctx, t.s, func(ctx context.Context) (string, error) {
		return t.gw.CreateBlockFilter(ctx, senderOrDomain)
	})
}

func (t *throttled) DeleteFilter(ctx context.Context, filterID string) error {
	_, err := t.s.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, t.gw.DeleteFilter(ctx, filterID)
	})
	return err
}

func (t *throttled) MarkSpam(ctx context.Context, id string) error {
	_, err := t.s.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, t.gw.MarkSpam(ctx, id)
	})
	return err
}
