// Package testutil provides hand-written fakes shared by the package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"aaronromeo.com/inboxsweep/pkg/models/mailitem"
)

// FakeProvider implements gateway.Provider. Behavior is injected through the XxxFunc fields
// and every call is recorded, in order, as "Method(args)".
type FakeProvider struct {
	TrashFunc             func(ctx context.Context, ids []string) error
	UntrashFunc           func(ctx context.Context, id string) error
	CreateBlockFilterFunc func(ctx context.Context, senderOrDomain string) (string, error)
	DeleteFilterFunc      func(ctx context.Context, filterID string) error
	MarkSpamFunc          func(ctx context.Context, id string) error
	LookupFunc            func(ctx context.Context, ids []string) ([]mailitem.Item, error)
	InboxFunc             func(ctx context.Context, limit int) ([]mailitem.Item, error)

	mu      sync.Mutex
	calls   []string
	filters int
}

// NewFakeProvider creates a FakeProvider whose calls all succeed.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

func (f *FakeProvider) record(method string, args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s(%s)", method, strings.Join(args, ",")))
}

// Calls returns the recorded calls.
func (f *FakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsTo returns the recorded calls of one method.
func (f *FakeProvider) CallsTo(method string) []string {
	var out []string
	for _, call := range f.Calls() {
		if strings.HasPrefix(call, method+"(") {
			out = append(out, call)
		}
	}
	return out
}

func (f *FakeProvider) Trash(ctx context.Context, ids []string) error {
	f.record("Trash", ids...)
	if f.TrashFunc != nil {
		return f.TrashFunc(ctx, ids)
	}
	return nil
}

func (f *FakeProvider) Untrash(ctx context.Context, id string) error {
	f.record("Untrash", id)
	if f.UntrashFunc != nil {
		return f.UntrashFunc(ctx, id)
	}
	return nil
}

func (f *FakeProvider) CreateBlockFilter(ctx context.Context, senderOrDomain string) (string, error) {
	f.record("CreateBlockFilter", senderOrDomain)
	if f.CreateBlockFilterFunc != nil {
		return f.CreateBlockFilterFunc(ctx, senderOrDomain)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters++
	return fmt.Sprintf("filter-%d", f.filters), nil
}

func (f *FakeProvider) DeleteFilter(ctx context.Context, filterID string) error {
	f.record("DeleteFilter", filterID)
	if f.DeleteFilterFunc != nil {
		return f.DeleteFilterFunc(ctx, filterID)
	}
	return nil
}

func (f *FakeProvider) MarkSpam(ctx context.Context, id string) error {
	f.record("MarkSpam", id)
	if f.MarkSpamFunc != nil {
		return f.MarkSpamFunc(ctx, id)
	}
	return nil
}

func (f *FakeProvider) Lookup(ctx context.Context, ids []string) ([]mailitem.Item, error) {
	f.record("Lookup", ids...)
	if f.LookupFunc != nil {
		return f.LookupFunc(ctx, ids)
	}
	return nil, nil
}

func (f *FakeProvider) Inbox(ctx context.Context, limit int) ([]mailitem.Item, error) {
	f.record("Inbox", fmt.Sprint(limit))
	if f.InboxFunc != nil {
		return f.InboxFunc(ctx, limit)
	}
	return nil, nil
}

// Items builds inbox items with ids id-1..id-n from sender.
func Items(n int, sender string) []mailitem.Item {
	items := make([]mailitem.Item, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, mailitem.Item{
			ID:      fmt.Sprintf("%s-%d", strings.SplitN(sender, "@", 2)[0], i),
			Sender:  sender,
			Domain:  mailitem.DomainOf(sender),
			Subject: fmt.Sprintf("message %d", i),
		})
	}
	return items
}
