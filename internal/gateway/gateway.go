// Package gateway declares the contract every mail provider adapter satisfies.
//
// Every call must be idempotent on the provider side: trashing an already trashed message,
// deleting a filter that is gone and marking spam twice all succeed. Replaying a queued intent
// more than once relies on this.
package gateway

import (
	"context"

	"aaronromeo.com/inboxsweep/pkg/models/mailitem"
)

// Gateway issues mutating calls against the provider. Errors are classified with the
// pkg/base taxonomy, and rate limiting in particular must surface as base.ErrRateLimited.
type Gateway interface {
	Trash(ctx context.Context, ids []string) error
	Untrash(ctx context.Context, id string) error
	CreateBlockFilter(ctx context.Context, senderOrDomain string) (string, error)
	DeleteFilter(ctx context.Context, filterID string) error
	MarkSpam(ctx context.Context, id string) error
}

// Source reads the provider's current view of the inbox.
type Source interface {
	// Lookup returns the subset of ids still present in the inbox.
	Lookup(ctx context.Context, ids []string) ([]mailitem.Item, error)
	// Inbox lists up to limit of the most recent inbox messages.
	Inbox(ctx context.Context, limit int) ([]mailitem.Item, error)
}

// Provider is a full adapter.
type Provider interface {
	Gateway
	Source
}
