// Package imap adapts a plain IMAP account to the gateway contract.
//
// Messages are addressed by their Message-ID header. Trash, spam and the block filters are
// folder moves: a filter moves a sender's inbox mail to the junk folder and its handle
// records the sender so releasing it can move the mail back.
package imap

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"aaronromeo.com/inboxsweep/internal/gateway"
	"aaronromeo.com/inboxsweep/internal/imap/actions"
	"aaronromeo.com/inboxsweep/internal/imap/base"
	"aaronromeo.com/inboxsweep/internal/imap/searches"
	"aaronromeo.com/inboxsweep/internal/imap/sessionmanager"
	inboxbase "aaronromeo.com/inboxsweep/pkg/base"
	"aaronromeo.com/inboxsweep/pkg/models/mailitem"
)

const filterHandlePrefix = "imap-filter:"

var _ gateway.Provider = (*Client)(nil)

// Client owns one IMAP session. Calls are serialized and reconnect after a network failure.
type Client struct {
	mu sync.Mutex

	*sessionmanager.IMAPConnector
	*searches.IMAPSearchManager
	*actions.IMAPActionManager

	folders base.Folders
	log     *slog.Logger
}

func New(folders base.Folders, logger *slog.Logger, opts ...sessionmanager.Option) *Client {
	session := sessionmanager.NewServerConnector(opts...)
	searcher := searches.New(session)
	return &Client{
		IMAPConnector:     session,
		IMAPSearchManager: searcher,
		IMAPActionManager: actions.New(session, searcher),
		folders:           folders.WithDefaults(),
		log:               logger,
	}
}

// call runs fn on a live session and classifies its error.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.Connected() {
		if err := c.Connect(ctx); err != nil {
			return classify(err)
		}
		c.log.DebugContext(ctx, "imap session opened", slog.String("addr", c.Addr))
	}

	err := classify(fn())
	if inboxbase.IsNetworkUnavailable(err) {
		c.log.InfoContext(ctx, "imap session lost", slog.String("op", op), slog.Any("error", err))
		c.Drop()
	}
	return err
}

func (c *Client) Trash(ctx context.Context, ids []string) error {
	return c.call(ctx, "trash", func() error {
		n, err := c.MoveMessageIDs(ctx, c.folders.Inbox, c.folders.Trash, ids)
		c.log.DebugContext(ctx, "trashed", slog.Int("requested", len(ids)), slog.Int("moved", n))
		return err
	})
}

func (c *Client) Untrash(ctx context.Context, id string) error {
	return c.call(ctx, "untrash", func() error {
		_, err := c.MoveMessageIDs(ctx, c.folders.Trash, c.folders.Inbox, []string{id})
		return err
	})
}

func (c *Client) MarkSpam(ctx context.Context, id string) error {
	return c.call(ctx, "mark spam", func() error {
		_, err := c.MoveMessageIDs(ctx, c.folders.Inbox, c.folders.Junk, []string{id})
		return err
	})
}

// CreateBlockFilter moves the sender's inbox mail to junk. The handle is stable for a
// sender, so creating the same filter twice is harmless.
func (c *Client) CreateBlockFilter(ctx context.Context, senderOrDomain string) (string, error) {
	sender := strings.ToLower(strings.TrimSpace(senderOrDomain))
	if sender == "" {
		return "", inboxbase.Validationf("filter needs a sender or domain")
	}
	err := c.call(ctx, "create filter", func() error {
		n, err := c.MoveFromSender(ctx, c.folders.Inbox, c.folders.Junk, sender)
		c.log.DebugContext(ctx, "blocked sender", slog.String("sender", sender), slog.Int("moved", n))
		return err
	})
	if err != nil {
		return "", err
	}
	return filterHandlePrefix + sender, nil
}

func (c *Client) DeleteFilter(ctx context.Context, filterID string) error {
	sender, ok := strings.CutPrefix(filterID, filterHandlePrefix)
	if !ok || sender == "" {
		return inboxbase.Validationf("%q is not an imap filter handle", filterID)
	}
	return c.call(ctx, "delete filter", func() error {
		_, err := c.MoveFromSender(ctx, c.folders.Junk, c.folders.Inbox, sender)
		return err
	})
}

func (c *Client) Lookup(ctx context.Context, ids []string) ([]mailitem.Item, error) {
	var items []mailitem.Item
	err := c.call(ctx, "lookup", func() error {
		var err error
		items, err = c.Items(ctx, c.folders.Inbox, ids)
		return err
	})
	return items, err
}

func (c *Client) Inbox(ctx context.Context, limit int) ([]mailitem.Item, error) {
	var items []mailitem.Item
	err := c.call(ctx, "inbox", func() error {
		var err error
		items, err = c.Recent(ctx, c.folders.Inbox, limit)
		return err
	})
	return items, err
}

// Close logs out of the session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.IMAPConnector.Close()
}
