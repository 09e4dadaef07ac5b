package actions

import (
	"context"
	"strings"

	"aaronromeo.com/inboxsweep/internal/imap/searches"
	"github.com/emersion/go-imap/v2"
	giimapclient "github.com/emersion/go-imap/v2/imapclient"
	"github.com/pkg/errors"
)

type Actions interface {
	MoveMessageIDs(ctx context.Context, from, destination string, messageIDs []string) (int, error)
	MoveFromSender(ctx context.Context, from, destination, sender string) (int, error)
	MoveUIDs(ctx context.Context, uids []imap.UID, destination string) error
}

// Interface to initialize the manager
type ClientProvider interface {
	IMAPClient() *giimapclient.Client
}

type IMAPActionManager struct {
	provider func() *giimapclient.Client
	searcher searches.Searcher
}

func New(provider ClientProvider, searcher searches.Searcher) *IMAPActionManager {
	return &IMAPActionManager{provider: provider.IMAPClient, searcher: searcher}
}

// MoveMessageIDs moves the messages in from whose Message-ID is listed to destination and
// returns how many were moved. Ids not found in from are ignored.
func (c *IMAPActionManager) MoveMessageIDs(ctx context.Context, from, destination string, messageIDs []string) (int, error) {
	return c.moveMatching(ctx, from, destination, searches.ByMessageIDs(messageIDs))
}

// MoveFromSender moves every message in from sent by sender to destination.
func (c *IMAPActionManager) MoveFromSender(ctx context.Context, from, destination, sender string) (int, error) {
	return c.moveMatching(ctx, from, destination, searches.BySender(sender))
}

func (c *IMAPActionManager) moveMatching(ctx context.Context, from, destination string, criteria *imap.SearchCriteria) (int, error) {
	if strings.TrimSpace(from) == "" {
		return 0, errors.New("source mailbox is required")
	}
	if criteria == nil {
		return 0, nil
	}
	uids, err := c.searcher.UIDs(ctx, from, criteria)
	if err != nil {
		return 0, err
	}
	if err := c.MoveUIDs(ctx, uids, destination); err != nil {
		return 0, err
	}
	return len(uids), nil
}

// MoveUIDs moves messages in the selected mailbox to a different destination folder.
func (c *IMAPActionManager) MoveUIDs(ctx context.Context, uids []imap.UID, destination string) error {
	if c.provider == nil || c.provider() == nil {
		return errors.New("IMAP client is not connected")
	}
	if len(uids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(destination) == "" {
		return errors.New("destination mailbox is required")
	}

	if _, err := c.provider().Move(imap.UIDSetNum(uids...), destination).Wait(); err != nil {
		return errors.Wrapf(err, "move to %s", destination)
	}
	return ctx.Err()
}
