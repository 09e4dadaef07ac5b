package searches

import (
	"context"
	"sort"
	"strings"

	"aaronromeo.com/inboxsweep/pkg/models/mailitem"
	"github.com/emersion/go-imap/v2"
	giimapclient "github.com/emersion/go-imap/v2/imapclient"
	"github.com/pkg/errors"
)

type Searcher interface {
	UIDs(ctx context.Context, mailbox string, criteria *imap.SearchCriteria) ([]imap.UID, error)
	Items(ctx context.Context, mailbox string, messageIDs []string) ([]mailitem.Item, error)
	Recent(ctx context.Context, mailbox string, limit int) ([]mailitem.Item, error)
}

// Interface to initialize the manager
type ClientProvider interface {
	IMAPClient() *giimapclient.Client
}

type IMAPSearchManager struct {
	provider func() *giimapclient.Client
}

func New(provider ClientProvider) *IMAPSearchManager {
	return &IMAPSearchManager{provider: provider.IMAPClient}
}

// ByMessageIDs matches any of the given Message-ID header values.
func ByMessageIDs(ids []string) *imap.SearchCriteria {
	criteria := make([]imap.SearchCriteria, 0, len(ids))
	for _, id := range ids {
		id = NormalizeMessageID(id)
		if id == "" {
			continue
		}
		criteria = append(criteria, imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{{
				Key:   "Message-ID",
				Value: id,
			}},
		})
	}
	return combineOr(criteria)
}

// BySender matches a From header containing sender, which may be "@domain".
func BySender(sender string) *imap.SearchCriteria {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return nil
	}
	return &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{
			Key:   "From",
			Value: sender,
		}},
	}
}

// NormalizeMessageID strips whitespace and angle brackets.
func NormalizeMessageID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

// UIDs selects mailbox and returns the UIDs matching criteria, skipping deleted messages.
func (m *IMAPSearchManager) UIDs(ctx context.Context, mailbox string, criteria *imap.SearchCriteria) ([]imap.UID, error) {
	client, err := m.client()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if criteria == nil {
		return nil, nil
	}
	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return nil, errors.Wrapf(err, "select %s", mailbox)
	}

	query := *criteria
	query.NotFlag = append(query.NotFlag, imap.FlagDeleted)
	data, err := client.UIDSearch(&query, nil).Wait()
	if err != nil {
		return nil, errors.Wrapf(err, "search %s", mailbox)
	}
	return data.AllUIDs(), ctx.Err()
}

// Items returns the messages in mailbox whose Message-ID is one of messageIDs.
func (m *IMAPSearchManager) Items(ctx context.Context, mailbox string, messageIDs []string) ([]mailitem.Item, error) {
	uids, err := m.UIDs(ctx, mailbox, ByMessageIDs(messageIDs))
	if err != nil {
		return nil, err
	}
	return m.fetch(ctx, uids)
}

// Recent returns up to limit of the newest messages in mailbox, newest first.
func (m *IMAPSearchManager) Recent(ctx context.Context, mailbox string, limit int) ([]mailitem.Item, error) {
	uids, err := m.UIDs(ctx, mailbox, &imap.SearchCriteria{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}
	items, err := m.fetch(ctx, uids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ReceivedAt.After(items[j].ReceivedAt)
	})
	return items, nil
}

func (m *IMAPSearchManager) fetch(ctx context.Context, uids []imap.UID) ([]mailitem.Item, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	client, err := m.client()
	if err != nil {
		return nil, err
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:     true,
		InternalDate: true,
		UID:          true,
	})
	defer fetchCmd.Close()

	var items []mailitem.Item
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			return nil, errors.Wrap(err, "collect message")
		}
		if item, ok := itemFromBuffer(buf); ok {
			items = append(items, item)
		}
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, errors.Wrap(err, "fetch envelopes")
	}
	return items, nil
}

// itemFromBuffer maps an envelope to an item. Messages without a Message-ID cannot be
// addressed again and are skipped.
func itemFromBuffer(buf *giimapclient.FetchMessageBuffer) (mailitem.Item, bool) {
	if buf.Envelope == nil {
		return mailitem.Item{}, false
	}
	id := NormalizeMessageID(buf.Envelope.MessageID)
	if id == "" {
		return mailitem.Item{}, false
	}

	item := mailitem.Item{
		ID:         id,
		Subject:    buf.Envelope.Subject,
		ReceivedAt: buf.InternalDate,
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = buf.Envelope.Date
	}
	if len(buf.Envelope.From) > 0 {
		from := buf.Envelope.From[0]
		item.Sender = strings.ToLower(from.Addr())
		item.Domain = strings.ToLower(strings.TrimSpace(from.Host))
	}
	return item, true
}

func (m *IMAPSearchManager) client() (*giimapclient.Client, error) {
	if m.provider == nil || m.provider() == nil {
		return nil, errors.New("IMAP client is not connected")
	}
	return m.provider(), nil
}

func combineOr(criteria []imap.SearchCriteria) *imap.SearchCriteria {
	if len(criteria) == 0 {
		return nil
	}
	combined := criteria[0]
	for i := 1; i < len(criteria); i++ {
		combined = imap.SearchCriteria{
			Or: [][2]imap.SearchCriteria{{combined, criteria[i]}},
		}
	}
	return &combined
}
