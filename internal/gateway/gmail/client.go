// Package gmail implements the gateway contract on the Gmail REST API.
package gmail

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"aaronromeo.com/inboxsweep/internal/gateway"
	"aaronromeo.com/inboxsweep/pkg/base"
	"aaronromeo.com/inboxsweep/pkg/models/mailitem"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	user = "me"

	labelInbox = "INBOX"
	labelTrash = "TRASH"
	labelSpam  = "SPAM"
)

var _ gateway.Provider = (*Client)(nil)

type Client struct {
	svc *gmailv1.Service
	log *slog.Logger
}

func New(svc *gmailv1.Service, logger *slog.Logger) *Client {
	return &Client{svc: svc, log: logger}
}

// NewService builds a Gmail service from an OAuth client secret file and a previously
// authorized token file. The oauth2 token source refreshes the access token as needed.
func NewService(ctx context.Context, credentialsFile, tokenFile string, opts ...option.ClientOption) (*gmailv1.Service, error) {
	secret, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, errors.Wrapf(err, "read credentials at %s", credentialsFile)
	}
	cfg, err := google.ConfigFromJSON(secret, gmailv1.GmailModifyScope, gmailv1.GmailSettingsBasicScope)
	if err != nil {
		return nil, errors.Wrap(err, "parse oauth config")
	}
	tok, err := readToken(tokenFile)
	if err != nil {
		return nil, errors.Wrapf(err, "read token at %s", tokenFile)
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient(ctx, cfg, tok))}, opts...)
	svc, err := gmailv1.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create gmail service")
	}
	return svc, nil
}

func httpClient(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) *http.Client {
	return cfg.Client(ctx, tok)
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (c *Client) Trash(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.svc.Users.Messages.Trash(user, id).Context(ctx).Do(); err != nil {
			return classify(errors.Wrapf(err, "trash message %s", id))
		}
	}
	c.log.DebugContext(ctx, "trashed messages", slog.Int("messages", len(ids)))
	return nil
}

func (c *Client) Untrash(ctx context.Context, id string) error {
	if _, err := c.svc.Users.Messages.Untrash(user, id).Context(ctx).Do(); err != nil {
		return classify(errors.Wrapf(err, "untrash message %s", id))
	}
	return nil
}

func (c *Client) MarkSpam(ctx context.Context, id string) error {
	req := &gmailv1.ModifyMessageRequest{
		AddLabelIds:    []string{labelSpam},
		RemoveLabelIds: []string{labelInbox},
	}
	if _, err := c.svc.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return classify(errors.Wrapf(err, "mark spam %s", id))
	}
	return nil
}

// CreateBlockFilter creates a filter that sends mail from senderOrDomain straight to the
// trash. When an identical filter already exists its id is returned instead.
func (c *Client) CreateBlockFilter(ctx context.Context, senderOrDomain string) (string, error) {
	from := strings.ToLower(strings.TrimSpace(senderOrDomain))
	if from == "" {
		return "", base.Validationf("filter needs a sender or domain")
	}

	filter := &gmailv1.Filter{
		Criteria: &gmailv1.FilterCriteria{From: from},
		Action: &gmailv1.FilterAction{
			AddLabelIds:    []string{labelTrash},
			RemoveLabelIds: []string{labelInbox},
		},
	}
	created, err := c.svc.Users.Settings.Filters.Create(user, filter).Context(ctx).Do()
	if err == nil {
		c.log.DebugContext(ctx, "filter created", slog.String("from", from), slog.String("filter", created.Id))
		return created.Id, nil
	}
	if !isAlreadyExists(err) {
		return "", classify(errors.Wrapf(err, "create filter for %s", from))
	}

	id, ferr := c.findFilter(ctx, from)
	if ferr != nil {
		return "", ferr
	}
	if id == "" {
		return "", classify(errors.Wrapf(err, "create filter for %s", from))
	}
	return id, nil
}

func (c *Client) findFilter(ctx context.Context, from string) (string, error) {
	res, err := c.svc.Users.Settings.Filters.List(user).Context(ctx).Do()
	if err != nil {
		return "", classify(errors.Wrap(err, "list filters"))
	}
	for _, f := range res.Filter {
		if f.Criteria != nil && strings.EqualFold(f.Criteria.From, from) {
			return f.Id, nil
		}
	}
	return "", nil
}

// DeleteFilter removes a filter. A filter that no longer exists counts as deleted.
func (c *Client) DeleteFilter(ctx context.Context, filterID string) error {
	err := c.svc.Users.Settings.Filters.Delete(user, filterID).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return classify(errors.Wrapf(err, "delete filter %s", filterID))
	}
	return nil
}

// Lookup returns the ids that still carry the INBOX label.
func (c *Client) Lookup(ctx context.Context, ids []string) ([]mailitem.Item, error) {
	items := make([]mailitem.Item, 0, len(ids))
	for _, id := range ids {
		item, inInbox, err := c.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if inInbox {
			items = append(items, item)
		}
	}
	return items, nil
}

func (c *Client) Inbox(ctx context.Context, limit int) ([]mailitem.Item, error) {
	call := c.svc.Users.Messages.List(user).LabelIds(labelInbox)
	if limit > 0 {
		call = call.MaxResults(int64(limit))
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return nil, classify(errors.Wrap(err, "list inbox"))
	}

	items := make([]mailitem.Item, 0, len(res.Messages))
	for _, m := range res.Messages {
		item, _, err := c.get(ctx, m.Id)
		if err != nil {
			return nil, err
		}
		if item.ID != "" {
			items = append(items, item)
		}
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, id string) (mailitem.Item, bool, error) {
	msg, err := c.svc.Users.Messages.Get(user, id).
		Format("metadata").
		MetadataHeaders("From", "Subject").
		Context(ctx).
		Do()
	if isNotFound(err) {
		return mailitem.Item{}, false, nil
	}
	if err != nil {
		return mailitem.Item{}, false, classify(errors.Wrapf(err, "get message %s", id))
	}

	item := mailitem.Item{ID: msg.Id}
	if msg.InternalDate > 0 {
		item.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				item.Sender = senderAddress(h.Value)
				item.Domain = mailitem.DomainOf(item.Sender)
			case "subject":
				item.Subject = h.Value
			}
		}
	}

	inInbox := false
	for _, label := range msg.LabelIds {
		if label == labelInbox {
			inInbox = true
		}
	}
	return item, inInbox, nil
}

// senderAddress pulls the address out of a From header such as `News <news@example.com>`.
func senderAddress(from string) string {
	from = strings.TrimSpace(from)
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.Index(from[i:], ">"); j > 0 {
			from = from[i+1 : i+j]
		}
	}
	return strings.ToLower(strings.TrimSpace(from))
}
