package announcer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const webhookAnnouncePath = "/announcements"

type Kind string

const (
	// SyncComplete follows a flush that synced at least one intent.
	SyncComplete Kind = "sync_complete"
	// PendingCountChanged follows any change to the durable queue size.
	PendingCountChanged Kind = "pending_count_changed"
	// ActionEvicted reports an intent dropped after exhausting its retries.
	ActionEvicted Kind = "action_evicted"
)

// Event is a signal emitted to whatever UI or automation is listening.
type Event struct {
	Kind       Kind      `json:"kind"`
	Synced     int       `json:"synced"`
	Failed     int       `json:"failed"`
	Pending    int       `json:"pending"`
	IntentID   string    `json:"intent_id,omitempty"`
	ActionType string    `json:"action_type,omitempty"`
	At         time.Time `json:"at"`
}

// Message renders the event for humans.
func (e Event) Message() string {
	switch e.Kind {
	case SyncComplete:
		return fmt.Sprintf("sync complete: %d synced, %d failed", e.Synced, e.Failed)
	case PendingCountChanged:
		return fmt.Sprintf("%d actions pending", e.Pending)
	case ActionEvicted:
		return fmt.Sprintf("%s action %s failed permanently", e.ActionType, e.IntentID)
	}
	return string(e.Kind)
}

type Service interface {
	Do(ctx context.Context, event Event) error
}

type Option func(*webhookAnnouncer)

func WithWebhookURL(webhookURL string) Option {
	return func(wa *webhookAnnouncer) {
		wa.baseURL = strings.TrimSpace(webhookURL)
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(wa *webhookAnnouncer) {
		wa.client = client
	}
}

type webhookAnnouncer struct {
	baseURL string
	client  *http.Client
}

// New returns a webhook announcer. Without a URL it discards every event.
func New(opts ...Option) Service {
	announcer := &webhookAnnouncer{client: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(announcer)
	}
	return announcer
}

func (w *webhookAnnouncer) Do(ctx context.Context, event Event) error {
	if w.baseURL == "" {
		return nil
	}
	baseURL := strings.TrimRight(w.baseURL, "/")
	payload, err := json.Marshal(struct {
		Message string `json:"message"`
		Event   Event  `json:"event"`
	}{Message: event.Message(), Event: event})
	if err != nil {
		return errors.Wrap(err, "encode announcement")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+webhookAnnouncePath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reporting webhook returned status %s", resp.Status)
	}
	return nil
}
