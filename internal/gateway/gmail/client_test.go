package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"aaronromeo.com/inboxsweep/pkg/base"
	"aaronromeo.com/inboxsweep/pkg/mock"
	"aaronromeo.com/inboxsweep/pkg/models/mailitem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type fakeMessage struct {
	from    string
	subject string
	at      time.Time
	labels  []string
}

// fakeGmail serves the subset of the Gmail REST API the client uses.
type fakeGmail struct {
	mu       sync.Mutex
	messages map[string]*fakeMessage
	filters  map[string]*gmailv1.Filter
	nextID   int
	fail     map[string]int
}

func newFakeGmail() *fakeGmail {
	now := time.Now().UTC()
	return &fakeGmail{
		messages: map[string]*fakeMessage{
			"m1": {from: "News <news@example.com>", subject: "Weekly", at: now.Add(-2 * time.Hour), labels: []string{labelInbox}},
			"m2": {from: "deals@shop.example", subject: "Sale", at: now.Add(-time.Hour), labels: []string{labelInbox, "UNREAD"}},
			"m3": {from: "Old <old@example.org>", subject: "Stale", at: now.Add(-3 * time.Hour), labels: []string{labelTrash}},
		},
		filters: map[string]*gmailv1.Filter{},
		fail:    map[string]int{},
	}
}

func (f *fakeGmail) failNext(route string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[route] = code
}

func (f *fakeGmail) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", f.route("list", f.list))
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", f.route("get", f.get))
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/trash", f.route("trash", f.relabel([]string{labelTrash}, []string{labelInbox})))
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/untrash", f.route("untrash", f.relabel([]string{labelInbox}, []string{labelTrash})))
	mux.HandleFunc("POST /gmail/v1/users/me/messages/{id}/modify", f.route("modify", f.modify))
	mux.HandleFunc("GET /gmail/v1/users/me/settings/filters", f.route("filters.list", f.listFilters))
	mux.HandleFunc("POST /gmail/v1/users/me/settings/filters", f.route("filters.create", f.createFilter))
	mux.HandleFunc("DELETE /gmail/v1/users/me/settings/filters/{id}", f.route("filters.delete", f.deleteFilter))
	return mux
}

func (f *fakeGmail) route(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		code, ok := f.fail[name]
		delete(f.fail, name)
		f.mu.Unlock()
		if ok {
			reason := "backendError"
			if code == http.StatusTooManyRequests {
				reason = "rateLimitExceeded"
			}
			writeError(w, code, "injected failure", reason)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		next(w, r)
	}
}

func writeError(w http.ResponseWriter, code int, message, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"errors":  []map[string]string{{"reason": reason, "message": message}},
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeGmail) list(w http.ResponseWriter, r *http.Request) {
	ids := make([]string, 0, len(f.messages))
	for id, m := range f.messages {
		if slices.Contains(m.labels, labelInbox) {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b string) int {
		return f.messages[b].at.Compare(f.messages[a].at)
	})
	var limit int
	_, _ = fmt.Sscan(r.URL.Query().Get("maxResults"), &limit)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	res := &gmailv1.ListMessagesResponse{}
	for _, id := range ids {
		res.Messages = append(res.Messages, &gmailv1.Message{Id: id})
	}
	writeJSON(w, res)
}

func (f *fakeGmail) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, ok := f.messages[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Requested entity was not found.", "notFound")
		return
	}
	writeJSON(w, &gmailv1.Message{
		Id:           id,
		LabelIds:     m.labels,
		InternalDate: m.at.UnixMilli(),
		Payload: &gmailv1.MessagePart{Headers: []*gmailv1.MessagePartHeader{
			{Name: "From", Value: m.from},
			{Name: "Subject", Value: m.subject},
		}},
	})
}

func (f *fakeGmail) relabel(add, remove []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		m, ok := f.messages[id]
		if !ok {
			writeError(w, http.StatusNotFound, "Requested entity was not found.", "notFound")
			return
		}
		m.labels = applyLabels(m.labels, add, remove)
		writeJSON(w, &gmailv1.Message{Id: id, LabelIds: m.labels})
	}
}

func (f *fakeGmail) modify(w http.ResponseWriter, r *http.Request) {
	var req gmailv1.ModifyMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalidArgument")
		return
	}
	f.relabel(req.AddLabelIds, req.RemoveLabelIds)(w, r)
}

func applyLabels(labels, add, remove []string) []string {
	out := make([]string, 0, len(labels)+len(add))
	for _, l := range labels {
		if !slices.Contains(remove, l) {
			out = append(out, l)
		}
	}
	for _, l := range add {
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

func (f *fakeGmail) listFilters(w http.ResponseWriter, _ *http.Request) {
	res := &gmailv1.ListFiltersResponse{}
	for _, filter := range f.filters {
		res.Filter = append(res.Filter, filter)
	}
	writeJSON(w, res)
}

func (f *fakeGmail) createFilter(w http.ResponseWriter, r *http.Request) {
	var filter gmailv1.Filter
	if err := json.NewDecoder(r.Body).Decode(&filter); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalidArgument")
		return
	}
	for _, existing := range f.filters {
		if existing.Criteria.From == filter.Criteria.From {
			writeError(w, http.StatusBadRequest, "Filter already exists", "failedPrecondition")
			return
		}
	}
	f.nextID++
	filter.Id = fmt.Sprintf("ANe1Bm%d", f.nextID)
	f.filters[filter.Id] = &filter
	writeJSON(w, &filter)
}

func (f *fakeGmail) deleteFilter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := f.filters[id]; !ok {
		writeError(w, http.StatusNotFound, "Filter not found", "notFound")
		return
	}
	delete(f.filters, id)
	w.WriteHeader(http.StatusNoContent)
}

func setupClient(t *testing.T) (*Client, *fakeGmail) {
	t.Helper()
	fake := newFakeGmail()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	svc, err := gmailv1.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return New(svc, mock.SetupLogger(t)), fake
}

func TestInbox(t *testing.T) {
	c, _ := setupClient(t)

	items, err := c.Inbox(context.Background(), 10)
	require.NoError(t, err)

	require.Equal(t, []string{"m2", "m1"}, mailitem.IDs(items))
	assert.Equal(t, "news@example.com", items[1].Sender)
	assert.Equal(t, "example.com", items[1].Domain)
	assert.Equal(t, "Weekly", items[1].Subject)
	assert.False(t, items[1].ReceivedAt.IsZero())

	items, err = c.Inbox(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, mailitem.IDs(items))
}

func TestTrashUntrashLookup(t *testing.T) {
	c, _ := setupClient(t)
	ctx := context.Background()

	require.NoError(t, c.Trash(ctx, []string{"m1", "m2"}))
	require.NoError(t, c.Trash(ctx, []string{"m1"}), "trashing twice succeeds")

	items, err := c.Lookup(ctx, []string{"m1", "m2", "gone"})
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, c.Untrash(ctx, "m1"))
	items, err = c.Lookup(ctx, []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, mailitem.IDs(items))
}

func TestMarkSpam(t *testing.T) {
	c, fake := setupClient(t)

	require.NoError(t, c.MarkSpam(context.Background(), "m2"))
	assert.ElementsMatch(t, []string{"UNREAD", labelSpam}, fake.messages["m2"].labels)
}

func TestBlockFilterLifecycle(t *testing.T) {
	c, fake := setupClient(t)
	ctx := context.Background()

	id, err := c.CreateBlockFilter(ctx, " News@Example.com ")
	require.NoError(t, err)
	require.Contains(t, fake.filters, id)
	assert.Equal(t, "news@example.com", fake.filters[id].Criteria.From)
	assert.Equal(t, []string{labelTrash}, fake.filters[id].Action.AddLabelIds)

	again, err := c.CreateBlockFilter(ctx, "news@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, again, "an existing filter is reused")

	require.NoError(t, c.DeleteFilter(ctx, id))
	assert.Empty(t, fake.filters)
	require.NoError(t, c.DeleteFilter(ctx, id), "deleting a missing filter succeeds")

	_, err = c.CreateBlockFilter(ctx, "")
	assert.ErrorIs(t, err, base.ErrValidation)
}

func TestErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name  string
		route string
		code  int
		call  func(*Client) error
		want  error
	}{
		{
			name: "rate limited", route: "trash", code: http.StatusTooManyRequests,
			call: func(c *Client) error { return c.Trash(context.Background(), []string{"m1"}) },
			want: base.ErrRateLimited,
		},
		{
			name: "server error", route: "modify", code: http.StatusServiceUnavailable,
			call: func(c *Client) error { return c.MarkSpam(context.Background(), "m1") },
			want: base.ErrProviderHardFailure,
		},
		{
			name: "bad request", route: "filters.create", code: http.StatusBadRequest,
			call: func(c *Client) error {
				_, err := c.CreateBlockFilter(context.Background(), "a@b.example")
				return err
			},
			want: base.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := setupClient(t)
			fake.failNext(tt.route, tt.code)
			assert.ErrorIs(t, tt.call(c), tt.want)
		})
	}
}

func TestClosedServerIsNetworkUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	svc, err := gmailv1.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)

	err = New(svc, mock.SetupLogger(t)).Untrash(context.Background(), "m1")
	assert.ErrorIs(t, err, base.ErrNetworkUnavailable)
}

func TestClassifyForbiddenRateLimit(t *testing.T) {
	err := &googleapi.Error{
		Code:   http.StatusForbidden,
		Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}},
	}
	assert.ErrorIs(t, classify(err), base.ErrRateLimited)

	err = &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "insufficientPermissions"}}}
	assert.ErrorIs(t, classify(err), base.ErrValidation)

	assert.Equal(t, context.Canceled, classify(context.Canceled))
	assert.NoError(t, classify(nil))
}

func TestSenderAddress(t *testing.T) {
	assert.Equal(t, "news@example.com", senderAddress(`"News" <News@Example.com>`))
	assert.Equal(t, "plain@example.com", senderAddress(" plain@example.com "))
}
