package mock

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"aaronromeo.com/inboxsweep/pkg/models/action"
	gomock "go.uber.org/mock/gomock"
)

// SetupLogger sets up a logger that only outputs if the test fails
func SetupLogger(t *testing.T) *slog.Logger {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	t.Cleanup(func() {
		if t.Failed() {
			os.Stdout.Write(buf.Bytes()) //nolint:errcheck
		}
	})

	return logger
}

// Custom matcher comparing an id slice regardless of order
type idSetMatcher struct {
	ids map[string]struct{}
}

func (m idSetMatcher) Matches(x interface{}) bool {
	ids, ok := x.([]string)
	if !ok || len(ids) != len(m.ids) {
		return false
	}
	for _, id := range ids {
		if _, ok := m.ids[id]; !ok {
			return false
		}
	}
	return true
}

func (m idSetMatcher) String() string {
	return "matches id set regardless of order"
}

// NewIDSetMatcher returns a matcher for email id slices
func NewIDSetMatcher(ids ...string) gomock.Matcher {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return idSetMatcher{ids: set}
}

// Custom matcher for intents of one type
type intentTypeMatcher struct {
	want action.Type
}

func (m intentTypeMatcher) Matches(x interface{}) bool {
	intent, ok := x.(action.Intent)
	return ok && intent.Type == m.want
}

func (m intentTypeMatcher) String() string {
	return "is an intent of type " + string(m.want)
}

// NewIntentTypeMatcher returns a matcher for intents by type
func NewIntentTypeMatcher(t action.Type) gomock.Matcher {
	return intentTypeMatcher{want: t}
}
