package testutil

import (
	"context"
	"errors"
	"testing"

	"aaronromeo.com/inboxsweep/internal/gateway"
	"github.com/stretchr/testify/assert"
)

var _ gateway.Provider = (*FakeProvider)(nil)

func TestFakeProviderRecordsCalls(t *testing.T) {
	fake := NewFakeProvider()
	ctx := context.Background()

	assert.NoError(t, fake.Trash(ctx, []string{"a", "b"}))
	handle, err := fake.CreateBlockFilter(ctx, "news@example.com")
	assert.NoError(t, err)
	assert.Equal(t, "filter-1", handle)
	assert.NoError(t, fake.DeleteFilter(ctx, handle))

	assert.Equal(t, []string{
		"Trash(a,b)",
		"CreateBlockFilter(news@example.com)",
		"DeleteFilter(filter-1)",
	}, fake.Calls())
	assert.Equal(t, []string{"Trash(a,b)"}, fake.CallsTo("Trash"))
}

func TestFakeProviderInjectedBehavior(t *testing.T) {
	fake := NewFakeProvider()
	fake.MarkSpamFunc = func(context.Context, string) error {
		return errors.New("spam failed")
	}

	err := fake.MarkSpam(context.Background(), "m1")
	assert.EqualError(t, err, "spam failed")
	assert.Equal(t, []string{"MarkSpam(m1)"}, fake.Calls())
}

func TestItems(t *testing.T) {
	items := Items(2, "news@example.com")

	assert.Len(t, items, 2)
	assert.Equal(t, "news-1", items[0].ID)
	assert.Equal(t, "example.com", items[1].Domain)
}
