package optimistic

import (
	"testing"
	"time"

	"aaronromeo.com/inboxsweep/pkg/models/action"
	"aaronromeo.com/inboxsweep/pkg/models/mailitem"
	"github.com/stretchr/testify/assert"
)

func TestCollectionRestoreKeepsPositions(t *testing.T) {
	c := NewCollection(
		mailitem.Item{ID: "1", Sender: "a@x.com", Domain: "x.com"},
		mailitem.Item{ID: "2", Sender: "b@y.com", Domain: "y.com"},
		mailitem.Item{ID: "3", Sender: "a@x.com", Domain: "x.com"},
		mailitem.Item{ID: "4", Sender: "c@x.com", Domain: "x.com"},
	)

	removed := c.remove(action.Target{Domain: "X.com"})
	assert.Equal(t, []string{"1", "3", "4"}, mailitem.IDs(removed.items()))
	assert.Equal(t, []string{"2"}, mailitem.IDs(c.Items()))

	c.restore(removed)
	assert.Equal(t, []string{"1", "2", "3", "4"}, mailitem.IDs(c.Items()))

	c.restore(removed)
	assert.Equal(t, 4, c.Len(), "restore skips items already present")
}

func TestCollectionMergeOrdersByDate(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }
	c := NewCollection(
		mailitem.Item{ID: "may-9", ReceivedAt: day(9)},
		mailitem.Item{ID: "may-5", ReceivedAt: day(5)},
	)

	added := c.Merge([]mailitem.Item{
		{ID: "undated"},
		{ID: "may-1", ReceivedAt: day(1)},
		{ID: "may-7", ReceivedAt: day(7)},
		{ID: "may-9", ReceivedAt: day(9)},
	})

	assert.Equal(t, 3, added)
	assert.Equal(t, []string{"may-9", "may-7", "may-5", "may-1", "undated"}, mailitem.IDs(c.Items()))
}
