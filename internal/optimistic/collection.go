package optimistic

import (
	"sort"
	"sync"

	"aaronromeo.com/inboxsweep/pkg/models/action"
	"aaronromeo.com/inboxsweep/pkg/models/mailitem"
)

// Collection is the caller-visible list of inbox items.
type Collection struct {
	mu    sync.Mutex
	items []mailitem.Item
}

func NewCollection(items ...mailitem.Item) *Collection {
	c := &Collection{}
	c.Load(items)
	return c
}

// Load replaces the whole collection.
func (c *Collection) Load(items []mailitem.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]mailitem.Item(nil), items...)
}

func (c *Collection) Items() []mailitem.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]mailitem.Item(nil), c.items...)
}

func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

type removedItem struct {
	index int
	item  mailitem.Item
}

// removal remembers where items sat so they can be put back exactly.
type removal []removedItem

func (r removal) items() []mailitem.Item {
	out := make([]mailitem.Item, 0, len(r))
	for _, ri := range r {
		out = append(out, ri.item)
	}
	return out
}

// remove takes out every item matched by target.
func (c *Collection) remove(target action.Target) removal {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed removal
	kept := c.items[:0]
	for i, item := range c.items {
		if target.Matches(item) {
			removed = append(removed, removedItem{index: i, item: item})
			continue
		}
		kept = append(kept, item)
	}
	c.items = kept
	return removed
}

// restore reverses remove. Indexes are applied in ascending order so each one lands where it
// was before the removal.
func (c *Collection) restore(r removal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ri := range r {
		if c.indexOf(ri.item.ID) >= 0 {
			continue
		}
		at := ri.index
		if at > len(c.items) {
			at = len(c.items)
		}
		c.items = append(c.items, mailitem.Item{})
		copy(c.items[at+1:], c.items[at:])
		c.items[at] = ri.item
	}
}

// Merge inserts items that are not already present, newest first among dated items.
// Undated items go to the end.
func (c *Collection) Merge(items []mailitem.Item) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	incoming := append([]mailitem.Item(nil), items...)
	sort.SliceStable(incoming, func(i, j int) bool {
		return incoming[i].ReceivedAt.After(incoming[j].ReceivedAt)
	})

	added := 0
	for _, item := range incoming {
		if c.indexOf(item.ID) >= 0 {
			continue
		}
		at := len(c.items)
		if !item.ReceivedAt.IsZero() {
			for i, existing := range c.items {
				if existing.ReceivedAt.Before(item.ReceivedAt) {
					at = i
					break
				}
			}
		}
		c.items = append(c.items, mailitem.Item{})
		copy(c.items[at+1:], c.items[at:])
		c.items[at] = item
		added++
	}
	return added
}

func (c *Collection) indexOf(id string) int {
	for i, item := range c.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
