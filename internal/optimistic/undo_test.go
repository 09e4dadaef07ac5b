package optimistic

import (
	"testing"

	"aaronromeo.com/inboxsweep/pkg/models/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUndoStackOperations(t *testing.T) {
	s := NewUndoStack(2)
	assert.False(t, s.Push(action.UndoEntry{ID: "a"}))
	assert.False(t, s.Push(action.UndoEntry{ID: "b"}))
	assert.True(t, s.Push(action.UndoEntry{ID: "c"}))

	assert.True(t, s.Attach("b", "filter-9"))
	assert.False(t, s.Attach("a", "filter-1"), "a was discarded")
	assert.Equal(t, 2, s.Depth())

	top, ok := s.Pop()
	assert.True(t, ok)
	assert.Equal(t, "c", top.ID)

	assert.True(t, s.Drop("b"))
	assert.False(t, s.Drop("b"))
	_, ok = s.Pop()
	assert.False(t, ok)
}

func TestUndoStackPeekIsNewestFirst(t *testing.T) {
	s := NewUndoStack(0)
	s.Push(action.UndoEntry{ID: "a"})
	assert.True(t, s.Push(action.UndoEntry{ID: "b"}), "capacity is clamped to one")

	peeked := s.Peek()
	require.Len(t, peeked, 1)
	assert.Equal(t, "b", peeked[0].ID)

	peeked[0].ID = "changed"
	top, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", top.ID)
}
