package optimistic

import (
	"sync"

	"aaronromeo.com/inboxsweep/pkg/models/action"
)

// UndoStack is a bounded LIFO of undo entries. Pushing past capacity discards the oldest entry.
type UndoStack struct {
	mu       sync.Mutex
	capacity int
	entries  []action.UndoEntry
}

func NewUndoStack(capacity int) *UndoStack {
	if capacity < 1 {
		capacity = 1
	}
	return &UndoStack{capacity: capacity}
}

// Push adds entry on top and reports whether an old entry fell off the bottom.
func (s *UndoStack) Push(entry action.UndoEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	if len(s.entries) <= s.capacity {
		return false
	}
	s.entries = append([]action.UndoEntry(nil), s.entries[len(s.entries)-s.capacity:]...)
	return true
}

func (s *UndoStack) Pop() (action.UndoEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return action.UndoEntry{}, false
	}
	last := len(s.entries) - 1
	entry := s.entries[last]
	s.entries[last] = action.UndoEntry{}
	s.entries = s.entries[:last]
	return entry, true
}

// Attach records the server handle returned once the remote call for entry id succeeded.
func (s *UndoStack) Attach(id, handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].ServerHandle = handle
			return true
		}
	}
	return false
}

// AttachIntent records the durable queue intent that will carry out entry id.
func (s *UndoStack) AttachIntent(id, intentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].IntentID = intentID
			return true
		}
	}
	return false
}

// Drop removes entry id wherever it sits.
func (s *UndoStack) Drop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (s *UndoStack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Peek returns a copy of the entries, most recent first.
func (s *UndoStack) Peek() []action.UndoEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]action.UndoEntry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i])
	}
	return out
}
