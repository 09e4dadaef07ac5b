package store

import (
	"context"
	"sync"

	"aaronromeo.com/inboxsweep/pkg/models/action"
)

// Memory keeps intents in process memory. It survives nothing and serves as the
// best-effort backend when no durable store is configured.
type Memory struct {
	mu      sync.Mutex
	order   []string
	intents map[string]action.Intent
}

func NewMemory() *Memory {
	return &Memory{intents: map[string]action.Intent{}}
}

func (m *Memory) Init(context.Context) error {
	return nil
}

func (m *Memory) Add(_ context.Context, intent action.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[intent.ID]; ok {
		return errDuplicate(intent.ID)
	}
	m.order = append(m.order, intent.ID)
	m.intents[intent.ID] = cloneIntent(intent)
	return nil
}

func (m *Memory) GetAll(context.Context) ([]action.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]action.Intent, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneIntent(m.intents[id]))
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (action.Intent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[id]
	return cloneIntent(intent), ok, nil
}

func (m *Memory) Put(_ context.Context, intent action.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[intent.ID]; ok {
		m.intents[intent.ID] = cloneIntent(intent)
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[id]; !ok {
		return nil
	}
	delete(m.intents, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order), nil
}

func (m *Memory) Close() error {
	return nil
}

func cloneIntent(intent action.Intent) action.Intent {
	if intent.Target.EmailIDs != nil {
		intent.Target.EmailIDs = append([]string(nil), intent.Target.EmailIDs...)
	}
	return intent
}
