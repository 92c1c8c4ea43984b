package broker

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Bridge for single-instance deployments and tests.
// History lists carry a rolling expiry refreshed on every push; an expired
// list is dropped as a whole, mirroring the backing-store semantics.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
	history  map[string]*historyList
}

type historyList struct {
	items     [][]byte // most recent first
	expiresAt time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:      ttl,
		now:      time.Now,
		handlers: make(map[string]Handler),
		history:  make(map[string]*historyList),
	}
}

func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.RLock()
	fn := m.handlers[topic]
	m.mu.RUnlock()

	if fn != nil {
		fn(payload)
	}
	return nil
}

func (m *Memory) SubscribeOnce(_ context.Context, topic string, fn Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[topic]; ok {
		return nil
	}
	m.handlers[topic] = fn
	return nil
}

func (m *Memory) Unsubscribe(_ context.Context, topic string) error {
	m.mu.Lock()
	delete(m.handlers, topic)
	m.mu.Unlock()
	return nil
}

func (m *Memory) PushHistory(_ context.Context, topic string, payload []byte, cap int) error {
	if cap <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.history[topic]
	if list == nil || m.expired(list) {
		list = &historyList{}
		m.history[topic] = list
	}

	item := append([]byte(nil), payload...)
	list.items = append([][]byte{item}, list.items...)
	if len(list.items) > cap {
		list.items = list.items[:cap]
	}
	if m.ttl > 0 {
		list.expiresAt = m.now().Add(m.ttl)
	}
	return nil
}

func (m *Memory) RecentHistory(_ context.Context, topic string, limit int) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.history[topic]
	if list == nil || m.expired(list) {
		return nil, nil
	}
	n := len(list.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		out[i] = append([]byte(nil), list.items[i]...)
	}
	return out, nil
}

// Subscribed reports whether topic currently has a handler. Test hook.
func (m *Memory) Subscribed(topic string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.handlers[topic]
	return ok
}

func (m *Memory) expired(list *historyList) bool {
	return m.ttl > 0 && !list.expiresAt.IsZero() && m.now().After(list.expiresAt)
}
