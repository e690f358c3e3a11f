package sse

import (
	"context"
	"sync"
)

// Channel is the cross-instance transport. Subscribe returns once the
// subscription is live; handler is then called for every message.
type Channel interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error
	Close() error
}

// MemoryHub connects buses living in the same process. Each bus gets its own
// Channel from Channel().
type MemoryHub struct {
	mu       sync.RWMutex
	handlers map[string]map[*memoryChannel]func([]byte)
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{handlers: map[string]map[*memoryChannel]func([]byte){}}
}

func (h *MemoryHub) Channel() Channel {
	return &memoryChannel{hub: h}
}

type memoryChannel struct {
	hub *MemoryHub
}

func (m *memoryChannel) Publish(ctx context.Context, channel string, payload []byte) error {
	m.hub.mu.RLock()
	handlers := make([]func([]byte), 0, len(m.hub.handlers[channel]))
	for _, h := range m.hub.handlers[channel] {
		handlers = append(handlers, h)
	}
	m.hub.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
	return ctx.Err()
}

func (m *memoryChannel) Subscribe(_ context.Context, channel string, handler func([]byte)) error {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	if m.hub.handlers[channel] == nil {
		m.hub.handlers[channel] = map[*memoryChannel]func([]byte){}
	}
	m.hub.handlers[channel][m] = handler
	return nil
}

func (m *memoryChannel) Close() error {
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	for _, subs := range m.hub.handlers {
		delete(subs, m)
	}
	return nil
}
