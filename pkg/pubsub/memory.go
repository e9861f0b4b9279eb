package pubsub

import (
	"context"
	"sync"
)

// MemoryPubSub delivers events to subscribers in the same process. It is the
// default driver for single-node deployments and tests.
type MemoryPubSub struct {
	mu     sync.RWMutex
	subs   map[string][]chan *Event
	closed bool
}

// NewMemoryPubSub creates an in-process bus.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[string][]chan *Event)}
}

// Publish delivers the event to every current subscriber of the channel.
// Subscribers whose buffer is full miss the event.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return context.Canceled
	}
	for _, ch := range m.subs[channel] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a buffered subscriber that ends with ctx.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	ch := make(chan *Event, subscriberBuffer)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, nil
	}
	m.subs[channel] = append(m.subs[channel], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.remove(channel, ch)
	}()

	return ch, nil
}

func (m *MemoryPubSub) remove(channel string, target chan *Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[channel]
	for i, ch := range subs {
		if ch == target {
			m.subs[channel] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close ends every subscription.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for channel, subs := range m.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(m.subs, channel)
	}
	return nil
}
