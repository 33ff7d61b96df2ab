package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/iotf/core/codec"
)

// Memory is an in-process Transport. Publish delivers synchronously to every matching
// subscription. Clients sharing a Memory transport talk to each other.
type Memory struct {
	mu            sync.RWMutex
	subscriptions map[int]memorySubscription
	next          int
	closed        bool
	done          chan struct{}

	// now stamps ReceivedAt, replaced in tests
	now func() time.Time
}

type memorySubscription struct {
	filter  string
	handler Handler
}

var _ Transport = (*Memory)(nil)

// NewMemory creates a new Memory transport
func NewMemory() *Memory {
	return &Memory{
		subscriptions: make(map[int]memorySubscription),
		done:          make(chan struct{}),
		now:           time.Now,
	}
}

// Publish sends payload to all subscriptions matching topic. The payload is copied
// for each handler.
func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	var handlers []Handler
	for _, s := range m.subscriptions {
		if Match(s.filter, topic) {
			handlers = append(handlers, s.handler)
		}
	}
	m.mu.RUnlock()

	receivedAt := m.now().UTC()
	for _, h := range handlers {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		h(ctx, codec.RawMessage{Topic: topic, Payload: buf, ReceivedAt: receivedAt})
	}
	return nil
}

// Subscribe registers handler for filter until ctx is done or the transport is closed
func (m *Memory) Subscribe(ctx context.Context, filter string, handler Handler) error {
	if !ValidFilter(filter) {
		return fmt.Errorf("invalid filter %q", filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	id := m.next
	m.next++
	m.subscriptions[id] = memorySubscription{filter: filter, handler: handler}

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				m.mu.Lock()
				delete(m.subscriptions, id)
				m.mu.Unlock()
			case <-m.done:
			}
		}()
	}
	return nil
}

// Subscriptions returns the number of active subscriptions
func (m *Memory) Subscriptions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close drops all subscriptions. Subsequent calls return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	m.subscriptions = make(map[int]memorySubscription)
	close(m.done)
	return nil
}
