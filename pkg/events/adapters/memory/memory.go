// Package memory implements events.Bus with in-process, synchronous
// delivery: Publish calls every subscribed Handler on the caller's
// goroutine, in subscription order, stopping at the first handler error.
package memory

import (
	"context"
	"sync"

	"github.com/chris-alexander-pop/busrt/pkg/events"
)

// Bus is an in-memory events.Bus. The zero value is not usable; construct
// with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]events.Handler
	closed      bool
}

// New constructs an empty in-memory Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string][]events.Handler)}
}

// Publish delivers event to every handler subscribed to topic, in
// registration order, stopping at (and returning) the first handler error.
func (b *Bus) Publish(ctx context.Context, topic string, event events.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return events.ErrClosed("event bus has been closed")
	}
	for _, h := range b.subscribers[topic] {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers handler for topic. Every Subscribe call is its own
// delivery target: there is no consumer-group load balancing.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler events.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return events.ErrClosed("event bus has been closed")
	}
	b.subscribers[topic] = append(b.subscribers[topic], handler)
	return nil
}

// Close releases all subscriptions. Subsequent Publish/Subscribe calls
// fail with ErrClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = nil
	return nil
}

var _ events.Bus = (*Bus)(nil)
