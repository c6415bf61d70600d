// Package memory implements a bus.Transport over pkg/events' in-process
// Bus — the reference transport used by tests and for wiring a hybrid bus
// locally before a real broker is available.
package memory

import (
	"context"
	"sync"

	"github.com/chris-alexander-pop/busrt/pkg/bus"
	"github.com/chris-alexander-pop/busrt/pkg/events"
	eventsmemory "github.com/chris-alexander-pop/busrt/pkg/events/adapters/memory"
)

// Config configures the in-memory transport.
type Config struct {
	// BufferSize is accepted for configuration-shape parity with the
	// network adapters but unused: delivery through pkg/events' Bus is
	// synchronous and unbuffered.
	BufferSize int
}

// Transport is a bus.Transport and bus.Consumable backed by an
// events.Bus, treating each bus path as an event topic. ProduceToPath
// delivers synchronously to every subscription registered on that path
// (pub/sub fan-out, not a load-balanced queue — a RegisterConsumer group
// argument has no effect here).
type Transport struct {
	cfg Config

	mu       sync.RWMutex
	inner    *eventsmemory.Bus
	disposed bool
}

// New constructs an in-memory Transport.
func New(cfg Config) *Transport {
	return &Transport{cfg: cfg, inner: eventsmemory.New()}
}

func (t *Transport) Start(ctx context.Context) error { return nil }
func (t *Transport) Stop(ctx context.Context) error  { return nil }

// ProvisionTopology is a no-op: paths are created lazily on first
// produce/subscribe.
func (t *Transport) ProvisionTopology(ctx context.Context, paths []bus.PathSpec) error { return nil }

// envelopePayload carries an Envelope's payload/headers through
// events.Event.Payload, since events.Event has no header map of its own.
type envelopePayload struct {
	payload []byte
	headers bus.Headers
}

// ProduceToPath delivers payload/headers to every subscription registered
// on path. routingAttrs are accepted for interface conformance but ignored
// (there is no real partitioning in-process).
func (t *Transport) ProduceToPath(ctx context.Context, payload []byte, headers bus.Headers, path string, routingAttrs map[string]any) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.disposed {
		return bus.ErrDisposed("memory transport has been disposed")
	}

	event := events.Event{Type: path, Payload: envelopePayload{payload: payload, headers: headers.Clone()}}
	if err := t.inner.Publish(ctx, path, event); err != nil {
		return bus.ErrTransport("in-memory delivery failed", err)
	}
	return nil
}

// RegisterConsumer adds deliver as a subscriber on path. Every
// RegisterConsumer call receives every message produced to path — the
// in-memory transport does not model consumer-group load balancing.
func (t *Transport) RegisterConsumer(ctx context.Context, path, group string, deliver bus.ConsumerDeliverFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return bus.ErrDisposed("memory transport has been disposed")
	}
	return t.inner.Subscribe(ctx, path, func(ctx context.Context, event events.Event) error {
		payload := event.Payload.(envelopePayload)
		env := &bus.Envelope{Payload: payload.payload, Headers: payload.headers}
		_, err := deliver(ctx, env)
		return err
	})
}

// Dispose releases all subscriptions. Subsequent ProduceToPath/
// RegisterConsumer calls fail with ErrDisposed.
func (t *Transport) Dispose(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposed = true
	return t.inner.Close()
}

var _ bus.Transport = (*Transport)(nil)
var _ bus.Consumable = (*Transport)(nil)
