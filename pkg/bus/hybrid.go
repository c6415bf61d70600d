package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/chris-alexander-pop/busrt/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// PublishExecutionMode selects how HybridBus fans out a Publish across more
// than one child bus (orig §4.8 "Publish fan-out").
type PublishExecutionMode int

const (
	// PublishParallel awaits every child bus's publish concurrently;
	// failure of any is surfaced once all have completed.
	PublishParallel PublishExecutionMode = iota
	// PublishSequential iterates children in declaration order; the first
	// failure aborts the remainder.
	PublishSequential
)

// HybridBus composites multiple named Buses behind one Produce/Publish/Send
// surface, routing by the runtime type of the message (orig §4.8).
type HybridBus struct {
	mode PublishExecutionMode

	mu          sync.RWMutex
	buses       []*Bus
	typeToBuses map[reflect.Type][]*Bus
}

// NewHybridBus builds typeToBuses by walking every child bus's declared
// producers. A request-capable type (ResponseType set) that resolves to
// more than one bus is a Configuration error (orig §4.8 invariant).
func NewHybridBus(mode PublishExecutionMode, buses ...*Bus) (*HybridBus, error) {
	h := &HybridBus{
		mode:        mode,
		buses:       buses,
		typeToBuses: make(map[reflect.Type][]*Bus),
	}

	seenNames := make(map[string]bool)
	for _, b := range buses {
		if seenNames[b.Name()] {
			return nil, ErrConfiguration(fmt.Sprintf("child bus name %q declared more than once", b.Name()), nil)
		}
		seenNames[b.Name()] = true

		for _, ps := range b.settings.Producers {
			h.typeToBuses[ps.MessageType] = append(h.typeToBuses[ps.MessageType], b)
		}
	}
	for t, bs := range h.typeToBuses {
		requestCapable := false
		for _, b := range bs {
			if ps, err := b.registry.resolveProducer(t); err == nil && ps.ResponseType != nil {
				requestCapable = true
			}
		}
		if requestCapable && len(bs) > 1 {
			return nil, ErrConfiguration(fmt.Sprintf("request type %s is declared as a producer on more than one child bus", t), nil)
		}
	}
	return h, nil
}

// Route returns every child bus that declared a producer for message's
// runtime type: the exact declared type first, otherwise the buses of a
// declared type that isAncestor matches (orig §4.8 "Route"). The producer's
// Polymorphic flag is not checked here, and which declared type is used when
// several ancestors match is not defined.
func (h *HybridBus) Route(message any) ([]*Bus, error) {
	t := reflect.TypeOf(message)
	if t == nil {
		return nil, ErrProducer("cannot route a nil message", nil)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if bs, ok := h.typeToBuses[t]; ok {
		return bs, nil
	}
	for base, bs := range h.typeToBuses {
		if isAncestor(base, t) {
			return bs, nil
		}
	}
	return nil, ErrConfiguration(fmt.Sprintf("no child bus declares a producer for type %s", t), nil)
}

// Publish fans out to every bus Route returns, per h.mode.
func (h *HybridBus) Publish(ctx context.Context, message any, opts ...ProduceOption) error {
	buses, err := h.Route(message)
	if err != nil {
		return err
	}
	if len(buses) == 1 {
		return buses[0].Publish(ctx, message, opts...)
	}

	if h.mode == PublishSequential {
		for _, b := range buses {
			if err := b.Publish(ctx, message, opts...); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range buses {
		b := b
		g.Go(func() error { return b.Publish(gctx, message, opts...) })
	}
	return g.Wait()
}

// Send routes to the sole declared bus for message's type and forwards the
// response unchanged (orig §4.8 "Send").
func (h *HybridBus) Send(ctx context.Context, message any, opts ...ProduceOption) (any, error) {
	buses, err := h.Route(message)
	if err != nil {
		return nil, err
	}
	if len(buses) != 1 {
		return nil, ErrConfiguration(fmt.Sprintf("Send requires exactly one producing bus, found %d", len(buses)), nil)
	}
	return buses[0].Send(ctx, message, opts...)
}

// Start starts every child bus concurrently, awaiting all (orig §4.8
// "Lifecycle").
func (h *HybridBus) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range h.buses {
		b := b
		g.Go(func() error { return b.Start(gctx) })
	}
	return g.Wait()
}

// Stop stops every child bus concurrently, awaiting all.
func (h *HybridBus) Stop(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range h.buses {
		b := b
		g.Go(func() error { return b.Stop(gctx) })
	}
	return g.Wait()
}

// Dispose awaits each child bus's dispose in reverse declaration order,
// logging individual failures rather than aborting early, so every child
// gets a chance to release its resources (orig §4.8 "disposal awaits each
// child's async dispose, logs individual failures, and clears the map").
func (h *HybridBus) Dispose(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for i := len(h.buses) - 1; i >= 0; i-- {
		b := h.buses[i]
		if err := b.Dispose(ctx); err != nil {
			logger.L().ErrorContext(ctx, "child bus dispose failed", "bus", b.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	h.buses = nil
	h.typeToBuses = make(map[reflect.Type][]*Bus)
	return firstErr
}

// IsStarted reports whether every child bus is started.
func (h *HybridBus) IsStarted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, b := range h.buses {
		if !b.IsStarted() {
			return false
		}
	}
	return true
}
