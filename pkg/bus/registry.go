package bus

import (
	"fmt"
	"reflect"

	"github.com/chris-alexander-pop/busrt/pkg/concurrency"
)

// typeRegistry resolves a runtime type to the nearest declared
// producer/consumer settings, walking the type's ancestor/interface chain
// once and caching the result (orig §4.1).
//
// The cache is read-mostly (hit on every produce/consume, written only on a
// first-seen type), so it is guarded with a SmartRWMutex rather than a plain
// map, matching the concurrency discipline pkg/concurrency already
// establishes for this shape of cache (orig §5 "read-mostly, write on miss").
type typeRegistry struct {
	producers map[reflect.Type]*ProducerSettings
	consumers map[reflect.Type][]*ConsumerSettings

	mu          *concurrency.SmartRWMutex
	producerHit map[reflect.Type]*ProducerSettings
	consumerHit map[reflect.Type][]*ConsumerSettings
}

func newTypeRegistry() *typeRegistry {
	return &typeRegistry{
		producers:   make(map[reflect.Type]*ProducerSettings),
		consumers:   make(map[reflect.Type][]*ConsumerSettings),
		mu:          concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "bus.typeRegistry"}),
		producerHit: make(map[reflect.Type]*ProducerSettings),
		consumerHit: make(map[reflect.Type][]*ConsumerSettings),
	}
}

// addProducer registers settings for an exact declared type. Returns a
// Configuration error if the type is already declared, enforcing the
// at-most-one-producer-per-type invariant (orig §3, §8 invariant 2).
func (r *typeRegistry) addProducer(s ProducerSettings) error {
	if _, exists := r.producers[s.MessageType]; exists {
		return ErrConfiguration(fmt.Sprintf("producer for type %s declared more than once", s.MessageType), nil)
	}
	cp := s
	r.producers[s.MessageType] = &cp
	return nil
}

// addConsumer registers a consumer/handler settings entry. Unlike
// producers, a type may have 0..N consumer settings (orig §3).
func (r *typeRegistry) addConsumer(s ConsumerSettings) {
	cp := s
	r.consumers[s.MessageType] = append(r.consumers[s.MessageType], &cp)
}

// resolveProducer finds the nearest declared producer for t: an exact match
// first, otherwise the nearest Polymorphic producer whose type isAncestor
// reports for t (an interface t implements, or a struct embedded anonymously
// in t at any depth). Pointer types are not unwrapped to their element type.
// Results are cached per concrete type for the bus's lifetime.
func (r *typeRegistry) resolveProducer(t reflect.Type) (*ProducerSettings, error) {
	r.mu.RLock()
	if s, ok := r.producerHit[t]; ok {
		r.mu.RUnlock()
		if s == nil {
			return nil, ErrProducer(fmt.Sprintf("no producer declared for type %s", t), nil)
		}
		return s, nil
	}
	r.mu.RUnlock()

	s := r.lookupProducer(t)

	r.mu.Lock()
	r.producerHit[t] = s
	r.mu.Unlock()

	if s == nil {
		return nil, ErrProducer(fmt.Sprintf("no producer declared for type %s", t), nil)
	}
	return s, nil
}

func (r *typeRegistry) lookupProducer(t reflect.Type) *ProducerSettings {
	if s, ok := r.producers[t]; ok {
		return s
	}
	var best *ProducerSettings
	for base, s := range r.producers {
		if !s.Polymorphic {
			continue
		}
		if isAncestor(base, t) {
			if best == nil || isAncestor(best.MessageType, base) {
				best = s
			}
			// A candidate that descends from the current best is nearer to
			// t and replaces it. Build()'s checkPolymorphicProducerTies
			// rejects pairs of declared polymorphic producers that both
			// match a common declared type with no ancestor relation between
			// them (orig §4.1, §8); for a type that was not itself declared,
			// the choice between two unrelated matches is not defined.
		}
	}
	return best
}

// resolveConsumers returns every consumer/handler settings entry declared
// for t (exact match only — consumer settings are not polymorphic; each
// transport message carries an explicit type header, orig §4.6 step 1).
func (r *typeRegistry) resolveConsumers(t reflect.Type) ([]*ConsumerSettings, error) {
	r.mu.RLock()
	entries, ok := r.consumerHit[t]
	r.mu.RUnlock()
	if ok {
		if len(entries) == 0 {
			return nil, ErrConsumer(fmt.Sprintf("no consumer declared for type %s", t), nil)
		}
		return entries, nil
	}

	entries = r.consumers[t]
	r.mu.Lock()
	r.consumerHit[t] = entries
	r.mu.Unlock()

	if len(entries) == 0 {
		return nil, ErrConsumer(fmt.Sprintf("no consumer declared for type %s", t), nil)
	}
	return entries, nil
}

// isAncestor reports whether derived is base, embeds base, or implements
// base when base is an interface.
func isAncestor(base, derived reflect.Type) bool {
	if base == derived {
		return true
	}
	if base.Kind() == reflect.Interface {
		return derived.Implements(base)
	}
	if derived.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < derived.NumField(); i++ {
		f := derived.Field(i)
		if !f.Anonymous {
			continue
		}
		if f.Type == base || isAncestor(base, f.Type) {
			return true
		}
	}
	return false
}
