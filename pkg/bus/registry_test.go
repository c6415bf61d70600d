package bus

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

type baseEvent struct{ ID string }
type derivedEvent struct{ baseEvent }
type derived2Event struct{ baseEvent }
type unrelatedEvent struct{ ID string }

// TestResolveProducerExactMatch covers invariant 1's first half: a type
// with exactly one declared producer resolves to that producer.
func TestResolveProducerExactMatch(t *testing.T) {
	r := newTypeRegistry()
	require.NoError(t, r.addProducer(ProducerSettings{MessageType: reflect.TypeOf(unrelatedEvent{}), DefaultPath: "unrelated"}))

	ps, err := r.resolveProducer(reflect.TypeOf(unrelatedEvent{}))
	require.NoError(t, err)
	require.Equal(t, "unrelated", ps.DefaultPath)
}

// TestResolveProducerPolymorphicFallback covers invariant 1's second half:
// a producer declared only for a base type, with Polymorphic set, is
// returned for derived types too (orig §4.1 "Rationale").
func TestResolveProducerPolymorphicFallback(t *testing.T) {
	r := newTypeRegistry()
	require.NoError(t, r.addProducer(ProducerSettings{
		MessageType: reflect.TypeOf(baseEvent{}),
		DefaultPath: "base-events",
		Polymorphic: true,
	}))

	for _, typ := range []reflect.Type{reflect.TypeOf(baseEvent{}), reflect.TypeOf(derivedEvent{}), reflect.TypeOf(derived2Event{})} {
		ps, err := r.resolveProducer(typ)
		require.NoError(t, err, "type %s should resolve via polymorphic fallback", typ)
		require.Equal(t, "base-events", ps.DefaultPath)
	}
}

// TestResolveProducerNonPolymorphicDoesNotFallBack ensures a base producer
// declared without Polymorphic does not leak to derived types.
func TestResolveProducerNonPolymorphicDoesNotFallBack(t *testing.T) {
	r := newTypeRegistry()
	require.NoError(t, r.addProducer(ProducerSettings{MessageType: reflect.TypeOf(baseEvent{}), DefaultPath: "base-events"}))

	_, err := r.resolveProducer(reflect.TypeOf(derivedEvent{}))
	require.Error(t, err)
}

// TestResolveProducerDerivedDeclarationWins covers orig §4.1 "explicit
// derived declarations must win": a derived type with its own producer
// settings resolves to those, not the polymorphic base.
func TestResolveProducerDerivedDeclarationWins(t *testing.T) {
	r := newTypeRegistry()
	require.NoError(t, r.addProducer(ProducerSettings{MessageType: reflect.TypeOf(baseEvent{}), DefaultPath: "base-events", Polymorphic: true}))
	require.NoError(t, r.addProducer(ProducerSettings{MessageType: reflect.TypeOf(derivedEvent{}), DefaultPath: "derived-events"}))

	ps, err := r.resolveProducer(reflect.TypeOf(derivedEvent{}))
	require.NoError(t, err)
	require.Equal(t, "derived-events", ps.DefaultPath)
}

// TestAddProducerDuplicateRejected covers invariant 2: declaring the same
// message type as a producer twice is a build-time Configuration error.
func TestAddProducerDuplicateRejected(t *testing.T) {
	r := newTypeRegistry()
	require.NoError(t, r.addProducer(ProducerSettings{MessageType: reflect.TypeOf(unrelatedEvent{})}))

	err := r.addProducer(ProducerSettings{MessageType: reflect.TypeOf(unrelatedEvent{})})
	require.Error(t, err)
	require.Contains(t, err.Error(), "declared more than once")
}

// TestResolveProducerMissReturnsProducerError covers orig §4.1 "A miss for
// a produce path raises a Producer failure".
func TestResolveProducerMissReturnsProducerError(t *testing.T) {
	r := newTypeRegistry()
	_, err := r.resolveProducer(reflect.TypeOf(unrelatedEvent{}))
	require.Error(t, err)
	require.ErrorContains(t, err, "no producer declared")
}

// TestResolveConsumersMissReturnsConsumerError covers orig §4.1 "a miss on
// receive raises a Consumer failure".
func TestResolveConsumersMissReturnsConsumerError(t *testing.T) {
	r := newTypeRegistry()
	_, err := r.resolveConsumers(reflect.TypeOf(unrelatedEvent{}))
	require.Error(t, err)
	require.ErrorContains(t, err, "no consumer declared")
}

// TestResolveProducerCachesResult ensures a resolved producer is returned
// from cache on the second call rather than re-walking the ancestor chain
// (orig §4.1 "Results are cached per T").
func TestResolveProducerCachesResult(t *testing.T) {
	r := newTypeRegistry()
	require.NoError(t, r.addProducer(ProducerSettings{MessageType: reflect.TypeOf(baseEvent{}), Polymorphic: true, DefaultPath: "base"}))

	first, err := r.resolveProducer(reflect.TypeOf(derivedEvent{}))
	require.NoError(t, err)

	r.mu.Lock()
	r.producers[reflect.TypeOf(baseEvent{})] = &ProducerSettings{MessageType: reflect.TypeOf(baseEvent{}), Polymorphic: true, DefaultPath: "changed"}
	r.mu.Unlock()

	second, err := r.resolveProducer(reflect.TypeOf(derivedEvent{}))
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, "base", second.DefaultPath)
}
