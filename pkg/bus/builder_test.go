package bus

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

type noopTransport struct{}

func (noopTransport) Start(ctx context.Context) error { return nil }
func (noopTransport) Stop(ctx context.Context) error  { return nil }
func (noopTransport) ProvisionTopology(ctx context.Context, paths []PathSpec) error { return nil }
func (noopTransport) ProduceToPath(ctx context.Context, payload []byte, headers Headers, path string, routingAttrs map[string]any) error {
	return nil
}
func (noopTransport) Dispose(ctx context.Context) error { return nil }

type fakeSerializer struct{}

func (fakeSerializer) Serialize(t reflect.Type, value any) ([]byte, error) { return nil, nil }
func (fakeSerializer) Deserialize(t reflect.Type, data []byte) (any, error) { return nil, nil }

func newTestBuilder(name string) *Builder {
	return NewBuilder(name).
		WithSerializer(fakeSerializer{}).
		WithMessageTypeResolver(NewNameResolver())
}

// TestBuildRejectsDuplicateProducer covers invariant 2.
func TestBuildRejectsDuplicateProducer(t *testing.T) {
	b := newTestBuilder("bus").
		Produce(reflect.TypeOf(testRequest{}), ProducerOptions{DefaultPath: "a"}).
		Produce(reflect.TypeOf(testRequest{}), ProducerOptions{DefaultPath: "b"})

	_, err := b.Build(noopTransport{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "declared more than once")
}

// TestBuildRejectsHandlerWithoutResponseType covers orig §4.10 "handler
// without response type".
func TestBuildRejectsHandlerWithoutResponseType(t *testing.T) {
	b := newTestBuilder("bus").
		Handle(reflect.TypeOf(testRequest{}), nil, "path", "group", 1, func() Handler { return nil })

	_, err := b.Build(noopTransport{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "without a response type")
}

// TestBuildRejectsConsumerWithoutFactory covers orig §4.10 "provider
// factory set".
func TestBuildRejectsConsumerWithoutFactory(t *testing.T) {
	b := newTestBuilder("bus").Consume(reflect.TypeOf(testRequest{}), "path", "group", 1, nil)

	_, err := b.Build(noopTransport{})
	require.Error(t, err)
}

// TestBuildRejectsDuplicateChildBusName covers orig §4.10 "child-bus name
// uniqueness".
func TestBuildRejectsDuplicateChildBusName(t *testing.T) {
	root := newTestBuilder("root")
	root.AddChildBus("dup", newTestBuilder("ignored"))
	root.AddChildBus("dup", newTestBuilder("ignored-2"))

	_, err := root.Build(noopTransport{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "declared more than once")
}

// TestMergeFromChildWins covers orig §4.10 "MergeFrom(parent) copies...
// unless the child already set them (child wins)".
func TestMergeFromChildWins(t *testing.T) {
	parent := &BusSettings{
		Serializer: fakeSerializer{},
		RequestResponse: RequestResponseSettings{
			ReplyToPath: "parent-reply",
		},
	}
	child := &BusSettings{
		RequestResponse: RequestResponseSettings{ReplyToPath: "child-reply"},
	}

	child.MergeFrom(parent)
	require.Equal(t, "child-reply", child.RequestResponse.ReplyToPath)
	require.NotNil(t, child.Serializer)
}

// ancestorA and ancestorB are unrelated bases; tieType embeds both, so a
// message of type tieType matches two equally-specific polymorphic
// producer candidates.
type ancestorA struct{ Value string }
type ancestorB struct{ Value string }
type tieType struct {
	ancestorA
	ancestorB
}

// TestBuildRejectsAmbiguousPolymorphicProducerTie covers orig §4.1 / §8:
// two unrelated polymorphic producer declarations that both ancestor a
// common declared message type are a build-time configuration error.
func TestBuildRejectsAmbiguousPolymorphicProducerTie(t *testing.T) {
	b := newTestBuilder("bus").
		Produce(reflect.TypeOf(ancestorA{}), ProducerOptions{Polymorphic: true, DefaultPath: "a"}).
		Produce(reflect.TypeOf(ancestorB{}), ProducerOptions{Polymorphic: true, DefaultPath: "b"}).
		Consume(reflect.TypeOf(tieType{}), "path", "group", 1, func() Consumer {
			return ConsumerFunc(func(ctx context.Context, message any) error { return nil })
		})

	_, err := b.Build(noopTransport{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "equally-specific")
}

// TestBuildSucceedsWithValidSettings is a smoke test that a fully valid
// configuration builds without error.
func TestBuildSucceedsWithValidSettings(t *testing.T) {
	b := newTestBuilder("bus").
		Produce(reflect.TypeOf(testRequest{}), ProducerOptions{DefaultPath: "requests"}).
		Consume(reflect.TypeOf(testRequest{}), "requests", "group", 1, func() Consumer {
			return ConsumerFunc(func(ctx context.Context, message any) error { return nil })
		})

	bus, err := b.Build(noopTransport{})
	require.NoError(t, err)
	require.NotNil(t, bus)
}
