package tests

import (
	"context"
	"reflect"
	"testing"

	"github.com/chris-alexander-pop/busrt/pkg/bus"
	"github.com/chris-alexander-pop/busrt/pkg/bus/codec"
	"github.com/chris-alexander-pop/busrt/pkg/messaging/adapters/memory"
	"github.com/stretchr/testify/suite"
)

// RoundTripSuite covers the codec round-trip law and the bus lifecycle's
// idempotence laws (orig §8 "Testable Properties").
type RoundTripSuite struct {
	suite.Suite
}

func (s *RoundTripSuite) TestJSONSerializeDeserializeRoundTrips() {
	c := codec.NewJSON()
	original := OrderPlaced{OrderID: "ord-42"}

	data, err := c.Serialize(reflect.TypeOf(original), original)
	s.Require().NoError(err)

	decoded, err := c.Deserialize(reflect.TypeOf(original), data)
	s.Require().NoError(err)
	s.Equal(original, decoded)
}

func (s *RoundTripSuite) newTestBus() *bus.Bus {
	resolver := bus.NewNameResolver().Register("order.placed", reflect.TypeOf(OrderPlaced{}))
	b, err := bus.NewBuilder("roundtrip").
		WithSerializer(codec.NewJSON()).
		WithMessageTypeResolver(resolver).
		Produce(reflect.TypeOf(OrderPlaced{}), bus.ProducerOptions{DefaultPath: "orders"}).
		Build(memory.New(memory.Config{}))
	s.Require().NoError(err)
	return b
}

// TestStartIsIdempotent covers "Start;Start ≡ Start": a second Start on an
// already-started bus is a no-op, not a double-subscribe or an error.
func (s *RoundTripSuite) TestStartIsIdempotent() {
	ctx := context.Background()
	b := s.newTestBus()
	defer b.Dispose(ctx)

	s.Require().NoError(b.Start(ctx))
	s.True(b.IsStarted())
	s.Require().NoError(b.Start(ctx))
	s.True(b.IsStarted())
}

// TestStopIsIdempotent covers "Stop;Stop ≡ Stop".
func (s *RoundTripSuite) TestStopIsIdempotent() {
	ctx := context.Background()
	b := s.newTestBus()
	defer b.Dispose(ctx)

	s.Require().NoError(b.Start(ctx))
	s.Require().NoError(b.Stop(ctx))
	s.False(b.IsStarted())
	s.Require().NoError(b.Stop(ctx))
	s.False(b.IsStarted())
}

// TestDisposeImpliesStopAndIsIdempotent covers "Dispose implies Stop" and
// dispose-is-idempotent: calling Dispose twice never errors, and a disposed
// bus rejects further Publish calls.
func (s *RoundTripSuite) TestDisposeImpliesStopAndIsIdempotent() {
	ctx := context.Background()
	b := s.newTestBus()

	s.Require().NoError(b.Start(ctx))
	s.Require().NoError(b.Dispose(ctx))
	s.False(b.IsStarted())
	s.Require().NoError(b.Dispose(ctx))

	err := b.Publish(ctx, OrderPlaced{OrderID: "late"})
	s.Require().Error(err)
}

// TestPublishBeforeStartFails ensures Publish/Send require a started bus
// (orig §4.9 "operations before Start fail fast").
func (s *RoundTripSuite) TestPublishBeforeStartFails() {
	b := s.newTestBus()
	err := b.Publish(context.Background(), OrderPlaced{OrderID: "too-early"})
	s.Require().Error(err)
}

func TestRoundTripSuite(t *testing.T) {
	suite.Run(t, new(RoundTripSuite))
}
