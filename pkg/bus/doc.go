/*
Package bus is a transport-agnostic message bus runtime.

It gives applications a single in-process API for publish/subscribe and
request/response messaging that federates over one or more concrete
transports (a log-oriented broker, a partitioned stream, a queue server, an
in-memory bus — see pkg/messaging/adapters). Applications declare, per
message type, a producer side (publish or request) and/or a consumer side
(consume or handle); the runtime resolves settings, runs interceptors,
serializes, correlates requests to replies, and dispatches across
transports.

# Architecture

  - Type registry (registry.go): resolves a runtime message type to its
    nearest declared producer/consumer settings, walking the ancestor chain
    once and caching the result.
  - Interceptor chain (interceptor.go): ordered middleware around produce
    and consume, composed on every produce/consume call (not cached).
  - Pending-request registry (pending.go): correlation-id → waiter, with a
    timeout sweep and cancellation integration.
  - Producer/consumer pipelines (producer.go, consumer.go): the actual
    resolve → intercept → (de)serialize → transport dance.
  - Master bus (bus.go): owns the above for a single transport.
  - Hybrid router (hybrid.go): multiplexes several master buses by message
    type behind the same API.
  - Builder (builder.go): fluent settings accumulation with build-time
    validation.

# Usage

	resolver := bus.NewNameResolver().
		Register("orders.placed", reflect.TypeOf(OrderPlaced{})).
		Register("orders.price", reflect.TypeOf(PriceOrder{}))
	b, err := bus.NewBuilder("orders").
		WithSerializer(codec.NewJSON()).
		WithMessageTypeResolver(resolver).
		Produce(reflect.TypeOf(OrderPlaced{}), bus.ProducerOptions{DefaultPath: "orders.placed"}).
		Handle(reflect.TypeOf(PriceOrder{}), reflect.TypeOf(PriceQuote{}), "orders.price", "pricing", 1, newPricer).
		Build(transport)
	if err != nil {
		return err
	}
	defer b.Dispose(context.Background())

	if err := b.Start(context.Background()); err != nil {
		return err
	}
	return b.Publish(context.Background(), OrderPlaced{ID: "o1"})
*/
package bus
