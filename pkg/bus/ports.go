package bus

import (
	"context"
	"reflect"
)

// Transport is the port the core uses to talk to a concrete broker/queue/
// stream client. Concrete transport clients, their configuration DSLs and
// credential handling are out of scope for this package — see
// pkg/messaging/adapters for implementations (Kafka, SQS, GCP Pub/Sub, a
// generic streaming.Client bridge, and an in-memory transport).
type Transport interface {
	// Start connects/subscribes as required by the adapter.
	Start(ctx context.Context) error

	// Stop stops consuming but keeps the transport usable for produce.
	Stop(ctx context.Context) error

	// ProvisionTopology asks the adapter to reconcile required
	// paths/groups (create topics/queues/subscriptions) before Start.
	ProvisionTopology(ctx context.Context, paths []PathSpec) error

	// ProduceToPath sends bytes+headers to path. routingAttrs are the
	// producer's transport-specific attachments (orig §3), passed through
	// unmodified.
	ProduceToPath(ctx context.Context, payload []byte, headers Headers, path string, routingAttrs map[string]any) error

	// Dispose releases all resources. Dispose implies Stop.
	Dispose(ctx context.Context) error
}

// PathSpec describes a path the transport should provision before Start.
type PathSpec struct {
	Path          string
	ConsumerGroup string // empty for a produce-only path
}

// Consumable is implemented by transports that pull/push inbound messages
// into the consumer pipeline. It is separate from Transport because not
// every adapter supports consumption (e.g. a produce-only stream bridge) —
// orig §6 "Adapter→core: invoke consumer pipeline with (envelope, ack) → outcome".
type Consumable interface {
	// RegisterConsumer arranges for every message arriving on path/group to
	// be handed to deliver. The transport owns the delivery loop (whether
	// that is a push-based subscription or the reference pull loop in
	// pkg/bus/pull); deliver must be safe to call concurrently.
	RegisterConsumer(ctx context.Context, path, group string, deliver ConsumerDeliverFunc) error
}

// ConsumerDeliverFunc is how a transport hands an inbound envelope to the
// consumer pipeline. It takes no ack callback: the transport acknowledges or
// nacks the message itself based on the returned Outcome and error (orig
// §4.6 step 1, "the transport... decides retry/ack policy").
type ConsumerDeliverFunc func(ctx context.Context, env *Envelope) (Outcome, error)

// Serializer is the port between declared Go types and opaque wire bytes
// (orig §4.2). The type is passed explicitly so no value-tag dispatch is
// needed.
type Serializer interface {
	Serialize(t reflect.Type, value any) ([]byte, error)
	Deserialize(t reflect.Type, data []byte) (any, error)
}

// DependencyResolver resolves instances by type, e.g. for interceptor
// discovery (orig §6). Resolve may return (nil, nil) for "not found" —
// that is not itself an error.
type DependencyResolver interface {
	Resolve(t reflect.Type) (any, error)
	// ResolveAll resolves every registered instance assignable to t — used
	// for "collection of T" interceptor discovery.
	ResolveAll(t reflect.Type) ([]any, error)
}

// MessageTypeResolver maps between a Go type and the wire-level type name
// used for cross-transport type identification headers (orig §6).
type MessageTypeResolver interface {
	ToName(t reflect.Type) string
	ToType(name string) (reflect.Type, bool)
}
