package bus

import (
	"context"
	"reflect"
	"time"
)

// EventHooks are fired around a produce/consume operation. Any hook may be
// nil. Hooks never influence control flow (use an Interceptor for that) —
// they are strictly observational.
type EventHooks struct {
	OnMessageProduced func(ctx context.Context, messageType reflect.Type, path string)
	OnMessageConsumed func(ctx context.Context, messageType reflect.Type, path string, err error)
}

// ProducerSettings configures how a declared message type is produced
// (orig §3 "Producer settings"). At most one ProducerSettings may exist per
// message type within a bus; duplicates are a build-time Configuration error.
type ProducerSettings struct {
	// MessageType is the declared type. It may be a base type — see Polymorphic.
	MessageType reflect.Type

	// ResponseType is set when MessageType is a request: Send deserializes
	// the reply payload into this type. Nil for publish-only types.
	ResponseType reflect.Type

	// Polymorphic, when true, lets derived types inherit this producer
	// (orig §4.1 "Rationale"). Ignored if MessageType is itself the most
	// specific declared type for a given runtime value.
	Polymorphic bool

	// DefaultPath is used when the caller does not supply one.
	DefaultPath string

	// DefaultTimeout is only meaningful for request types (orig §3).
	DefaultTimeout time.Duration

	// Events are per-producer event hooks, run after global hooks.
	Events EventHooks

	// Attachments holds transport-specific opaque values keyed by name
	// (e.g. "keyProvider", "partitionProvider"), passed to the Transport
	// port as the routingAttrs argument of ProduceToPath.
	Attachments map[string]any
}

// ConsumerSettings configures a declared consumer or handler (orig §3
// "Consumer/handler settings").
type ConsumerSettings struct {
	// MessageType is the request/consumed type.
	MessageType reflect.Type

	// ResponseType is nil for pub/sub consumers; set for handlers.
	ResponseType reflect.Type

	// Path is the topic/queue/subject to consume from.
	Path string

	// Group is the consumer group (load-balancing scope).
	Group string

	// Instances is the parallelism hint — how many concurrent workers
	// pull/handle from Path.
	Instances int

	// Events are per-consumer event hooks.
	Events EventHooks

	// Factory builds a user Consumer or Handler instance. Exactly one of
	// ConsumerFactory/HandlerFactory is set, matching IsHandler.
	ConsumerFactory func() Consumer
	HandlerFactory  func() Handler

	// IsHandler is true when this consumer also produces a response
	// (orig §3 "whether the handler is a request-responder").
	IsHandler bool
}

// RequestResponseSettings are bus-level defaults for the request/response
// engine (orig §3 "Request-response settings (bus-level)").
type RequestResponseSettings struct {
	ReplyToPath           string
	ReplyGroup            string
	DefaultTimeout        time.Duration
	CorrelationHeaderName string
	OriginatorHeaderName  string
}

// defaulted returns a copy with zero-value fields replaced by the spec's
// well-known header names.
func (r RequestResponseSettings) defaulted() RequestResponseSettings {
	if r.CorrelationHeaderName == "" {
		r.CorrelationHeaderName = HeaderCorrelationID
	}
	if r.OriginatorHeaderName == "" {
		r.OriginatorHeaderName = HeaderOriginator
	}
	return r
}

// BusSettings is the root settings tree (orig §3 "Bus settings tree").
type BusSettings struct {
	Name string

	Producers []ProducerSettings
	Consumers []ConsumerSettings

	RequestResponse RequestResponseSettings

	Serializer          Serializer
	DependencyResolver  DependencyResolver
	MessageTypeResolver MessageTypeResolver

	// PerMessageScope, when true, has the consumer pipeline create a child
	// dependency scope around each handler invocation.
	PerMessageScope bool

	// AutoStartConsumers starts all registered consumers when Start is
	// called; when false, Start only connects the transport.
	AutoStartConsumers bool

	// HeaderModifier runs once per produced message, after caller headers
	// are applied and before request headers are injected.
	HeaderModifier func(h Headers)

	// GlobalHooks: on produce the global hook runs before the per-producer
	// hook; on consume the per-consumer OnMessageConsumed runs first and the
	// global one after it.
	GlobalHooks EventHooks

	// GlobalInterceptors, in order, wrap every produce/consume regardless
	// of message type (orig §4.3 "global hooks first").
	ProducerInterceptors []ProducerInterceptor
	PublishInterceptors  []PublishInterceptor
	SendInterceptors     []SendInterceptor
	ConsumerInterceptors []ConsumerInterceptor
	HandlerInterceptors  []HandlerInterceptor

	// PendingRequestCapacity bounds the number of concurrently in-flight
	// requests (orig §2 "capacity bounds"); 0 means unbounded.
	PendingRequestCapacity int

	// Now overrides the clock used by the pending-request registry.
	// Defaults to time.Now when unset — tests inject a virtual clock here.
	Now func() time.Time
}

// MergeFrom copies Producers, Consumers, Serializer, resolvers and
// request-response defaults from parent into settings not already set on
// the receiver — "child wins" (orig §4.10 "MergeFrom(parent)").
func (s *BusSettings) MergeFrom(parent *BusSettings) {
	if parent == nil {
		return
	}
	if len(s.Producers) == 0 {
		s.Producers = append(s.Producers, parent.Producers...)
	}
	if len(s.Consumers) == 0 {
		s.Consumers = append(s.Consumers, parent.Consumers...)
	}
	if s.Serializer == nil {
		s.Serializer = parent.Serializer
	}
	if s.DependencyResolver == nil {
		s.DependencyResolver = parent.DependencyResolver
	}
	if s.MessageTypeResolver == nil {
		s.MessageTypeResolver = parent.MessageTypeResolver
	}
	zero := RequestResponseSettings{}
	if s.RequestResponse == zero {
		s.RequestResponse = parent.RequestResponse
	}
	if s.Now == nil {
		s.Now = parent.Now
	}
}
