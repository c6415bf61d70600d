package bus

import (
	"context"
	"fmt"

	"github.com/chris-alexander-pop/busrt/pkg/logger"
)

// Consumer is implemented by user code that handles a fire-and-forget
// message with no response (orig §3 "Consumer").
type Consumer interface {
	Consume(ctx context.Context, message any) error
}

// Handler is implemented by user code that handles a request message and
// produces a response (orig §3 "Handler").
type Handler interface {
	Handle(ctx context.Context, message any) (any, error)
}

// ConsumerFunc adapts a plain function to Consumer.
type ConsumerFunc func(ctx context.Context, message any) error

func (f ConsumerFunc) Consume(ctx context.Context, message any) error { return f(ctx, message) }

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, message any) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, message any) (any, error) { return f(ctx, message) }

// Outcome is returned by the consumer pipeline to the Transport after an
// inbound envelope has been dispatched (orig §4.6 step 6). Transports use it
// to decide acknowledgement/retry/dead-letter behavior.
type Outcome struct {
	// Consumed is true when the message was handled to completion, whether
	// or not the user consumer/handler returned an error. It is false only
	// when the pipeline could not even resolve settings/deserialize — a
	// poison-message condition the transport should not retry indefinitely.
	Consumed bool

	// Response holds the handler's return value, serialized, when the
	// inbound message was a request. Nil for plain consume.
	Response []byte

	// Err is the terminal error, if any: either a dispatch failure
	// (deserialization, no consumer declared) or the user code's own error.
	Err error
}

// consumerPipeline resolves, deserializes, and dispatches one inbound
// envelope through the consumer/handler interceptor chain (orig §4.6).
type consumerPipeline struct {
	registry   *typeRegistry
	serializer Serializer
	resolver   DependencyResolver
	typeNames  MessageTypeResolver
	settings   *BusSettings
}

func newConsumerPipeline(settings *BusSettings, registry *typeRegistry) *consumerPipeline {
	return &consumerPipeline{
		registry:   registry,
		serializer: settings.Serializer,
		resolver:   settings.DependencyResolver,
		typeNames:  settings.MessageTypeResolver,
		settings:   settings,
	}
}

// dispatch runs the full orig §4.6 sequence for one ConsumerSettings entry:
// deserialize, run the interceptor chain, invoke the user consumer/handler,
// and for requests, serialize the response.
func (p *consumerPipeline) dispatch(ctx context.Context, env *Envelope, cs *ConsumerSettings) Outcome {
	value, err := p.serializer.Deserialize(cs.MessageType, env.Payload)
	if err != nil {
		return Outcome{Consumed: false, Err: ErrSerialization("failed to deserialize inbound message", err)}
	}

	globalHooks := p.settings.GlobalHooks
	if globalHooks.OnMessageConsumed != nil {
		defer func() { globalHooks.OnMessageConsumed(ctx, cs.MessageType, cs.Path, err) }()
	}
	if cs.Events.OnMessageConsumed != nil {
		defer func() { cs.Events.OnMessageConsumed(ctx, cs.MessageType, cs.Path, err) }()
	}

	ctx = withMessage(ctx, value)

	terminal := func(ctx context.Context) (any, error) {
		return p.invoke(ctx, value, cs)
	}

	// ConsumerInterceptor wraps every inbound dispatch; HandlerInterceptor
	// wraps only the subset that produce a response, and sits innermost so
	// it sees the chain closest to the actual Handle call (orig §4.3
	// "Ordering" mirrors the produce-side global-then-specific rule).
	chain := terminal
	if cs.IsHandler {
		chain = composeChain(toAnyInterceptors(p.settings.HandlerInterceptors), chain)
	}
	chain = composeChain(toAnyInterceptors(p.settings.ConsumerInterceptors), chain)

	result, err := chain(ctx)
	if err != nil {
		return Outcome{Consumed: true, Err: ErrHandler(fmt.Sprintf("consumer for %s failed", cs.MessageType), err)}
	}
	if !cs.IsHandler {
		return Outcome{Consumed: true}
	}

	payload, serErr := p.serializer.Serialize(cs.ResponseType, result)
	if serErr != nil {
		return Outcome{Consumed: true, Err: ErrSerialization("failed to serialize handler response", serErr)}
	}
	return Outcome{Consumed: true, Response: payload}
}

// resolverCtxKey stashes a per-message DependencyResolver scope on the
// context so a Consumer/Handler factory can pull its dependencies from
// ResolverFromContext instead of closing over the bus-wide resolver
// (orig §4.6 "per-message dependency scope").
type resolverCtxKey struct{}

// ResolverFromContext returns the DependencyResolver active for the
// in-flight message, or nil if none was configured.
func ResolverFromContext(ctx context.Context) DependencyResolver {
	r, _ := ctx.Value(resolverCtxKey{}).(DependencyResolver)
	return r
}

func (p *consumerPipeline) invoke(ctx context.Context, value any, cs *ConsumerSettings) (any, error) {
	resolver := p.resolver
	if p.settings.PerMessageScope && resolver != nil {
		if scoped, ok := resolver.(interface{ Scope() DependencyResolver }); ok {
			resolver = scoped.Scope()
		}
	}
	if resolver != nil {
		ctx = context.WithValue(ctx, resolverCtxKey{}, resolver)
	}

	if cs.IsHandler {
		h := cs.HandlerFactory()
		return h.Handle(ctx, value)
	}
	c := cs.ConsumerFactory()
	return nil, c.Consume(ctx, value)
}

// Deliver implements the shape Transport.RegisterConsumer expects
// (ConsumerDeliverFunc): resolve the declared type by name, find the
// matching ConsumerSettings for (type, path), and dispatch. When no entry
// for the type matches path, the first declared entry for the type is used.
func (p *consumerPipeline) Deliver(path string) ConsumerDeliverFunc {
	return func(ctx context.Context, env *Envelope) (Outcome, error) {
		typeName := env.Headers[HeaderMessageType]
		t, ok := p.typeNames.ToType(typeName)
		if !ok {
			return Outcome{Consumed: false}, ErrConsumer(fmt.Sprintf("unknown message type header %q", typeName), nil)
		}

		all, err := p.registry.resolveConsumers(t)
		if err != nil {
			return Outcome{Consumed: false}, err
		}

		var cs *ConsumerSettings
		for _, candidate := range all {
			if candidate.Path == path {
				cs = candidate
				break
			}
		}
		if cs == nil {
			cs = all[0]
		}

		outcome := p.dispatch(ctx, env, cs)
		if outcome.Err != nil {
			logger.L().ErrorContext(ctx, "consumer dispatch failed",
				"message_type", t.String(), "path", path, "error", outcome.Err)
		}
		return outcome, outcome.Err
	}
}
