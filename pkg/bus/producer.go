package bus

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// producerPipeline implements the produce/publish/send sequence of
// orig §4.5: resolve settings for the runtime type, build the envelope,
// run the interceptor chain, hand off to the Transport, and for Send, await
// a reply through the pending-request registry.
type producerPipeline struct {
	registry   *typeRegistry
	serializer Serializer
	transport  Transport
	pending    *pendingRegistry
	settings   *BusSettings
}

func newProducerPipeline(settings *BusSettings, registry *typeRegistry, transport Transport, pending *pendingRegistry) *producerPipeline {
	return &producerPipeline{
		registry:   registry,
		serializer: settings.Serializer,
		transport:  transport,
		pending:    pending,
		settings:   settings,
	}
}

// Publish sends message fire-and-forget (orig §4.5 "Publish").
func (p *producerPipeline) Publish(ctx context.Context, message any, opts ...ProduceOption) error {
	cfg := resolveProduceOptions(opts)
	ps, env, err := p.prepare(ctx, message, cfg)
	if err != nil {
		return err
	}

	terminal := func(ctx context.Context) (any, error) {
		return nil, p.transport.ProduceToPath(ctx, env.Payload, env.Headers, cfg.path(ps), ps.Attachments)
	}
	chain := composeChain(toAnyInterceptors(p.settings.PublishInterceptors), terminal)
	chain = composeChain(toAnyInterceptors(p.settings.ProducerInterceptors), chain)

	ctx = withMessage(ctx, message)
	_, err = chain(ctx)
	p.fireProduced(ctx, ps, cfg.path(ps), err)
	return err
}

// Send sends message as a request and blocks until a reply arrives, ctx is
// cancelled, or the timeout elapses: the per-call override, else the
// producer's DefaultTimeout, else the bus-level RequestResponse.DefaultTimeout
// (orig §4.5 "Send").
func (p *producerPipeline) Send(ctx context.Context, message any, opts ...ProduceOption) (any, error) {
	cfg := resolveProduceOptions(opts)
	ps, env, err := p.prepare(ctx, message, cfg)
	if err != nil {
		return nil, err
	}

	rr := p.settings.RequestResponse.defaulted()
	timeout := ps.DefaultTimeout
	if cfg.timeout > 0 {
		timeout = cfg.timeout
	}
	if timeout <= 0 {
		timeout = rr.DefaultTimeout
	}

	correlationID := env.Headers[rr.CorrelationHeaderName]
	if correlationID == "" {
		correlationID = uuid.NewString()
		env.Headers[rr.CorrelationHeaderName] = correlationID
	}
	env.Headers[HeaderReplyTo] = rr.ReplyToPath

	var expiresAt time.Time
	if timeout > 0 {
		expiresAt = p.pending.now().Add(timeout)
		env.Headers[HeaderExpires] = expiresAt.Format(time.RFC3339Nano)
	}

	pending, err := p.pending.Register(ctx, correlationID, ps.MessageType, expiresAt)
	if err != nil {
		return nil, err
	}

	sendCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		sendCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	terminal := func(ctx context.Context) (any, error) {
		if err := p.transport.ProduceToPath(ctx, env.Payload, env.Headers, cfg.path(ps), ps.Attachments); err != nil {
			if p.pending.Fail(correlationID, err) {
				return nil, err
			}
			// A synchronous transport may already have delivered the reply
			// (or an error reply) before returning its own error; that
			// terminal state wins.
		}
		return p.pending.Await(sendCtx, pending)
	}
	chain := composeChain(toAnyInterceptors(p.settings.SendInterceptors), terminal)
	chain = composeChain(toAnyInterceptors(p.settings.ProducerInterceptors), chain)

	ctx = withMessage(ctx, message)
	result, err := chain(ctx)
	p.fireProduced(ctx, ps, cfg.path(ps), err)
	if err != nil {
		return nil, err
	}

	raw, _ := result.([]byte)
	if raw == nil {
		return result, nil
	}
	if ps.ResponseType == nil {
		return raw, nil
	}
	return p.serializer.Deserialize(ps.ResponseType, raw)
}

// prepare resolves producer settings for message's runtime type, builds the
// wire envelope, and applies header defaults common to Publish and Send
// (orig §4.5 steps 1-3).
func (p *producerPipeline) prepare(ctx context.Context, message any, cfg produceOptions) (*ProducerSettings, *Envelope, error) {
	t := reflect.TypeOf(message)
	if t == nil {
		return nil, nil, ErrProducer("cannot produce a nil message", nil)
	}

	ps, err := p.registry.resolveProducer(t)
	if err != nil {
		return nil, nil, err
	}
	if cfg.path(ps) == "" {
		return nil, nil, ErrConfiguration(fmt.Sprintf(
			"no path resolved for %s: supply a per-call WithPath or a producer DefaultPath", t), nil)
	}

	payload, err := p.serializer.Serialize(t, message)
	if err != nil {
		return nil, nil, ErrSerialization(fmt.Sprintf("failed to serialize %s", t), err)
	}

	env := NewEnvelope(payload)
	for k, v := range cfg.headers {
		env.Headers[k] = v
	}
	env.Headers[HeaderMessageType] = p.settings.MessageTypeResolver.ToName(t)
	if p.settings.HeaderModifier != nil {
		p.settings.HeaderModifier(env.Headers)
	}
	return ps, env, nil
}

func (p *producerPipeline) fireProduced(ctx context.Context, ps *ProducerSettings, path string, err error) {
	if err != nil {
		return
	}
	if p.settings.GlobalHooks.OnMessageProduced != nil {
		p.settings.GlobalHooks.OnMessageProduced(ctx, ps.MessageType, path)
	}
	if ps.Events.OnMessageProduced != nil {
		ps.Events.OnMessageProduced(ctx, ps.MessageType, path)
	}
}

// ProduceOption customizes a single Publish/Send call (orig §4.5 "per-call
// overrides").
type ProduceOption func(*produceOptions)

type produceOptions struct {
	path    string
	timeout time.Duration
	headers Headers
}

func resolveProduceOptions(opts []ProduceOption) produceOptions {
	cfg := produceOptions{headers: make(Headers)}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func (c produceOptions) path(ps *ProducerSettings) string {
	if c.path != "" {
		return c.path
	}
	return ps.DefaultPath
}

// WithPath overrides the producer's default path for one call.
func WithPath(path string) ProduceOption {
	return func(c *produceOptions) { c.path = path }
}

// WithTimeout overrides the producer's default request timeout for one
// Send call. Has no effect on Publish.
func WithTimeout(d time.Duration) ProduceOption {
	return func(c *produceOptions) { c.timeout = d }
}

// WithHeader sets an additional header on one call, applied before the
// bus's HeaderModifier.
func WithHeader(key, value string) ProduceOption {
	return func(c *produceOptions) { c.headers[key] = value }
}
