package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chris-alexander-pop/busrt/pkg/concurrency"
	"github.com/chris-alexander-pop/busrt/pkg/errors"
	"github.com/chris-alexander-pop/busrt/pkg/logger"
)

// Bus is the master runtime object (orig §4.9 "Master bus"): a single
// transport bound to a BusSettings tree, exposing Produce/Publish/Send and
// owning the consumer/producer pipelines, the type registry, and the
// pending-request registry's lifecycle.
type Bus struct {
	name      string
	settings  *BusSettings
	transport Transport
	registry  *typeRegistry
	pending   *pendingRegistry
	producer  *producerPipeline
	consumer  *consumerPipeline

	mu       sync.Mutex
	started  bool
	disposed bool
	cancel   context.CancelFunc
	pools    []*concurrency.WorkerPool
}

func newBus(settings *BusSettings, transport Transport) (*Bus, error) {
	if settings.Serializer == nil {
		return nil, ErrConfiguration("BusSettings.Serializer must be set", nil)
	}
	if settings.MessageTypeResolver == nil {
		return nil, ErrConfiguration("BusSettings.MessageTypeResolver must be set", nil)
	}

	registry := newTypeRegistry()
	for _, ps := range settings.Producers {
		if err := registry.addProducer(ps); err != nil {
			return nil, err
		}
	}
	for _, cs := range settings.Consumers {
		registry.addConsumer(cs)
	}

	pending := newPendingRegistry(settings.PendingRequestCapacity, settings.Now)

	b := &Bus{
		name:      settings.Name,
		settings:  settings,
		transport: transport,
		registry:  registry,
		pending:   pending,
	}
	b.producer = newProducerPipeline(settings, registry, transport, pending)
	b.consumer = newConsumerPipeline(settings, registry)
	return b, nil
}

// Name returns the bus's declared name (orig §4.8 "buses are named").
func (b *Bus) Name() string { return b.name }

// Publish sends message fire-and-forget.
func (b *Bus) Publish(ctx context.Context, message any, opts ...ProduceOption) error {
	if err := b.requireStarted(); err != nil {
		return err
	}
	return b.producer.Publish(ctx, message, opts...)
}

// Send sends message as a request and awaits a reply.
func (b *Bus) Send(ctx context.Context, message any, opts ...ProduceOption) (any, error) {
	if err := b.requireStarted(); err != nil {
		return nil, err
	}
	return b.producer.Send(ctx, message, opts...)
}

// Produce is an alias for Publish, matching orig §4.5's "Produce" naming
// for callers that don't care whether a type happens to be request-shaped.
func (b *Bus) Produce(ctx context.Context, message any, opts ...ProduceOption) error {
	return b.Publish(ctx, message, opts...)
}

func (b *Bus) requireStarted() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return ErrDisposed(fmt.Sprintf("bus %q has been disposed", b.name))
	}
	if !b.started {
		return ErrConfiguration(fmt.Sprintf("bus %q has not been started", b.name), nil)
	}
	return nil
}

// Start connects the transport, provisions topology, wires the
// reply-path consumer for Send, and — when AutoStartConsumers is set —
// registers every declared consumer (orig §4.9 "Start"). Calling Start on
// an already-started bus is a no-op.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return ErrDisposed(fmt.Sprintf("bus %q has been disposed", b.name))
	}
	if b.started {
		b.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.mu.Unlock()

	if err := b.transport.ProvisionTopology(ctx, b.requiredPaths()); err != nil {
		cancel()
		return ErrTransport(fmt.Sprintf("bus %q failed to provision topology", b.name), err)
	}
	if err := b.transport.Start(ctx); err != nil {
		cancel()
		return ErrTransport(fmt.Sprintf("bus %q failed to start transport", b.name), err)
	}

	b.pending.startSweeper(runCtx, time.Second)

	rr := b.settings.RequestResponse.defaulted()
	if rr.ReplyToPath != "" {
		if err := b.registerReplyConsumer(ctx, rr); err != nil {
			cancel()
			return err
		}
	}

	if b.settings.AutoStartConsumers {
		if err := b.registerAllConsumers(ctx); err != nil {
			cancel()
			return err
		}
	}

	b.mu.Lock()
	b.started = true
	b.mu.Unlock()
	logger.L().InfoContext(ctx, "bus started", "bus", b.name)
	return nil
}

func (b *Bus) requiredPaths() []PathSpec {
	var paths []PathSpec
	for _, ps := range b.settings.Producers {
		if ps.DefaultPath != "" {
			paths = append(paths, PathSpec{Path: ps.DefaultPath})
		}
	}
	for _, cs := range b.settings.Consumers {
		paths = append(paths, PathSpec{Path: cs.Path, ConsumerGroup: cs.Group})
	}
	rr := b.settings.RequestResponse.defaulted()
	if rr.ReplyToPath != "" {
		paths = append(paths, PathSpec{Path: rr.ReplyToPath, ConsumerGroup: rr.ReplyGroup})
	}
	return paths
}

// registerReplyConsumer subscribes to the bus-level reply path and routes
// every inbound envelope to the pending-request registry by correlation id
// (orig §4.5 "Send... the reply arrives on ReplyToPath and is matched by
// correlation id").
func (b *Bus) registerReplyConsumer(ctx context.Context, rr RequestResponseSettings) error {
	consumable, ok := b.transport.(Consumable)
	if !ok {
		return ErrConfiguration(fmt.Sprintf("transport for bus %q does not support consumption but a ReplyToPath is configured", b.name), nil)
	}
	deliver := func(ctx context.Context, env *Envelope) (Outcome, error) {
		correlationID := env.Headers[rr.CorrelationHeaderName]
		if correlationID == "" {
			return Outcome{Consumed: false}, ErrConsumer("reply envelope missing correlation id header", nil)
		}
		if errMsg := env.Headers[HeaderError]; errMsg != "" {
			code := env.Headers[HeaderErrorCode]
			if code == "" {
				code = errors.CodeInternal
			}
			b.pending.Fail(correlationID, errors.New(code, errMsg, nil))
			return Outcome{Consumed: true}, nil
		}
		b.pending.Resolve(correlationID, env.Payload)
		return Outcome{Consumed: true}, nil
	}
	return consumable.RegisterConsumer(ctx, rr.ReplyToPath, rr.ReplyGroup, deliver)
}

// registerAllConsumers registers every declared consumer via
// concurrency.FanOut: each registration dials the transport independently
// (a Kafka consumer group join, an SQS pull-loop subscription, ...), so
// fanning them out bounds Start's latency to the slowest single
// registration rather than their sum (orig §4.9 "Start... registers every
// declared consumer").
func (b *Bus) registerAllConsumers(ctx context.Context) error {
	consumers := b.settings.Consumers
	errs := make([]error, len(consumers))
	concurrency.FanOut(ctx, len(consumers), func(i int) {
		errs[i] = b.registerConsumer(ctx, consumers[i])
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) registerConsumer(ctx context.Context, cs ConsumerSettings) error {
	consumable, ok := b.transport.(Consumable)
	if !ok {
		return ErrConfiguration(fmt.Sprintf("transport for bus %q does not support consumption", b.name), nil)
	}
	deliver := b.replyWrapped(b.consumer.Deliver(cs.Path))
	if cs.Instances > 1 {
		pool := concurrency.NewWorkerPool(cs.Instances, cs.Instances)
		pool.Start(ctx)
		b.mu.Lock()
		b.pools = append(b.pools, pool)
		b.mu.Unlock()
		deliver = boundedDeliver(pool, deliver)
	}
	return consumable.RegisterConsumer(ctx, cs.Path, cs.Group, deliver)
}

// replyWrapped wraps a ConsumerDeliverFunc so that, when the inbound
// envelope carries a reply-to path and correlation id (i.e. it was sent via
// Send rather than Publish), the handler's outcome — success payload or
// error — is produced back onto that path (orig §4.6 step 6, "for request
// messages, reply with the response or an error envelope").
func (b *Bus) replyWrapped(inner ConsumerDeliverFunc) ConsumerDeliverFunc {
	rr := b.settings.RequestResponse.defaulted()
	return func(ctx context.Context, env *Envelope) (Outcome, error) {
		outcome, err := inner(ctx, env)

		replyTo := env.Headers[HeaderReplyTo]
		correlationID := env.Headers[rr.CorrelationHeaderName]
		if replyTo == "" || correlationID == "" {
			return outcome, err
		}

		reply := NewEnvelope(outcome.Response)
		reply.Headers[rr.CorrelationHeaderName] = correlationID
		if outcome.Err != nil {
			reply.Headers[HeaderError] = outcome.Err.Error()
			reply.Headers[HeaderErrorCode] = errors.CodeOf(outcome.Err)
		}
		if sendErr := b.transport.ProduceToPath(ctx, reply.Payload, reply.Headers, replyTo, nil); sendErr != nil {
			logger.L().ErrorContext(ctx, "failed to produce reply envelope", "path", replyTo, "error", sendErr)
		}
		return outcome, err
	}
}

// Stop halts consumption but leaves the transport usable for produce, and
// cancels the pending-request sweeper (orig §4.9 "Stop").
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.started = false
	pools := b.pools
	b.pools = nil
	b.mu.Unlock()

	for _, pool := range pools {
		pool.Stop()
	}

	if err := b.transport.Stop(ctx); err != nil {
		return ErrTransport(fmt.Sprintf("bus %q failed to stop transport", b.name), err)
	}
	logger.L().InfoContext(ctx, "bus stopped", "bus", b.name)
	return nil
}

// Dispose stops the bus (if started), fails every outstanding pending
// request, and releases the transport. Dispose is idempotent and safe to
// call more than once (orig §4.9 "Dispose").
func (b *Bus) Dispose(ctx context.Context) error {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return nil
	}
	b.disposed = true
	wasStarted := b.started
	b.mu.Unlock()

	if wasStarted {
		_ = b.Stop(ctx)
	}
	b.pending.CancelAll()
	if err := b.transport.Dispose(ctx); err != nil {
		return ErrTransport(fmt.Sprintf("bus %q failed to dispose transport", b.name), err)
	}
	logger.L().InfoContext(ctx, "bus disposed", "bus", b.name)
	return nil
}

// IsStarted reports whether Start has completed without a following Stop.
func (b *Bus) IsStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}
