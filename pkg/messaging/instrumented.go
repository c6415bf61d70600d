package messaging

import (
	"context"

	"github.com/chris-alexander-pop/busrt/pkg/bus"
	"github.com/chris-alexander-pop/busrt/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedTransport wraps a bus.Transport with logging and tracing
// around every produce/lifecycle call (adapted from the teacher's
// InstrumentedBroker, which wrapped a topic-bound Broker/Producer pair —
// here the decoration targets the spec's path-parametric Transport port
// directly, since there is no longer a per-topic Producer to wrap).
type InstrumentedTransport struct {
	next   bus.Transport
	tracer trace.Tracer
}

// NewInstrumentedTransport wraps next with logging and tracing. When next
// also implements bus.Consumable, the returned value does too (as an
// *instrumentedConsumable), so a produce-only adapter wrapped here stays
// produce-only to bus.Bus's own Consumable type assertion.
func NewInstrumentedTransport(next bus.Transport) bus.Transport {
	base := &InstrumentedTransport{next: next, tracer: otel.Tracer("pkg/messaging")}
	if _, ok := next.(bus.Consumable); ok {
		return &instrumentedConsumable{base}
	}
	return base
}

func (t *InstrumentedTransport) Start(ctx context.Context) error {
	logger.L().InfoContext(ctx, "starting transport")
	return t.next.Start(ctx)
}

func (t *InstrumentedTransport) Stop(ctx context.Context) error {
	logger.L().InfoContext(ctx, "stopping transport")
	return t.next.Stop(ctx)
}

func (t *InstrumentedTransport) ProvisionTopology(ctx context.Context, paths []bus.PathSpec) error {
	return t.next.ProvisionTopology(ctx, paths)
}

func (t *InstrumentedTransport) ProduceToPath(ctx context.Context, payload []byte, headers bus.Headers, path string, routingAttrs map[string]any) error {
	ctx, span := t.tracer.Start(ctx, "messaging.ProduceToPath", trace.WithAttributes(
		attribute.String("messaging.path", path),
		attribute.Int("messaging.payload_size", len(payload)),
	))
	defer span.End()

	err := t.next.ProduceToPath(ctx, payload, headers, path, routingAttrs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "failed to produce message", "path", path, "error", err)
		return err
	}
	span.SetStatus(codes.Ok, "message produced")
	return nil
}

func (t *InstrumentedTransport) Dispose(ctx context.Context) error {
	logger.L().InfoContext(ctx, "disposing transport")
	return t.next.Dispose(ctx)
}

// instrumentedConsumable adds bus.Consumable to InstrumentedTransport, only
// ever constructed when the wrapped transport supports it (see
// NewInstrumentedTransport).
type instrumentedConsumable struct {
	*InstrumentedTransport
}

func (t *instrumentedConsumable) RegisterConsumer(ctx context.Context, path, group string, deliver bus.ConsumerDeliverFunc) error {
	consumable := t.next.(bus.Consumable)
	wrapped := func(ctx context.Context, env *bus.Envelope) (bus.Outcome, error) {
		ctx, span := t.tracer.Start(ctx, "messaging.Deliver", trace.WithAttributes(
			attribute.String("messaging.path", path),
			attribute.String("messaging.group", group),
		))
		defer span.End()

		outcome, err := deliver(ctx, env)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "delivered")
		}
		return outcome, err
	}
	return consumable.RegisterConsumer(ctx, path, group, wrapped)
}

var _ bus.Transport = (*InstrumentedTransport)(nil)
var _ bus.Consumable = (*instrumentedConsumable)(nil)
