package messaging

import (
	"context"
	"time"

	"github.com/chris-alexander-pop/busrt/pkg/bus"
	"github.com/chris-alexander-pop/busrt/pkg/resilience"
)

// ResilientTransportConfig configures the resilient transport wrapper
// (kept field-for-field from the teacher's ResilientBrokerConfig).
type ResilientTransportConfig struct {
	CircuitBreakerEnabled   bool          `env:"MSG_CB_ENABLED" env-default:"true"`
	CircuitBreakerThreshold int64         `env:"MSG_CB_THRESHOLD" env-default:"5"`
	CircuitBreakerTimeout   time.Duration `env:"MSG_CB_TIMEOUT" env-default:"30s"`

	RetryEnabled     bool          `env:"MSG_RETRY_ENABLED" env-default:"true"`
	RetryMaxAttempts int           `env:"MSG_RETRY_MAX" env-default:"3"`
	RetryBackoff     time.Duration `env:"MSG_RETRY_BACKOFF" env-default:"100ms"`
}

// ResilientTransport wraps a bus.Transport's produce path with a circuit
// breaker and retry, adapted from the teacher's ResilientBroker/
// resilientProducer pair (which wrapped Producer.Publish) onto the spec's
// single ProduceToPath entry point.
type ResilientTransport struct {
	next     bus.Transport
	cb       *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
}

// NewResilientTransport wraps next with resilience features. Like
// NewInstrumentedTransport, the returned value only implements
// bus.Consumable when next does.
func NewResilientTransport(next bus.Transport, cfg ResilientTransportConfig) bus.Transport {
	rt := &ResilientTransport{next: next}

	if cfg.CircuitBreakerEnabled {
		rt.cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "messaging",
			FailureThreshold: cfg.CircuitBreakerThreshold,
			SuccessThreshold: 2,
			Timeout:          cfg.CircuitBreakerTimeout,
		})
	}
	if cfg.RetryEnabled {
		rt.retryCfg = resilience.RetryConfig{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryBackoff,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
		}
	}

	if _, ok := next.(bus.Consumable); ok {
		return &resilientConsumable{rt}
	}
	return rt
}

func (t *ResilientTransport) Start(ctx context.Context) error { return t.next.Start(ctx) }
func (t *ResilientTransport) Stop(ctx context.Context) error  { return t.next.Stop(ctx) }
func (t *ResilientTransport) ProvisionTopology(ctx context.Context, paths []bus.PathSpec) error {
	return t.next.ProvisionTopology(ctx, paths)
}
func (t *ResilientTransport) Dispose(ctx context.Context) error { return t.next.Dispose(ctx) }

// ProduceToPath executes the underlying produce through the circuit
// breaker and retry policy, same composition order as the teacher's
// resilientProducer.Publish.
func (t *ResilientTransport) ProduceToPath(ctx context.Context, payload []byte, headers bus.Headers, path string, routingAttrs map[string]any) error {
	return t.execute(ctx, func(ctx context.Context) error {
		return t.next.ProduceToPath(ctx, payload, headers, path, routingAttrs)
	})
}

func (t *ResilientTransport) execute(ctx context.Context, fn resilience.Executor) error {
	operation := fn
	if t.cb != nil {
		cbFn := operation
		operation = func(ctx context.Context) error { return t.cb.Execute(ctx, cbFn) }
	}
	if t.retryCfg.MaxAttempts > 0 {
		return resilience.Retry(ctx, t.retryCfg, operation)
	}
	return operation(ctx)
}

// resilientConsumable adds bus.Consumable to ResilientTransport, only ever
// constructed when the wrapped transport supports it.
type resilientConsumable struct {
	*ResilientTransport
}

func (t *resilientConsumable) RegisterConsumer(ctx context.Context, path, group string, deliver bus.ConsumerDeliverFunc) error {
	return t.next.(bus.Consumable).RegisterConsumer(ctx, path, group, deliver)
}

var _ bus.Transport = (*ResilientTransport)(nil)
var _ bus.Consumable = (*resilientConsumable)(nil)
