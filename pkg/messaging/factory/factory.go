// Package factory builds a bus.Transport from a driver name and wraps it
// with the decorator layer pkg/messaging defines, so every concrete adapter
// passes through the same resilience and observability layer regardless of
// which broker backs it (orig §6 "every Transport the bus talks to").
//
// It is a separate package from pkg/messaging itself because each adapter
// under pkg/messaging/adapters imports pkg/messaging for its shared
// Attachments/error helpers; pkg/messaging importing the adapters back
// would be a cycle.
package factory

import (
	"context"
	"fmt"

	"github.com/chris-alexander-pop/busrt/pkg/bus"
	"github.com/chris-alexander-pop/busrt/pkg/messaging"
	"github.com/chris-alexander-pop/busrt/pkg/messaging/adapters/kafka"
	"github.com/chris-alexander-pop/busrt/pkg/messaging/adapters/memory"
	"github.com/chris-alexander-pop/busrt/pkg/messaging/adapters/pubsub"
	"github.com/chris-alexander-pop/busrt/pkg/messaging/adapters/sqs"
)

// Config selects one adapter by Driver and configures the decorator layer
// every adapter is wrapped with before being handed to bus.Builder.Build.
// Supported drivers: "memory" (default), "kafka", "sqs", "pubsub".
type Config struct {
	Driver string `env:"MESSAGING_DRIVER" env-default:"memory"`

	Kafka  kafka.Config
	SQS    sqs.Config
	PubSub pubsub.Config
	Memory memory.Config

	// Instrumented wraps the adapter with messaging.InstrumentedTransport.
	Instrumented bool `env:"MESSAGING_INSTRUMENTED" env-default:"true"`
	Resilience   messaging.ResilientTransportConfig
}

// New constructs the adapter named by cfg.Driver, then layers
// ResilientTransport (when either of its sub-features is enabled) and
// InstrumentedTransport (when cfg.Instrumented) over it, in that order —
// matching ResilientTransport.execute's own composition of retry around
// the circuit breaker, so a span recorded by InstrumentedTransport covers every
// attempt a retry makes, not just the last one.
func New(ctx context.Context, cfg Config) (bus.Transport, error) {
	var transport bus.Transport
	switch cfg.Driver {
	case "", "memory":
		transport = memory.New(cfg.Memory)
	case "kafka":
		t, err := kafka.New(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		transport = t
	case "sqs":
		t, err := sqs.New(ctx, cfg.SQS)
		if err != nil {
			return nil, err
		}
		transport = t
	case "pubsub":
		t, err := pubsub.New(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		transport = t
	default:
		return nil, fmt.Errorf("messaging/factory: unknown driver %q", cfg.Driver)
	}

	if cfg.Resilience.CircuitBreakerEnabled || cfg.Resilience.RetryEnabled {
		transport = messaging.NewResilientTransport(transport, cfg.Resilience)
	}
	if cfg.Instrumented {
		transport = messaging.NewInstrumentedTransport(transport)
	}
	return transport, nil
}
