package factory_test

import (
	"context"
	"testing"

	"github.com/chris-alexander-pop/busrt/pkg/bus"
	"github.com/chris-alexander-pop/busrt/pkg/messaging"
	"github.com/chris-alexander-pop/busrt/pkg/messaging/adapters/memory"
	"github.com/chris-alexander-pop/busrt/pkg/messaging/factory"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToMemoryInstrumented(t *testing.T) {
	transport, err := factory.New(context.Background(), factory.Config{Instrumented: true})
	require.NoError(t, err)
	require.IsType(t, messaging.NewInstrumentedTransport(memory.New(memory.Config{})), transport)
	_, ok := transport.(bus.Consumable)
	require.True(t, ok, "instrumented wrapper over a Consumable adapter must stay Consumable")
}

func TestNewWrapsResilientBeforeInstrumented(t *testing.T) {
	cfg := factory.Config{
		Instrumented: true,
		Resilience: messaging.ResilientTransportConfig{
			RetryEnabled:     true,
			RetryMaxAttempts: 2,
		},
	}
	transport, err := factory.New(context.Background(), cfg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, transport.Start(ctx))
	require.NoError(t, transport.ProvisionTopology(ctx, nil))
	require.NoError(t, transport.ProduceToPath(ctx, []byte("payload"), bus.Headers{}, "orders", nil))
	require.NoError(t, transport.Dispose(ctx))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := factory.New(context.Background(), factory.Config{Driver: "carrier-pigeon"})
	require.Error(t, err)
}
