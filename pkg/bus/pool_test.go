package bus

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/chris-alexander-pop/busrt/pkg/concurrency"
	"github.com/stretchr/testify/require"
)

// recordingConsumable is a noopTransport that also satisfies Consumable,
// recording whichever ConsumerDeliverFunc it was last asked to register.
type recordingConsumable struct {
	noopTransport
	lastDeliver ConsumerDeliverFunc
}

func (c *recordingConsumable) RegisterConsumer(ctx context.Context, path, group string, deliver ConsumerDeliverFunc) error {
	c.lastDeliver = deliver
	return nil
}

// TestBoundedDeliverCapsConcurrentDispatches covers orig §3/§4.6's instance
// count (parallelism hint): with instances=2, a third concurrent delivery
// must wait for one of the first two to finish rather than running
// unbounded.
func TestBoundedDeliverCapsConcurrentDispatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := concurrency.NewWorkerPool(2, 2)
	pool.Start(ctx)
	defer pool.Stop()

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	release := make(chan struct{})

	inner := func(ctx context.Context, env *Envelope) (Outcome, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		<-release

		mu.Lock()
		inFlight--
		mu.Unlock()
		return Outcome{Consumed: true}, nil
	}
	deliver := boundedDeliver(pool, inner)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = deliver(ctx, NewEnvelope(nil))
		}()
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return inFlight == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	atTwo := maxInFlight
	mu.Unlock()
	require.Equal(t, 2, atTwo, "at most instances=2 dispatches should run concurrently")

	close(release)
	wg.Wait()
}

// TestStartWithInstancesGreaterThanOneUsesPool covers the Builder/Bus
// wiring side: a Consume declaration with instances > 1 causes Start to
// spin up a WorkerPool for that consumer rather than silently dropping the
// hint (orig §3/§4.6 "instance count (parallelism hint)").
func TestStartWithInstancesGreaterThanOneUsesPool(t *testing.T) {
	transport := &recordingConsumable{}
	b, err := newTestBuilder("bus").
		AutoStartConsumersEnabled(true).
		Consume(reflect.TypeOf(testRequest{}), "p", "g", 3, func() Consumer {
			return ConsumerFunc(func(ctx context.Context, message any) error { return nil })
		}).
		Build(transport)
	require.NoError(t, err)

	require.NoError(t, b.Start(context.Background()))
	defer b.Dispose(context.Background())

	require.Len(t, b.pools, 1)
	require.NotNil(t, transport.lastDeliver)
}
