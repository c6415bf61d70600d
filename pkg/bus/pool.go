package bus

import (
	"context"

	"github.com/chris-alexander-pop/busrt/pkg/concurrency"
)

// boundedDeliver bounds concurrent dispatches of a single ConsumerSettings
// entry to instances concurrent in-flight calls, backing
// ConsumerSettings.Instances (orig §3/§4.6 "instance count (parallelism
// hint)") with a real pkg/concurrency.WorkerPool instead of silently
// ignoring the field. The transport may still invoke deliver from as many
// goroutines as it likes (one per partition, one per pull-loop worker); this
// only caps how many of those run at once, and queues the rest. The pool
// belongs to the caller, who must Stop it when the consumer is torn down.
func boundedDeliver(pool *concurrency.WorkerPool, inner ConsumerDeliverFunc) ConsumerDeliverFunc {
	return func(ctx context.Context, env *Envelope) (Outcome, error) {
		type result struct {
			outcome Outcome
			err     error
		}
		done := make(chan result, 1)
		pool.Submit(func(ctx context.Context) {
			outcome, err := inner(ctx, env)
			done <- result{outcome: outcome, err: err}
		})
		select {
		case r := <-done:
			return r.outcome, r.err
		case <-ctx.Done():
			return Outcome{Consumed: false}, ctx.Err()
		}
	}
}
