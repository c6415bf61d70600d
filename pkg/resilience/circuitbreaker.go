package resilience

import (
	"context"

	"github.com/chris-alexander-pop/busrt/pkg/servicemesh/circuitbreaker"
)

// CircuitBreaker adapts pkg/servicemesh/circuitbreaker's state machine to the
// Executor shape used by this package, so callers that already think in
// terms of resilience.Executor (retry, resilient transports) can wrap a
// circuit breaker without juggling the (interface{}, error) return shape.
type CircuitBreaker struct {
	inner *circuitbreaker.CircuitBreaker
}

// NewCircuitBreaker creates a CircuitBreaker from a CircuitBreakerConfig.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		inner: circuitbreaker.New(cfg.Name, circuitbreaker.Options{
			FailureThreshold: int(cfg.FailureThreshold),
			SuccessThreshold: int(cfg.SuccessThreshold),
			Timeout:          cfg.Timeout,
			OnStateChange: func(from, to circuitbreaker.State) {
				if cfg.OnStateChange != nil {
					cfg.OnStateChange(cfg.Name, State(from), State(to))
				}
			},
		}),
	}
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn Executor) error {
	return cb.inner.ExecuteE(ctx, func(ctx context.Context) error {
		return fn(ctx)
	})
}

// State returns the circuit breaker's current state.
func (cb *CircuitBreaker) State() State {
	return State(cb.inner.State())
}
