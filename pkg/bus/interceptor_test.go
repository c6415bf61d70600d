package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestComposeChainShortCircuitSkipsTerminal covers orig §4.3: an
// interceptor that does not invoke next short-circuits the pipeline.
func TestComposeChainShortCircuitSkipsTerminal(t *testing.T) {
	terminalCalled := false
	terminal := func(ctx context.Context) (any, error) {
		terminalCalled = true
		return "terminal", nil
	}

	shortCircuit := InterceptorFunc(func(ctx context.Context, message any, next Next) (any, error) {
		return "short-circuited", nil
	})

	chain := composeChain([]anyInterceptor{shortCircuit}, terminal)
	result, err := chain(withMessage(context.Background(), "msg"))
	require.NoError(t, err)
	require.Equal(t, "short-circuited", result)
	require.False(t, terminalCalled)
}

// TestComposeChainOrderingGlobalFirst covers orig §4.3's ordering
// guarantee: interceptors run in slice order, outermost first.
func TestComposeChainOrderingGlobalFirst(t *testing.T) {
	var order []string
	record := func(name string) InterceptorFunc {
		return func(ctx context.Context, message any, next Next) (any, error) {
			order = append(order, name)
			return next(ctx)
		}
	}
	terminal := func(ctx context.Context) (any, error) {
		order = append(order, "terminal")
		return nil, nil
	}

	chain := composeChain([]anyInterceptor{record("global"), record("per-type")}, terminal)
	_, err := chain(withMessage(context.Background(), "msg"))
	require.NoError(t, err)
	require.Equal(t, []string{"global", "per-type", "terminal"}, order)
}

// TestComposeChainInterceptorErrorAbortsChain covers orig §4.3:
// "Exceptions thrown inside an interceptor abort the chain and surface as
// the operation's failure."
func TestComposeChainInterceptorErrorAbortsChain(t *testing.T) {
	boom := errors.New("boom")
	failing := InterceptorFunc(func(ctx context.Context, message any, next Next) (any, error) {
		return nil, boom
	})
	terminalCalled := false
	terminal := func(ctx context.Context) (any, error) {
		terminalCalled = true
		return nil, nil
	}

	chain := composeChain([]anyInterceptor{failing}, terminal)
	_, err := chain(withMessage(context.Background(), "msg"))
	require.ErrorIs(t, err, boom)
	require.False(t, terminalCalled)
}

// TestComposeChainPropagatesMessageToEachInterceptor ensures every
// interceptor sees the original produced/consumed value, not just the
// declared type.
func TestComposeChainPropagatesMessageToEachInterceptor(t *testing.T) {
	var seen any
	capture := InterceptorFunc(func(ctx context.Context, message any, next Next) (any, error) {
		seen = message
		return next(ctx)
	})
	terminal := func(ctx context.Context) (any, error) { return nil, nil }

	chain := composeChain([]anyInterceptor{capture}, terminal)
	_, err := chain(withMessage(context.Background(), testRequest{ID: "x"}))
	require.NoError(t, err)
	require.Equal(t, testRequest{ID: "x"}, seen)
}
