package bus

import "context"

// Next is the downstream continuation an interceptor may call. For a
// produce path it performs the actual transport send (or the next
// interceptor); for a consume path it invokes the user consumer/handler (or
// the next interceptor). Not calling Next short-circuits the pipeline
// (orig §4.3).
type Next func(ctx context.Context) (any, error)

// ProducerInterceptor is generic over message type — it wraps every
// produce regardless of direction (publish vs send). Producer interceptors
// are outermost (orig §4.3 "Ordering").
type ProducerInterceptor interface {
	OnHandle(ctx context.Context, message any, next Next) (any, error)
}

// PublishInterceptor specializes the chain for fire-and-forget publishes.
type PublishInterceptor interface {
	OnHandle(ctx context.Context, message any, next Next) (any, error)
}

// SendInterceptor specializes the chain for request/response sends.
type SendInterceptor interface {
	OnHandle(ctx context.Context, message any, next Next) (any, error)
}

// ConsumerInterceptor wraps every inbound dispatch.
type ConsumerInterceptor interface {
	OnHandle(ctx context.Context, message any, next Next) (any, error)
}

// HandlerInterceptor wraps the subset of inbound dispatches that produce a
// response (requests handled by a Handler).
type HandlerInterceptor interface {
	OnHandle(ctx context.Context, message any, next Next) (any, error)
}

// InterceptorFunc adapts a plain function to any of the interceptor
// interfaces above (they share an identical method set by design).
type InterceptorFunc func(ctx context.Context, message any, next Next) (any, error)

// OnHandle implements ProducerInterceptor/PublishInterceptor/SendInterceptor/
// ConsumerInterceptor/HandlerInterceptor.
func (f InterceptorFunc) OnHandle(ctx context.Context, message any, next Next) (any, error) {
	return f(ctx, message, next)
}

// anyInterceptor is the common shape every concrete interceptor interface
// satisfies; chain composition only needs OnHandle, not which specific
// interface a value was declared as.
type anyInterceptor interface {
	OnHandle(ctx context.Context, message any, next Next) (any, error)
}

// composeChain builds a single Next that runs interceptors in order and then
// terminal. Publish, Send and the consumer dispatch call it for every
// message; the composed chain is not cached.
//
// Ordering is global-first: the slice passed in must already be
// [global... , per-type...] — composeChain does not reorder.
func composeChain(interceptors []anyInterceptor, terminal Next) Next {
	next := terminal
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic := interceptors[i]
		downstream := next
		next = func(ctx context.Context) (any, error) {
			return ic.OnHandle(ctx, ctx.Value(messageCtxKey{}), downstream)
		}
	}
	return next
}

// messageCtxKey stashes the in-flight message on the context so
// composeChain's per-interceptor closures can hand each interceptor the
// original value without threading it through Next's signature.
type messageCtxKey struct{}

// withMessage attaches message to ctx for the duration of a chain call.
func withMessage(ctx context.Context, message any) context.Context {
	return context.WithValue(ctx, messageCtxKey{}, message)
}

func toAnyInterceptors[T anyInterceptor](items []T) []anyInterceptor {
	out := make([]anyInterceptor, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}
