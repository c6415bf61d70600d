package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/chris-alexander-pop/busrt/pkg/concurrency"
	"github.com/chris-alexander-pop/busrt/pkg/logger"
)

// pendingRequest is a single in-flight request (orig §3 "Pending request").
type pendingRequest struct {
	id          string
	messageType reflect.Type
	createdAt   time.Time
	expiresAt   time.Time

	once sync.Once
	done chan struct{}
	val  any
	err  error
}

func (p *pendingRequest) terminate(val any, err error) bool {
	terminated := false
	p.once.Do(func() {
		p.val, p.err = val, err
		close(p.done)
		terminated = true
	})
	return terminated
}

// pendingRegistry is the correlation-id → waiter map plus timeout sweep
// (orig §4.4). A concurrent map plus a single sweeper, exactly as orig §9
// "Design notes" recommends, avoiding per-request timers so a virtual clock
// can drive deterministic tests.
type pendingRegistry struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
	cap     *concurrency.Semaphore // nil when unbounded
	now     func() time.Time
}

func newPendingRegistry(capacity int, now func() time.Time) *pendingRegistry {
	if now == nil {
		now = time.Now
	}
	r := &pendingRegistry{
		entries: make(map[string]*pendingRequest),
		now:     now,
	}
	if capacity > 0 {
		r.cap = concurrency.NewSemaphore(int64(capacity))
	}
	return r
}

// Register creates a pending entry for id. Returns an error if id is
// already registered (orig §4.4 invariant: "re-registration is rejected").
// When the registry is at capacity, Register blocks until a slot frees and
// returns an error only if ctx is done first.
func (r *pendingRegistry) Register(ctx context.Context, id string, messageType reflect.Type, expiresAt time.Time) (*pendingRequest, error) {
	if r.cap != nil {
		if err := r.cap.Acquire(ctx, 1); err != nil {
			return nil, ErrProducer("pending-request registry at capacity", err)
		}
	}

	r.mu.Lock()
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		if r.cap != nil {
			r.cap.Release(1)
		}
		return nil, ErrConfiguration(fmt.Sprintf("correlation id %q already registered", id), nil)
	}
	p := &pendingRequest{
		id:          id,
		messageType: messageType,
		createdAt:   r.now(),
		expiresAt:   expiresAt,
		done:        make(chan struct{}),
	}
	r.entries[id] = p
	r.mu.Unlock()
	return p, nil
}

// evict removes id from the map and releases its capacity slot. Must only
// be called once a terminal transition has actually happened (terminate
// returned true), so the registry's Count() drops exactly once per entry.
func (r *pendingRegistry) evict(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
	if r.cap != nil {
		r.cap.Release(1)
	}
}

// Resolve completes id with a successful value. Returns false if id is
// unknown or already terminated (a reply arriving after timeout/cancel is a
// no-op, orig §4.4 "the first to reach the terminal transition wins").
func (r *pendingRegistry) Resolve(id string, value any) bool {
	r.mu.Lock()
	p, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if p.terminate(value, nil) {
		r.evict(id)
		return true
	}
	return false
}

// Fail completes id with a failure.
func (r *pendingRegistry) Fail(id string, err error) bool {
	r.mu.Lock()
	p, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if p.terminate(nil, err) {
		r.evict(id)
		return true
	}
	return false
}

// Cancel completes id with ErrCancelled, used by the caller's cancellation
// observer (orig §4.4 "Cancellation integration").
func (r *pendingRegistry) Cancel(id string) bool {
	return r.Fail(id, ErrCancelled(fmt.Sprintf("request %q cancelled by caller", id)))
}

// CancelAll fails every outstanding entry, used on bus disposal.
func (r *pendingRegistry) CancelAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Fail(id, ErrDisposed(fmt.Sprintf("bus disposed with request %q outstanding", id)))
	}
}

// Sweep fails every entry whose deadline is at or before now. Idempotent
// and non-blocking: it never waits on a waiter, only flips already-expired
// entries to the Timeout terminal state (orig §4.4 "Timeout algorithm").
func (r *pendingRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	var expired []string
	for id, p := range r.entries {
		if !p.expiresAt.IsZero() && !p.expiresAt.After(now) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, id := range expired {
		if r.Fail(id, ErrTimeout(fmt.Sprintf("request %q timed out", id))) {
			n++
		}
	}
	return n
}

// Count returns the number of currently outstanding (non-terminal) entries.
func (r *pendingRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Await blocks until p terminates or ctx is done. When ctx is done first it
// cancels p and returns whichever terminal state won. Returns p's terminal
// value/error.
func (r *pendingRegistry) Await(ctx context.Context, p *pendingRequest) (any, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		r.Cancel(p.id)
		<-p.done
		return p.val, p.err
	}
}

// startSweeper runs Sweep on a coarse periodic tick until ctx is done, as a
// fallback to sweeping on every inbound reply (orig §4.4 "Sweep frequency").
func (r *pendingRegistry) startSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	concurrency.SafeGo(ctx, func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(r.now()); n > 0 {
					logger.L().DebugContext(ctx, "pending-request sweep expired entries", "count", n)
				}
			}
		}
	})
}
