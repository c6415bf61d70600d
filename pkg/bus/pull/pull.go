// Package pull implements the reference driver for pull-style transports
// (orig §4.7): a single long-running loop that polls a set of named queues
// in round-robin order and dispatches each arrival to a per-queue
// processor list, backing off when every queue comes up empty.
package pull

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chris-alexander-pop/busrt/pkg/bus"
	"github.com/chris-alexander-pop/busrt/pkg/concurrency"
	"github.com/chris-alexander-pop/busrt/pkg/logger"
)

// Source is a pull-style queue: Pop attempts a single non-blocking
// retrieval, returning ok=false when nothing is currently available.
type Source interface {
	Pop(ctx context.Context) (env *bus.Envelope, ok bool, err error)
}

// Processor handles one envelope popped from a queue. Returning an error
// does not stop the loop or other processors registered on the same queue
// (orig §4.7 "continue past an individual processor failure").
type Processor func(ctx context.Context, env *bus.Envelope) error

// Config configures a Loop.
type Config struct {
	// PollDelay is how long the loop sleeps after a fully-idle pass once
	// MaxIdle has elapsed.
	PollDelay time.Duration
	// MaxIdle is the elapsed-idle-time threshold before the loop starts
	// sleeping PollDelay between passes, rather than busy-polling.
	MaxIdle time.Duration
}

type namedQueue struct {
	path       string
	source     Source
	processors []Processor
}

// Loop is the reference pull-consumer driver.
type Loop struct {
	cfg    Config
	queues []*namedQueue

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	errCh   chan error
}

// New constructs an idle Loop. Register queues with AddQueue before Start.
func New(cfg Config) *Loop {
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = 200 * time.Millisecond
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = time.Second
	}
	return &Loop{cfg: cfg, errCh: make(chan error, 64)}
}

// AddQueue registers a queue and its ordered processor list. Must be
// called before Start.
func (l *Loop) AddQueue(path string, source Source, processors ...Processor) {
	l.queues = append(l.queues, &namedQueue{path: path, source: source, processors: processors})
}

// Errors returns the channel processor/pop failures are logged to. Callers
// that don't drain it simply rely on the loop's own logging.
func (l *Loop) Errors() <-chan error { return l.errCh }

// Start launches the single long-running poll loop (orig §4.7 "Owns a
// cancellation source and a single long-running task"). Calling Start
// twice is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.started = true
	l.mu.Unlock()

	concurrency.SafeGo(runCtx, func() {
		defer close(l.done)
		l.run(runCtx)
	})
}

func (l *Loop) run(ctx context.Context) {
	idleSince := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		progressed := false
		for _, q := range l.queues {
			env, ok, err := q.source.Pop(ctx)
			if err != nil {
				l.reportError(ctx, fmt.Errorf("pop from %q: %w", q.path, err))
				continue
			}
			if !ok {
				continue
			}
			progressed = true
			idleSince = time.Now()
			l.dispatch(ctx, q, env)
		}

		if progressed {
			continue
		}
		if time.Since(idleSince) >= l.cfg.MaxIdle {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.cfg.PollDelay):
			}
		}
	}
}

// dispatch runs every processor for q in order, isolating one processor's
// failure (or panic) from the rest (orig §4.7 "continue past an individual
// processor failure").
func (l *Loop) dispatch(ctx context.Context, q *namedQueue, env *bus.Envelope) {
	for _, proc := range q.processors {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.reportError(ctx, fmt.Errorf("processor on %q panicked: %v", q.path, r))
				}
			}()
			if err := proc(ctx, env); err != nil {
				l.reportError(ctx, fmt.Errorf("processor on %q failed: %w", q.path, err))
			}
		}()
	}
}

func (l *Loop) reportError(ctx context.Context, err error) {
	logger.L().ErrorContext(ctx, "pull loop error", "error", err)
	select {
	case l.errCh <- err:
	default:
	}
}

// Stop cancels the loop and awaits its task's termination.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	done := l.done
	l.started = false
	l.mu.Unlock()

	cancel()
	<-done
}

// Dispose stops the loop (if running) and drops registered queues/processors.
func (l *Loop) Dispose() {
	l.Stop()
	l.mu.Lock()
	l.queues = nil
	l.mu.Unlock()
}
