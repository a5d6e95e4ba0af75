// Package eventloop provides the single-threaded cooperative loop the
// executor runs on. Request handlers, poll callbacks and registry maintenance
// all execute on the loop goroutine, one callback at a time, so the core
// packages share state without locks. A callback that blocks stalls every
// pending operation; long work belongs in a child process, not in a callback.
package eventloop

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cancel revokes a timer scheduled with After. It reports whether the
// callback was prevented from running. Safe to call more than once.
type Cancel func() bool

// Loop executes posted and timer-fired callbacks on a single goroutine.
type Loop struct {
	clock Clock

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
}

// New returns a loop using clk for timers. A nil clk means RealClock.
func New(clk Clock) *Loop {
	if clk == nil {
		clk = RealClock{}
	}
	return &Loop{
		clock: clk,
		wake:  make(chan struct{}, 1),
	}
}

// Clock returns the loop's clock, for components that stamp records with
// loop time.
func (l *Loop) Clock() Clock { return l.clock }

// Post enqueues fn to run on the loop goroutine. It never blocks and is safe
// from any goroutine, including from inside a running callback. Posts made
// after Stop are dropped; the return value reports whether fn was enqueued.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// After schedules fn to run on the loop goroutine once d has elapsed. The
// timer fires on the clock's goroutine and hands off through Post, so fn
// still observes single-threaded semantics.
func (l *Loop) After(d time.Duration, fn func()) Cancel {
	var once sync.Once
	fired := false
	stop := l.clock.AfterFunc(d, func() {
		once.Do(func() { fired = true })
		l.Post(fn)
	})
	return func() bool {
		stopped := stop()
		once.Do(func() {})
		return stopped && !fired
	}
}

// Run drains callbacks until ctx is canceled or Stop is called. It returns
// the ctx error, or nil after Stop. Run must be called at most once.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			l.invoke(fn)
		}
		l.mu.Lock()
		stopped := l.stopped
		pending := len(l.queue) > 0
		l.mu.Unlock()
		if stopped && !pending {
			return nil
		}
		if pending {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Stop makes Run return after the already-queued callbacks finish. Further
// posts are discarded.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Drain runs queued callbacks on the calling goroutine until the queue is
// empty, then returns the number executed. It is for callers that own the
// loop thread themselves (tests with a fake clock, shutdown flushing); it
// must not race a concurrent Run.
func (l *Loop) Drain() int {
	n := 0
	for {
		fn := l.next()
		if fn == nil {
			return n
		}
		l.invoke(fn)
		n++
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue = l.queue[1:]
	return fn
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event loop callback panicked", "panic", r)
		}
	}()
	fn()
}
