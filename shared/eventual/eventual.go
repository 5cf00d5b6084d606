// Package eventual implements a memoized value stream. An Eventual holds
// the most recent result of a periodic computation, lets readers block
// until the first result exists and notifies subscribers of changes
// without ever buffering more than the latest value.
package eventual

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "eventual")

// Eventual is a concurrency safe container for a value that becomes
// available at some point and is replaced repeatedly afterwards.
type Eventual[T any] struct {
	mu      sync.Mutex
	value   T
	set     bool
	version uint64
	changed chan struct{}
}

// New returns an unresolved eventual.
func New[T any]() *Eventual[T] {
	return &Eventual[T]{changed: make(chan struct{})}
}

// Resolved returns an eventual that already carries the given value.
func Resolved[T any](value T) *Eventual[T] {
	e := New[T]()
	e.Set(value)
	return e
}

// Set replaces the current value and wakes up all waiting readers.
func (e *Eventual[T]) Set(value T) {
	e.mu.Lock()
	e.value = value
	e.set = true
	e.version++
	close(e.changed)
	e.changed = make(chan struct{})
	e.mu.Unlock()
}

// Latest returns the most recent value without blocking. The second return
// is false until the eventual has resolved for the first time.
func (e *Eventual[T]) Latest() (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.set
}

// Value blocks until the eventual has resolved at least once, then returns
// the most recent value.
func (e *Eventual[T]) Value(ctx context.Context) (T, error) {
	e.mu.Lock()
	for !e.set {
		ch := e.changed
		e.mu.Unlock()
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-ch:
		}
		e.mu.Lock()
	}
	value := e.value
	e.mu.Unlock()
	return value, nil
}

// OnNewValue invokes handler with each new value until ctx is canceled. At
// most one invocation runs at a time. Values that arrive while the handler
// is busy are collapsed, so only the latest of them is delivered.
func (e *Eventual[T]) OnNewValue(ctx context.Context, handler func(T)) {
	go func() {
		var seen uint64
		for {
			e.mu.Lock()
			for e.version == seen {
				ch := e.changed
				e.mu.Unlock()
				select {
				case <-ctx.Done():
					return
				case <-ch:
				}
				e.mu.Lock()
			}
			value := e.value
			seen = e.version
			e.mu.Unlock()
			handler(value)
		}
	}()
}

// Poll resolves an eventual by running fn immediately and then once per
// interval. A failed run keeps the previous value and logs a warning, so a
// flapping upstream never erases the last known good state.
func Poll[T any](ctx context.Context, name string, interval time.Duration, fn func(context.Context) (T, error)) *Eventual[T] {
	e := New[T]()
	PollInto(ctx, e, name, interval, fn)
	return e
}

// PollInto drives an existing eventual with a periodic fetch. It is used
// when the eventual carries a seed value from another source before the
// poller takes over.
func PollInto[T any](ctx context.Context, e *Eventual[T], name string, interval time.Duration, fn func(context.Context) (T, error)) {
	refresh := func() {
		value, err := fn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).WithField("eventual", name).Warn("Could not refresh value, retaining previous")
			return
		}
		e.Set(value)
	}
	go func() {
		refresh()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh()
			}
		}
	}()
}

// Tuple2 carries the joined values of two eventuals.
type Tuple2[A, B any] struct {
	First  A
	Second B
}

// Join2 resolves once both inputs have resolved and refreshes whenever
// either of them does.
func Join2[A, B any](ctx context.Context, a *Eventual[A], b *Eventual[B]) *Eventual[Tuple2[A, B]] {
	out := New[Tuple2[A, B]]()
	update := func() {
		av, aok := a.Latest()
		bv, bok := b.Latest()
		if aok && bok {
			out.Set(Tuple2[A, B]{First: av, Second: bv})
		}
	}
	a.OnNewValue(ctx, func(A) { update() })
	b.OnNewValue(ctx, func(B) { update() })
	return out
}
