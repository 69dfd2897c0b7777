package osm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LookupFunc resolves one input, typically with a network call.
type LookupFunc[T any] func(ctx context.Context, input string) (T, error)

// DeliverFunc receives the response for the newest input.
type DeliverFunc[T any] func(input string, value T, err error)

// Latest debounces lookups for one input field and delivers only the
// response to the newest input.
//
// Update restarts the idle timer; the lookup runs once the input has been
// idle for the delay. Lookups are never cancelled, so responses may finish
// out of order: each lookup carries the sequence number of the Update that
// triggered it and is dropped if a newer Update happened meanwhile.
// Concurrent lookups for the same input text share one call.
type Latest[T any] struct {
	delay   time.Duration
	lookup  LookupFunc[T]
	deliver DeliverFunc[T]

	group singleflight.Group

	mu      sync.Mutex
	seq     uint64
	timer   *time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewLatest creates a debouncer. A zero delay runs lookups immediately.
func NewLatest[T any](delay time.Duration, lookup LookupFunc[T], deliver DeliverFunc[T]) *Latest[T] {
	return &Latest[T]{delay: delay, lookup: lookup, deliver: deliver}
}

// Update records a new input value.
func (l *Latest[T]) Update(ctx context.Context, input string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}

	l.seq++
	seq := l.seq
	if l.timer != nil && l.timer.Stop() {
		l.wg.Done()
	}
	l.wg.Add(1)
	l.timer = time.AfterFunc(l.delay, func() {
		defer l.wg.Done()
		l.run(ctx, seq, input)
	})
}

func (l *Latest[T]) run(ctx context.Context, seq uint64, input string) {
	if !l.current(seq) {
		return
	}

	v, err, _ := l.group.Do(input, func() (interface{}, error) {
		return l.lookup(ctx, input)
	})

	l.mu.Lock()
	stale := seq != l.seq || l.stopped
	l.mu.Unlock()
	if stale {
		return
	}

	var value T
	if v != nil {
		value = v.(T)
	}
	l.deliver(input, value, err)
}

func (l *Latest[T]) current(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return seq == l.seq && !l.stopped
}

// Stop cancels a pending lookup, suppresses further deliveries and waits
// for running lookups to return.
func (l *Latest[T]) Stop() {
	l.mu.Lock()
	l.stopped = true
	if l.timer != nil && l.timer.Stop() {
		// the callback will never run
		l.wg.Done()
	}
	l.mu.Unlock()
	l.wg.Wait()
}
