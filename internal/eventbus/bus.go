// Package eventbus fans typed events out to in-process subscribers.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the channel capacity of each subscriber.
const DefaultBuffer = 32

// ErrClosed is returned by Publish once the bus is closed.
var ErrClosed = errors.New("event bus closed")

// Bus is a type-safe publish/subscribe bus for events of type T. Publish
// waits for room in every subscriber buffer; an event is only abandoned
// when the publisher's context ends or the bus closes.
type Bus[T any] struct {
	mu      sync.RWMutex
	subs    []chan T
	done    chan struct{}
	once    sync.Once
	buffer  int
	dropped atomic.Uint64
}

// New creates a Bus whose subscribers buffer up to buffer events. A
// non-positive buffer uses DefaultBuffer.
func New[T any](buffer int) *Bus[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus[T]{buffer: buffer, done: make(chan struct{})}
}

// Publish delivers e to every subscriber, blocking while a buffer is full.
func (b *Bus[T]) Publish(ctx context.Context, e T) error {
	select {
	case <-b.done:
		b.dropped.Add(1)
		return ErrClosed
	default:
	}
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- e:
		case <-b.done:
			b.dropped.Add(1)
			return ErrClosed
		case <-ctx.Done():
			b.dropped.Add(1)
			return ctx.Err()
		}
	}
	return nil
}

// Dropped returns the number of events abandoned by Publish.
func (b *Bus[T]) Dropped() uint64 { return b.dropped.Load() }

func (b *Bus[T]) subscribe() chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	subs := make([]chan T, len(b.subs), len(b.subs)+1)
	copy(subs, b.subs)
	b.subs = append(subs, ch)
	b.mu.Unlock()
	return ch
}

func (b *Bus[T]) unsubscribe(sub chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := make([]chan T, 0, len(b.subs))
	for _, ch := range b.subs {
		if ch != sub {
			subs = append(subs, ch)
		}
	}
	b.subs = subs
}

// Consume subscribes and calls fn for every event until ctx is done or the
// bus is closed. Events buffered when the bus closes are still handed to
// fn. The subscription is registered before Consume returns.
func (b *Bus[T]) Consume(ctx context.Context, fn func(T)) <-chan struct{} {
	sub := b.subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer b.unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-sub:
				fn(ev)
			case <-b.done:
				for {
					select {
					case ev := <-sub:
						fn(ev)
					default:
						return
					}
				}
			}
		}
	}()
	return done
}

// Close stops the bus. Consumers drain their buffers and exit.
func (b *Bus[T]) Close() {
	b.once.Do(func() { close(b.done) })
}
