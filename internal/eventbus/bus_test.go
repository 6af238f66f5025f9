package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBusConsume(t *testing.T) {
	bus := New[int](0)
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan int, 4)
	done := bus.Consume(ctx, func(v int) { got <- v })
	if err := bus.Publish(context.Background(), 7); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case v := <-got:
		if v != 7 {
			t.Fatalf("expected 7 got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("event not consumed")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestBusPublishWaitsForSlowConsumer(t *testing.T) {
	bus := New[int](1)
	var mu sync.Mutex
	var seen []int
	done := bus.Consume(context.Background(), func(v int) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})
	const n = 50
	for i := 0; i < n; i++ {
		if err := bus.Publish(context.Background(), i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	bus.Close()
	<-done
	if len(seen) != n {
		t.Fatalf("expected %d events, got %d", n, len(seen))
	}
	for i, v := range seen {
		if v != i {
			t.Fatalf("event %d out of order: %d", i, v)
		}
	}
	if got := bus.Dropped(); got != 0 {
		t.Fatalf("expected no drops, got %d", got)
	}
}

func TestBusPublishHonoursContext(t *testing.T) {
	bus := New[int](1)
	stop, cancelConsumer := context.WithCancel(context.Background())
	block := make(chan struct{})
	bus.Consume(stop, func(int) { <-block })
	defer func() {
		close(block)
		cancelConsumer()
	}()

	// first event is taken by the consumer, second fills the buffer
	_ = bus.Publish(context.Background(), 1)
	_ = bus.Publish(context.Background(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = bus.Publish(ctx, 3+i)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if bus.Dropped() == 0 {
		t.Fatal("expected the abandoned event to be counted")
	}
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := New[int](0)
	bus.Close()
	bus.Close()
	if err := bus.Publish(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if bus.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", bus.Dropped())
	}
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := New[string](0)
	if err := bus.Publish(context.Background(), "nobody"); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
