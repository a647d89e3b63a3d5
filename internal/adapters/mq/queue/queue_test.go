package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue[int](WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if err := q.Enqueue(ctx, 7); err != nil {
		t.Errorf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if got := <-q.Dequeue(dctx); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue[string](WithCapacity(2))
	ctx := context.Background()

	for _, id := range []string{"enc-1", "enc-2"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Errorf("expected enqueue to succeed, got %v", err)
		}
	}
	if err := q.Enqueue(ctx, "enc-3"); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if l := q.Len(); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentConsumers(t *testing.T) {
	const n = 500
	q := NewInMemoryQueue[int](WithCapacity(n))
	ctx := context.Background()

	for i := 0; i < n; i++ {
		if err := q.Enqueue(ctx, i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[int]int, n)
		wg   sync.WaitGroup
	)
	for c := 0; c < 8; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range q.Dequeue(ctx) {
				mu.Lock()
				seen[i]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct items, got %d", n, len(seen))
	}
	for i, c := range seen {
		if c != 1 {
			t.Errorf("item %d delivered %d times", i, c)
		}
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue[int](WithCapacity(10))
	ctx := context.Background()

	_ = q.Enqueue(ctx, 1)
	_ = q.Enqueue(ctx, 2)

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected second close to be a no-op, got %v", err)
	}
	if err := q.Enqueue(ctx, 3); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	var got []int
	for i := range q.Dequeue(ctx) {
		got = append(got, i)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected queued items to drain in order, got %v", got)
	}
}

func TestInMemoryQueue_DequeueStopsOnCancel(t *testing.T) {
	q := NewInMemoryQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())
	ch := q.Dequeue(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected no item after cancel")
		}
	case <-time.After(time.Second):
		t.Error("dequeue channel was not closed after cancel")
	}
}
