package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/pairwise/internal/domain/model"
)

func job(i int) Job {
	return Job{Record: model.LogRecord{TrialIndex: model.Num(float64(i)), TrialType: "comparison_trial"}}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, job(1)) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	j := <-q.Dequeue(ctx)
	if *j.Record.TrialIndex != 1 {
		t.Errorf("expected trial 1, got %v", *j.Record.TrialIndex)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	_ = q.Close()
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2), WithBufferSize(1))
	ctx := context.Background()

	if !q.Enqueue(ctx, job(1)) || !q.Enqueue(ctx, job(2)) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, job(3)) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if !q.Enqueue(ctx, job(g*100+i)) {
					t.Errorf("enqueue %d failed", g*100+i)
				}
			}
		}(g)
	}
	wg.Wait()
	_ = q.Close()

	seen := make(map[float64]bool)
	for j := range q.Dequeue(ctx) {
		seen[float64(*j.Record.TrialIndex)] = true
	}
	if len(seen) != 1000 {
		t.Errorf("expected 1000 distinct jobs, got %d", len(seen))
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	if !q.Enqueue(ctx, job(1)) {
		t.Fatal("expected enqueue to succeed")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if q.Enqueue(ctx, job(2)) {
		t.Error("expected enqueue to fail after close")
	}

	var got []Job
	for j := range q.Dequeue(ctx) {
		got = append(got, j)
	}
	if len(got) != 1 {
		t.Errorf("queued job should still drain, got %d", len(got))
	}
}

func TestInMemoryQueue_DequeueCancelSettles(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx, cancel := context.WithCancel(context.Background())

	settled := make(chan error, 1)
	q.Enqueue(context.Background(), Job{Done: func(err error) { settled <- err }})
	_ = q.Dequeue(ctx) // nobody reads the channel
	cancel()

	select {
	case err := <-settled:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("job taken after cancel was never settled")
	}
	_ = q.Close()
}

func TestJob_SettleWithoutListener(t *testing.T) {
	Job{}.Settle(fmt.Errorf("ignored"))
}

func TestInMemoryQueue_EnqueueWait(t *testing.T) {
	t.Run("waits for room", func(t *testing.T) {
		q := NewInMemoryQueue(WithCapacity(1))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := q.EnqueueWait(ctx, job(1)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		done := make(chan error, 1)
		go func() { done <- q.EnqueueWait(ctx, job(2)) }()

		select {
		case err := <-done:
			t.Fatalf("enqueue should block on a full queue, returned %v", err)
		case <-time.After(30 * time.Millisecond):
		}

		out := q.Dequeue(ctx)
		if j := <-out; *j.Record.TrialIndex != 1 {
			t.Errorf("expected trial 1, got %v", *j.Record.TrialIndex)
		}
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("enqueue did not resume after a dequeue")
		}
		if j := <-out; *j.Record.TrialIndex != 2 {
			t.Errorf("expected trial 2, got %v", *j.Record.TrialIndex)
		}
		_ = q.Close()
	})

	t.Run("stops at the deadline", func(t *testing.T) {
		q := NewInMemoryQueue(WithCapacity(1))
		_ = q.EnqueueWait(context.Background(), job(1))
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := q.EnqueueWait(ctx, job(2)); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline error, got %v", err)
		}
	})

	t.Run("wakes when closed", func(t *testing.T) {
		q := NewInMemoryQueue(WithCapacity(1))
		_ = q.EnqueueWait(context.Background(), job(1))
		done := make(chan error, 1)
		go func() { done <- q.EnqueueWait(context.Background(), job(2)) }()
		time.Sleep(10 * time.Millisecond)
		_ = q.Close()
		select {
		case err := <-done:
			if !errors.Is(err, ErrClosed) {
				t.Errorf("expected ErrClosed, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("enqueue did not wake on close")
		}
	})
}
