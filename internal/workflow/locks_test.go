package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRequesterLocksSerializeSameRequester(t *testing.T) {
	locks := NewRequesterLocks()
	ctx := context.Background()

	var (
		holders atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(ctx, 7)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			n := holders.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			holders.Add(-1)
			release()
		}()
	}
	wg.Wait()

	if got := peak.Load(); got != 1 {
		t.Fatalf("peak holders = %d, want 1", got)
	}
	if locks.Held(7) {
		t.Fatal("lock still held after all releases")
	}
}

func TestRequesterLocksIndependentRequesters(t *testing.T) {
	locks := NewRequesterLocks()
	releaseA, err := locks.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("Acquire(1): %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := locks.Acquire(ctx, 2)
	if err != nil {
		t.Fatalf("Acquire(2) blocked behind another requester: %v", err)
	}
	releaseB()
}

func TestRequesterLocksAcquireHonorsCancellation(t *testing.T) {
	locks := NewRequesterLocks()
	release, err := locks.Acquire(context.Background(), 3)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := locks.Acquire(ctx, 3); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("waiting Acquire = %v, want deadline exceeded", err)
	}

	release()
	release()
	if locks.Held(3) {
		t.Fatal("double release left the lock held")
	}
	again, ok := locks.TryAcquire(3)
	if !ok {
		t.Fatal("TryAcquire failed after release")
	}
	if _, ok := locks.TryAcquire(3); ok {
		t.Fatal("TryAcquire succeeded while held")
	}
	again()
}

func TestRequesterLocksWaiterProceedsAfterRelease(t *testing.T) {
	locks := NewRequesterLocks()
	release, _ := locks.Acquire(context.Background(), 9)

	acquired := make(chan struct{})
	go func() {
		next, err := locks.Acquire(context.Background(), 9)
		if err != nil {
			t.Errorf("Acquire: %v", err)
			return
		}
		close(acquired)
		next()
	}()

	select {
	case <-acquired:
		t.Fatal("waiter acquired while lock held")
	case <-time.After(30 * time.Millisecond):
	}
	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after release")
	}
}
