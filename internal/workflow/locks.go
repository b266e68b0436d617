package workflow

import (
	"context"
	"sync"
)

// RequesterLocks serializes work per requester. Waiters queue behind the
// holder instead of being rejected.
type RequesterLocks struct {
	mu    sync.Mutex
	locks map[int64]chan struct{}
}

// NewRequesterLocks returns an empty lock table.
func NewRequesterLocks() *RequesterLocks {
	return &RequesterLocks{locks: make(map[int64]chan struct{})}
}

func (l *RequesterLocks) slot(requesterID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[requesterID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[requesterID] = ch
	}
	return ch
}

// Acquire blocks until the requester's lock is free or ctx is done. The
// returned release func is safe to call more than once.
func (l *RequesterLocks) Acquire(ctx context.Context, requesterID int64) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := l.slot(requesterID)
	select {
	case ch <- struct{}{}:
		return releaser(ch), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire takes the lock only if nobody holds it.
func (l *RequesterLocks) TryAcquire(requesterID int64) (func(), bool) {
	ch := l.slot(requesterID)
	select {
	case ch <- struct{}{}:
		return releaser(ch), true
	default:
		return nil, false
	}
}

// Held reports whether the requester's lock is currently taken.
func (l *RequesterLocks) Held(requesterID int64) bool {
	l.mu.Lock()
	ch, ok := l.locks[requesterID]
	l.mu.Unlock()
	return ok && len(ch) == 1
}

func releaser(ch chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}
}
