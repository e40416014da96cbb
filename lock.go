package txn

import (
	"context"
	log "log/slog"
	"sync"
)

// Lock is a binary mutual exclusion primitive with FIFO fairness: at most one
// holder, waiters granted strictly in arrival order. Unlike sync.Mutex it is
// context-aware while waiting and hands the lock over through a channel, so a
// waiter's continuation always runs on its own goroutine, never inline on the
// releasing call stack.
type Lock struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

func NewLock() *Lock {
	return &Lock{}
}

// Acquire suspends the caller until exclusive access is granted. If the lock
// is free it is granted immediately; otherwise the caller joins the FIFO wait
// queue. A canceled context abandons the wait without leaking the lock.
func (l *Lock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.locked {
		l.locked = true
		l.mu.Unlock()
		return nil
	}
	grant := make(chan struct{})
	l.waiters = append(l.waiters, grant)
	l.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == grant {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// The grant raced the cancellation; take it and hand the lock back.
		<-grant
		l.Release()
		return ctx.Err()
	}
}

// TryAcquire grants the lock immediately if it is free and reports whether it did.
func (l *Lock) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked {
		return false
	}
	l.locked = true
	return true
}

// IsLocked reports whether the lock is currently held.
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// Release hands the lock to the oldest waiter, or marks it free when nobody
// waits. The waiter is woken through its grant channel and resumes on the Go
// scheduler; its continuation never runs inside this call.
func (l *Lock) Release() {
	l.mu.Lock()
	if len(l.waiters) > 0 {
		grant := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.mu.Unlock()
		close(grant)
		return
	}
	if !l.locked {
		// Unreachable by construction; don't crash over it.
		log.Warn("release called on an unlocked lock")
	}
	l.locked = false
	l.mu.Unlock()
}

// Execute acquires the lock, runs fn and releases on success and failure
// paths alike, propagating fn's result or error.
func (l *Lock) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := l.Acquire(ctx); err != nil {
		return nil, err
	}
	defer l.Release()
	return fn(ctx)
}

// LockKey names one admission slot in an external coordinator (see the redis
// subpackage). LockID is the owner's identity; IsLockOwner records whether
// this process won the key.
type LockKey struct {
	Key         string
	LockID      UUID
	IsLockOwner bool
}
