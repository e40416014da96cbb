package txn

import (
	"context"
	"fmt"
	"sync"
)

// MultiLock hands out one Lock per name so independent concurrency domains
// proceed fully in parallel while operations under the same name serialize in
// submission order. Locks are created lazily on first use.
type MultiLock struct {
	// guard protects the map so two concurrent first-acquires of the same name
	// cannot create two distinct locks, which would defeat mutual exclusion.
	guard sync.Mutex
	locks map[string]*Lock
}

func NewMultiLock() *MultiLock {
	return &MultiLock{
		locks: make(map[string]*Lock),
	}
}

// LockFor returns the Lock for name, creating it if absent.
func (m *MultiLock) LockFor(name string) *Lock {
	m.guard.Lock()
	defer m.guard.Unlock()
	l, ok := m.locks[name]
	if !ok {
		l = NewLock()
		m.locks[name] = l
	}
	return l
}

// Acquire suspends the caller until the named lock is granted.
func (m *MultiLock) Acquire(ctx context.Context, name string) error {
	return m.LockFor(name).Acquire(ctx)
}

// Release releases the named lock. Releasing a name that was never acquired is
// a programmer error: release should only ever follow a matching acquire.
func (m *MultiLock) Release(name string) error {
	m.guard.Lock()
	l, ok := m.locks[name]
	m.guard.Unlock()
	if !ok {
		return Error{
			Code: NonExistingLock,
			Err:  fmt.Errorf("releasing a non existing lock(%s), 'should be impossible", name),
		}
	}
	l.Release()
	return nil
}

// Execute runs fn under the named lock, releasing on success and failure paths alike.
func (m *MultiLock) Execute(ctx context.Context, fn func(ctx context.Context) (any, error), name string) (any, error) {
	if err := m.Acquire(ctx, name); err != nil {
		return nil, err
	}
	defer m.Release(name)
	return fn(ctx)
}
