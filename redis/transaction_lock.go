package redis

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/sharedcode/txn"
)

// TransactionLock coordinates admission across processes: the slot is a TTL'd
// Redis key under a shared name, so at most one holder exists cluster-wide at
// a time. Contending submitters spin with jitter; unlike the in-process
// SynchronousLock there is no FIFO guarantee between processes. The TTL
// bounds the lock's lifetime even if the holder dies, and doubles as the
// acquisition wait budget.
type TransactionLock struct {
	cache Cache
	name  string
	ttl   time.Duration

	mu      sync.Mutex
	current *txn.Transaction
	key     *txn.LockKey
}

// NewTransactionLock returns a clustered transaction lock keyed by name.
// A non-positive ttl defaults to 30 seconds.
func NewTransactionLock(c Cache, name string, ttl time.Duration) *TransactionLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &TransactionLock{
		cache: c,
		name:  name,
		ttl:   ttl,
	}
}

// Current returns the in-flight transaction submitted through this process, or nil.
func (l *TransactionLock) Current() *txn.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Submit acquires the cluster-wide lock key then fires t, returning its
// outcome. A re-entrant submit (t already holds the slot) fires directly so a
// chained call cannot deadlock against its own transaction.
func (l *TransactionLock) Submit(ctx context.Context, t *txn.Transaction) (any, error) {
	l.mu.Lock()
	if l.current != nil && l.current.ID() == t.ID() {
		l.mu.Unlock()
		return t.Fire(ctx)
	}
	l.mu.Unlock()

	keys := CreateLockKeys([]string{l.name})
	startTime := txn.Now()
	for {
		ok, owner, err := Lock(ctx, l.cache, l.ttl, keys)
		if err != nil {
			return nil, txn.Error{Code: txn.LockAcquisitionFailure, Err: err}
		}
		if ok {
			break
		}
		if err := txn.TimedOut(ctx, "redis transaction lock", startTime, l.ttl); err != nil {
			return nil, txn.Error{
				Code: txn.LockAcquisitionFailure,
				Err:  fmt.Errorf("lock %s held by %s: %w", l.name, owner.String(), err),
			}
		}
		// Stagger contending acquirers.
		txn.RandomSleep(ctx)
	}

	l.mu.Lock()
	l.current = t
	l.key = keys[0]
	l.mu.Unlock()
	return t.Fire(ctx)
}

// Release deletes the held lock key so another process can admit. err is the
// transaction's outcome and is only logged here; the key is deleted either way.
func (l *TransactionLock) Release(ctx context.Context, err error) error {
	l.mu.Lock()
	key := l.key
	l.key = nil
	l.current = nil
	l.mu.Unlock()

	if key == nil {
		// Unreachable by construction; don't crash over it.
		log.Warn("release called with no redis lock held", "name", l.name)
		return nil
	}
	if err != nil {
		log.Debug("releasing redis lock after failed transaction", "name", l.name, "error", err)
	}
	return Unlock(ctx, l.cache, []*txn.LockKey{key})
}
