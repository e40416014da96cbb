package txn

import (
	"context"
	"sync"
)

// TransactionLock is the admission-control contract a concurrency strategy
// must satisfy to govern transactions. The reference implementation is the
// in-process SynchronousLock; the redis subpackage supplies a cross-process
// one.
type TransactionLock interface {
	// Submit admits the transaction according to the strategy's capacity rules
	// and returns the transaction's eventual result. The call blocks until the
	// transaction has fired and settled; queued transactions are fired in FIFO
	// order as slots free up. Submitting the transaction that already holds a
	// slot fires it directly without consuming another slot.
	Submit(ctx context.Context, t *Transaction) (any, error)
	// Release signals that the currently held slot is done, successfully or
	// with err. Capacity is restored (or handed to the oldest queued
	// transaction) regardless of hook outcomes.
	Release(ctx context.Context, err error) error
	// Current returns the most recently admitted transaction, or nil. For
	// capacity-1 strategies this is the in-flight transaction; multi-slot
	// strategies may report any one of the holders, so callers needing exact
	// identity propagate the transaction through the context instead.
	Current() *Transaction
}

var (
	processLockMu sync.Mutex
	processLock   TransactionLock
)

// GetLock returns the process-wide transaction lock, lazily defaulting to a
// capacity-1 SynchronousLock so some serialization exists without
// configuration.
func GetLock() TransactionLock {
	processLockMu.Lock()
	defer processLockMu.Unlock()
	if processLock == nil {
		processLock = NewSynchronousLock(1)
	}
	return processLock
}

// SetLock swaps the process-wide transaction lock. Useful for choosing a
// different admission strategy and for test isolation.
func SetLock(l TransactionLock) {
	processLockMu.Lock()
	processLock = l
	processLockMu.Unlock()
}
