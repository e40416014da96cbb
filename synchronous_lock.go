package txn

import (
	"context"
	log "log/slog"
	"sync"
)

// queuedSubmit pairs a pending transaction with the context it was submitted
// under, so a deferred firing keeps the submitter's cancellation and values.
type queuedSubmit struct {
	tx  *Transaction
	ctx context.Context
}

// SynchronousLock is the reference TransactionLock: it admits up to capacity
// transactions at once, queues the rest FIFO and fires them as slots free up.
// Optional begin/end hooks run around each admission.
//
// The internal mutex guards current, pending and capacity. Every method
// mutates under it and releases it before any hook call or firing, so the
// mutex is never held across a suspension point.
type SynchronousLock struct {
	mu       sync.Mutex
	total    int
	capacity int
	current  *Transaction
	// holders tracks every transaction mid-fire, keyed by ID, so a re-entrant
	// submit is recognized even when capacity > 1 and siblings come and go.
	holders map[UUID]*Transaction
	pending []queuedSubmit

	onBegin func(ctx context.Context) error
	onEnd   func(ctx context.Context, err error) error
}

// NewSynchronousLock returns a SynchronousLock admitting up to capacity
// concurrent transactions. Capacity below one is clamped to one.
func NewSynchronousLock(capacity int) *SynchronousLock {
	if capacity < 1 {
		capacity = 1
	}
	return &SynchronousLock{
		total:    capacity,
		capacity: capacity,
		holders:  make(map[UUID]*Transaction),
	}
}

// OnBegin registers a hook invoked after a transaction takes a slot, before
// it fires. A hook error becomes the transaction's own failure. Set hooks
// before the lock is in use.
func (l *SynchronousLock) OnBegin(hook func(ctx context.Context) error) {
	l.onBegin = hook
}

// OnEnd registers a hook invoked on release with the transaction's error, if
// any. Hook failures are logged and never block the queue: capacity is
// restored before the hook runs.
func (l *SynchronousLock) OnEnd(hook func(ctx context.Context, err error) error) {
	l.onEnd = hook
}

// Current returns the most recently admitted transaction still accounted
// current, or nil. With capacity 1 this is the in-flight transaction; above
// that it is introspection only and callers needing exact identity should
// propagate the transaction through the context instead.
func (l *SynchronousLock) Current() *Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// QueueDepth returns the number of transactions waiting for a slot.
func (l *SynchronousLock) QueueDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Submit admits t per the capacity rules and returns its eventual result.
// A re-entrant submit (t already holds the slot) fires directly: a chained
// call inside one logical transaction must not consume a second slot or it
// would deadlock against itself.
func (l *SynchronousLock) Submit(ctx context.Context, t *Transaction) (any, error) {
	l.mu.Lock()
	if _, held := l.holders[t.ID()]; held {
		l.mu.Unlock()
		return t.Fire(ctx)
	}
	if l.capacity > 0 {
		l.capacity--
		l.mu.Unlock()
		return l.fire(ctx, t)
	}
	l.pending = append(l.pending, queuedSubmit{tx: t, ctx: ctx})
	l.mu.Unlock()
	queuedTransactions.Inc()
	pendingTransactions.Inc()
	t.Log("queued, waiting for an admission slot")

	// Block on the transaction's completion future; a later Release fires it.
	select {
	case <-t.done:
		return t.outcome()
	case <-ctx.Done():
		if l.removePending(t) {
			// Never fired, never held a slot; the follow-up Release must no-op.
			t.markReleased()
			return nil, ctx.Err()
		}
		// Already dequeued for firing; abandoning now would leak the slot
		// because the submitter is the one who releases it.
		<-t.done
		return t.outcome()
	}
}

// fire marks t current, runs the begin hook and invokes the transaction. t is
// registered as a holder for the duration of the firing so a re-entrant
// submit from inside its own action is recognized.
func (l *SynchronousLock) fire(ctx context.Context, t *Transaction) (any, error) {
	l.mu.Lock()
	l.current = t
	l.mu.Unlock()
	admittedTransactions.Inc()
	if l.onBegin != nil {
		if err := l.onBegin(ctx); err != nil {
			// Surface the hook failure as the transaction's failure so queued
			// submitters observe it through the completion future.
			t.settle(nil, err)
			return nil, err
		}
	}
	l.mu.Lock()
	l.holders[t.ID()] = t
	l.mu.Unlock()
	result, err := t.Fire(ctx)
	l.mu.Lock()
	delete(l.holders, t.ID())
	l.mu.Unlock()
	return result, err
}

// removePending drops t from the wait queue and reports whether it was still queued.
func (l *SynchronousLock) removePending(t *Transaction) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.pending {
		if l.pending[i].tx == t {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			pendingTransactions.Dec()
			return true
		}
	}
	return false
}

// Release signals the held slot is done. The oldest queued transaction, if
// any, inherits the slot and is fired from a fresh goroutine so the releasing
// caller's stack unwinds first; otherwise capacity is restored. The end hook
// runs after the books are settled: a failing hook cannot wedge the queue.
func (l *SynchronousLock) Release(ctx context.Context, err error) error {
	l.mu.Lock()
	if l.current == nil && l.capacity == l.total && len(l.pending) == 0 {
		l.mu.Unlock()
		// Unreachable by construction; don't crash over it.
		log.Warn("release called with no transaction in flight")
		return nil
	}
	l.current = nil
	var next *queuedSubmit
	if len(l.pending) > 0 {
		n := l.pending[0]
		l.pending = l.pending[1:]
		next = &n
	} else if l.capacity < l.total {
		l.capacity++
	}
	l.mu.Unlock()

	releasedTransactions.Inc()
	if l.onEnd != nil {
		if herr := l.onEnd(ctx, err); herr != nil {
			log.Warn("onEnd hook failed", "error", herr)
		}
	}
	if next != nil {
		pendingTransactions.Dec()
		go l.fire(next.ctx, next.tx)
	}
	return nil
}
