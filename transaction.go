package txn

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"time"
)

// Action is the zero-argument unit of work a Transaction governs. It produces
// a result or fails; rollback of partial effects stays with the action itself.
type Action func(ctx context.Context) (any, error)

// Transaction represents one admitted (or to-be-admitted) unit of work. It is
// created fresh for a top-level transactional call, or created and immediately
// bound into the live transaction when a chained call happens during an
// already-fired one. After completion and release it holds no resources.
type Transaction struct {
	id       UUID
	source   string
	method   string
	metadata []any

	mu       sync.Mutex
	action   Action
	trace    []string
	fired    bool
	released bool
	lock     TransactionLock
	bounds   []*Bound

	// Completion future: settled exactly once, by the first Fire invocation's
	// outcome (or a timeout / begin-hook failure).
	done   chan struct{}
	once   sync.Once
	result any
	err    error
}

// NewTransaction constructs a transaction for the logical operation
// source.method. The metadata is opaque and passed through untouched for the
// lock (and its hooks) to inspect.
func NewTransaction(source, method string, action Action, metadata ...any) *Transaction {
	return &Transaction{
		id:       NewUUID(),
		source:   source,
		method:   method,
		action:   action,
		metadata: metadata,
		done:     make(chan struct{}),
	}
}

// GetID returns the transaction ID.
func (t *Transaction) GetID() UUID {
	return t.id
}

// ID returns the transaction ID.
func (t *Transaction) ID() UUID {
	return t.id
}

// Source returns the logical origin name.
func (t *Transaction) Source() string {
	return t.source
}

// Method returns the logical operation name.
func (t *Transaction) Method() string {
	return t.method
}

// Metadata returns the opaque metadata attached at construction.
func (t *Transaction) Metadata() []any {
	return t.metadata
}

// Log appends a human-readable trace line. With verbose logging enabled the
// line is also emitted at debug level.
func (t *Transaction) Log(line string) {
	entry := fmt.Sprintf("%s %s", Now().Format("15:04:05.000"), line)
	t.mu.Lock()
	t.trace = append(t.trace, entry)
	t.mu.Unlock()
	if IsVerboseLogging() {
		log.Debug(line, "transaction", t.id.String())
	}
}

// LogLines returns a copy of the accumulated trace.
func (t *Transaction) LogLines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.trace...)
}

// setAction installs the action after construction. Needed when the action
// closes over the transaction itself.
func (t *Transaction) setAction(action Action) {
	t.mu.Lock()
	t.action = action
	t.mu.Unlock()
}

// BindTransaction merges other into t: t's action is replaced with other's and
// other's trace is folded into t's. t becomes a continuation carrier - firing
// it now runs what was other's work, extending the same logical transaction
// with one more method call instead of a second admission. Chained calls are
// sequential within the owning action; concurrent binds are not supported.
func (t *Transaction) BindTransaction(other *Transaction) {
	other.mu.Lock()
	action := other.action
	otherTrace := append([]string(nil), other.trace...)
	other.mu.Unlock()

	t.mu.Lock()
	t.action = action
	t.trace = append(t.trace, otherTrace...)
	t.mu.Unlock()
	t.Log(fmt.Sprintf("bound transaction %s(%s.%s)", other.id.String(), other.source, other.method))
}

// Fire invokes the action. It may be called multiple times (re-entrant
// continuation after BindTransaction); only the first invocation's outcome
// populates the completion future, so the original submitter observes the
// final chained result while each chained call still gets its own return.
func (t *Transaction) Fire(ctx context.Context) (any, error) {
	t.mu.Lock()
	action := t.action
	first := !t.fired
	t.fired = true
	t.mu.Unlock()

	if action == nil {
		err := Error{Code: NoAction, Err: fmt.Errorf("transaction %s(%s.%s) has no action to fire", t.id.String(), t.source, t.method)}
		if first {
			t.settle(nil, err)
		}
		return nil, err
	}

	t.Log(fmt.Sprintf("firing %s.%s", t.source, t.method))
	var result any
	var err error
	if maxTime := MaxTime(); maxTime > 0 {
		result, err = t.fireWithTimeout(ctx, action, maxTime)
	} else {
		result, err = action(ctx)
	}
	if first {
		t.settle(result, err)
	}
	return result, err
}

// fireWithTimeout races the action against maxTime. On expiry the action's
// context is canceled (cooperative - the action may keep running in the
// background), the admission slot is released best-effort with the timeout as
// the cause, and the caller gets a Timeout-coded Error. The timer never
// outlives a normal settlement.
func (t *Transaction) fireWithTimeout(ctx context.Context, action Action, maxTime time.Duration) (any, error) {
	type outcome struct {
		result any
		err    error
	}
	actionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan outcome, 1)
	go func() {
		r, err := action(actionCtx)
		outcomes <- outcome{result: r, err: err}
	}()

	timer := time.NewTimer(maxTime)
	defer timer.Stop()
	select {
	case o := <-outcomes:
		return o.result, o.err
	case <-timer.C:
		timedOutTransactions.Inc()
		terr := Error{Code: Timeout, Err: fmt.Errorf("transaction %s(%s.%s) timed out(maxTime=%v)", t.id.String(), t.source, t.method, maxTime)}
		t.Log(terr.Error())
		// Best-effort release so queued transactions keep moving. A failure
		// here is logged, never allowed to mask the timeout.
		releaseCtx := context.WithoutCancel(ctx)
		if rerr := Retry(releaseCtx, func(ctx context.Context) error {
			return t.Release(ctx, terr)
		}, nil); rerr != nil {
			log.Warn("lock release after timeout failed", "transaction", t.id.String(), "error", rerr)
		}
		return nil, terr
	}
}

// settle resolves the completion future exactly once.
func (t *Transaction) settle(result any, err error) {
	t.once.Do(func() {
		t.result = result
		t.err = err
		close(t.done)
	})
}

// outcome reads the settled result. Only valid after done is closed.
func (t *Transaction) outcome() (any, error) {
	return t.result, t.err
}

// Wait blocks until the transaction's completion future settles (or ctx is
// done) and returns the final outcome.
func (t *Transaction) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Released reports whether the transaction has released its admission slot.
func (t *Transaction) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

// markReleased flags the transaction released and drops its bound views from
// the side table, without touching any lock. Used when a queued submit is
// abandoned before ever holding a slot. It reports whether this call did the
// transition.
func (t *Transaction) markReleased() bool {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return false
	}
	t.released = true
	bounds := t.bounds
	t.bounds = nil
	t.mu.Unlock()

	for _, b := range bounds {
		boundIndex.Delete(b)
	}
	return true
}

// Release releases the admission slot exactly once, with err as the cause
// when the work failed. Further calls are no-ops. Bound views created for the
// transaction stop resolving to it.
func (t *Transaction) Release(ctx context.Context, err error) error {
	if !t.markReleased() {
		return nil
	}
	t.mu.Lock()
	lock := t.lock
	t.mu.Unlock()
	if lock == nil {
		// Never submitted; nothing to give back.
		return nil
	}
	t.Log("released")
	return lock.Release(ctx, err)
}

// Submit hands the transaction to the process-wide lock and returns the
// method's result. The slot is released exactly once, with the error when the
// work failed; a result is never returned alongside an error.
func (t *Transaction) Submit(ctx context.Context) (any, error) {
	lock := GetLock()
	t.mu.Lock()
	t.lock = lock
	t.mu.Unlock()

	result, err := lock.Submit(ctx, t)
	if rerr := t.Release(ctx, err); rerr != nil {
		log.Warn("lock release failed", "transaction", t.id.String(), "error", rerr)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
