// Package txn provides method-level transaction demarcation: a wrapped method
// either starts a new Transaction and submits it to the process-wide
// TransactionLock, or joins the transaction already in flight for its caller.
// "Transaction" here means a serialized (or capacity-bounded) unit of work,
// not a database ACID transaction; rollback stays with the wrapped method.
// The package supplies the Transaction entity, the TransactionLock admission
// contract with a reference in-process SynchronousLock, FIFO Lock/MultiLock
// primitives, and the binding machinery that propagates the live transaction
// across nested calls, overridden methods and composed collaborators.
// Cross-process admission coordination lives in the redis subpackage.
package txn

// Timeout model
//
// A fired transaction is bounded by two timers:
//  1. The caller-provided context deadline/cancellation, which propagates into
//     the wrapped action.
//  2. The process-wide maxTime (SetMaxTime) raced against every fired action.
//
// When maxTime elapses first, the caller settles with a Timeout-coded Error,
// the action's context is canceled (cooperatively; the action may keep running
// in the background) and the admission slot is released best-effort so queued
// transactions keep moving.
