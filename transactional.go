package txn

import (
	"context"
	"fmt"
	"reflect"
)

// Transactional wraps a method so that invoking the wrapped form either joins
// the transaction already active for the caller (chaining into it under the
// same admission slot) or starts a fresh Transaction and submits it to the
// process-wide lock, releasing the slot exactly once - with the error when
// the method failed. The optional metadata rides on the Transaction untouched.
//
// Wrapping a nil method is a programmer error and fails fast here, at
// decoration time, not at call time.
func Transactional(source, method string, fn MethodFunc, metadata ...any) MethodFunc {
	if fn == nil {
		panic(Error{Code: NotAMethod, Err: fmt.Errorf("transactional: %s.%s is not a method", source, method)})
	}
	return func(ctx context.Context, receiver any, args ...any) (any, error) {
		active := activeTransactionFor(ctx, receiver)
		// The receiver arrives as a bound view when propagation came through
		// the ambient side table; the method itself always gets the target.
		if b, ok := receiver.(*Bound); ok {
			receiver = b.Target()
		}
		if active != nil {
			// Chained call during an already-fired transaction: extend it in
			// place instead of a second admission, which would deadlock.
			cont := NewTransaction(source, method, nil, metadata...)
			cont.setAction(func(actx context.Context) (any, error) {
				return fn(ContextWithTransaction(actx, active), receiver, args...)
			})
			active.BindTransaction(cont)
			return active.Fire(ctx)
		}

		t := NewTransaction(source, method, nil, metadata...)
		t.setAction(func(actx context.Context) (any, error) {
			return fn(ContextWithTransaction(actx, t), receiver, args...)
		})
		return t.Submit(ctx)
	}
}

// activeTransactionFor resolves the transaction governing this call, checking
// the explicit channel (ctx) first, then the ambient side table keyed by the
// receiver's bound view.
func activeTransactionFor(ctx context.Context, receiver any) *Transaction {
	if t, ok := TransactionFromContext(ctx); ok && !t.Released() {
		return t
	}
	if t, ok := TransactionOf(receiver); ok {
		return t
	}
	return nil
}

// TransactionalSuperCall invokes an overridden (parent) implementation while
// preserving transaction continuity. Parent delegation bypasses the normal
// interception, so this helper re-installs the process lock's current
// transaction explicitly; the parent call then chains instead of admitting a
// second time.
func TransactionalSuperCall(ctx context.Context, method MethodFunc, receiver any, args ...any) (any, error) {
	if method == nil {
		panic(Error{Code: NotAMethod, Err: fmt.Errorf("transactional super call: not a method")})
	}
	if cur := GetLock().Current(); cur != nil && !cur.Released() {
		ctx = ContextWithTransaction(ctx, cur)
	}
	return method(ctx, receiver, args...)
}

// Push starts a transaction around a registered method of issuer, outside of
// any pre-wrapped call path, and returns the method's eventual result.
func Push(ctx context.Context, issuer any, method string, args ...any) (any, error) {
	rt := reflect.TypeOf(issuer)
	info, ok := typeInfoOf(rt)
	if !ok {
		return nil, Error{Code: NotAMethod, Err: fmt.Errorf("%s is not a registered transactional type", rt)}
	}
	fn, ok := info.Methods[method]
	if !ok {
		return nil, Error{Code: NotAMethod, Err: fmt.Errorf("%s has no transactional method %q", rt, method)}
	}
	return fn(ctx, issuer, args...)
}

// Run executes an arbitrary action under a fresh transaction: construct,
// submit to the process lock, release exactly once, return the outcome.
func Run(ctx context.Context, source, method string, action Action) (any, error) {
	if action == nil {
		return nil, Error{Code: NoAction, Err: fmt.Errorf("run %s.%s: no action", source, method)}
	}
	t := NewTransaction(source, method, nil)
	t.setAction(func(actx context.Context) (any, error) {
		return action(ContextWithTransaction(actx, t))
	})
	return t.Submit(ctx)
}

// Call describes one method invocation for PushAll.
type Call struct {
	Issuer any
	Method string
	Args   []any
}

// PushAll submits the calls concurrently, at most maxThreadCount in flight at
// once, and returns the results in call order. The first error wins; later
// results are discarded.
func PushAll(ctx context.Context, maxThreadCount int, calls ...Call) ([]any, error) {
	tr := NewTaskRunner(ctx, maxThreadCount)
	results := make([]any, len(calls))
	for i, c := range calls {
		i, c := i, c
		tr.Go(func() error {
			r, err := Push(tr.GetContext(), c.Issuer, c.Method, c.Args...)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := tr.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
