package txn

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

type transactionContextKey struct{}

// ContextWithTransaction installs the active transaction into ctx. This is the
// explicit propagation channel: a wrapped method invoked with this ctx joins t
// instead of starting a new admission.
func ContextWithTransaction(ctx context.Context, t *Transaction) context.Context {
	return context.WithValue(ctx, transactionContextKey{}, t)
}

// TransactionFromContext returns the transaction carried by ctx, if any.
func TransactionFromContext(ctx context.Context) (*Transaction, bool) {
	t, ok := ctx.Value(transactionContextKey{}).(*Transaction)
	return t, ok
}

// boundIndex is the ambient propagation channel: a side table mapping each
// bound view to its owning transaction, consulted when a receiver crosses a
// boundary that does not thread a context. Entries are dropped on release.
var boundIndex sync.Map // *Bound -> *Transaction

// Bound is a transparent delegating view of an object, owned by a
// transaction. Transactional methods invoked through it join the owning
// transaction; transactional properties read through it come back bound to
// the same transaction; everything else passes through to the target. The
// view holds the target, never the other way around - it is a disposable
// per-call artifact.
type Bound struct {
	tx     *Transaction
	target any
}

// BindToTransaction produces a bound view of obj owned by t. Binding an
// already-bound view re-binds its underlying target, never stacking proxies.
func (t *Transaction) BindToTransaction(obj any) *Bound {
	if b, ok := obj.(*Bound); ok {
		obj = b.target
	}
	b := &Bound{tx: t, target: obj}
	boundIndex.Store(b, t)
	t.mu.Lock()
	t.bounds = append(t.bounds, b)
	t.mu.Unlock()
	return b
}

// TransactionOf reports the active transaction governing obj, consulting the
// side table. A released transaction no longer governs anything.
func TransactionOf(obj any) (*Transaction, bool) {
	b, ok := obj.(*Bound)
	if !ok {
		return nil, false
	}
	v, ok := boundIndex.Load(b)
	if !ok {
		return nil, false
	}
	tx := v.(*Transaction)
	if tx.Released() {
		return nil, false
	}
	return tx, true
}

// Target returns the underlying object the view delegates to.
func (b *Bound) Target() any {
	return b.target
}

// Transaction returns the owning transaction.
func (b *Bound) Transaction() *Transaction {
	return b.tx
}

func (b *Bound) String() string {
	return fmt.Sprintf("proxy for transaction %s", b.tx.id.String())
}

// Call invokes the named transactional method on the target with the owning
// transaction installed, so the call chains into it rather than admitting
// separately.
func (b *Bound) Call(ctx context.Context, method string, args ...any) (any, error) {
	rt := reflect.TypeOf(b.target)
	info, ok := typeInfoOf(rt)
	if !ok {
		return nil, Error{Code: NotAMethod, Err: fmt.Errorf("%s is not a registered transactional type", rt)}
	}
	fn, ok := info.Methods[method]
	if !ok {
		return nil, Error{Code: NotAMethod, Err: fmt.Errorf("%s has no transactional method %q", rt, method)}
	}
	return fn(ContextWithTransaction(ctx, b.tx), b.target, args...)
}

// Get reads the named property. A transactional property comes back as a view
// bound to the same transaction, recursively, so composed collaborators
// inherit it. Any other property passes through untouched.
func (b *Bound) Get(name string) any {
	rt := reflect.TypeOf(b.target)
	if info, ok := typeInfoOf(rt); ok {
		if getter, ok := info.Properties[name]; ok {
			v := getter(b.target)
			if v == nil {
				return nil
			}
			if getMetadata().IsTransactional(reflect.TypeOf(v)) {
				return b.tx.BindToTransaction(v)
			}
			return v
		}
	}
	// Plain pass-through for everything not declared transactional.
	rv := reflect.Indirect(reflect.ValueOf(b.target))
	if rv.Kind() == reflect.Struct {
		if f := rv.FieldByName(name); f.IsValid() && f.CanInterface() {
			return f.Interface()
		}
	}
	return nil
}
