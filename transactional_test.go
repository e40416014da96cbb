package txn

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestTransactionalSingleAdmission(t *testing.T) {
	ctx := context.Background()
	cl := newCountingLock(1)
	SetLock(cl)
	repo := &userRepository{Region: "emea", trail: newAuditTrail()}

	result, err := Push(ctx, repo, "Save", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if result != "saved:alice" {
		t.Errorf("result = %v, want saved:alice", result)
	}
	if cl.submits.Load() != 1 || cl.releases.Load() != 1 {
		t.Errorf("lock saw (submits=%d, releases=%d), want (1, 1)", cl.submits.Load(), cl.releases.Load())
	}
}

func TestTransactionalNestedCallsJoin(t *testing.T) {
	ctx := context.Background()
	cl := newCountingLock(1)
	SetLock(cl)
	trail := newAuditTrail()
	svc := newOrderService(trail)

	result, err := Push(ctx, svc, "PlaceOrder", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if result != "order:alice" {
		t.Errorf("result = %v, want order:alice", result)
	}
	// PlaceOrder invoked two transactional collaborators; all of it was one
	// admission, or the nested calls would have deadlocked on capacity 1.
	if got := cl.submits.Load(); got != 1 {
		t.Errorf("admissions = %d, want 1", got)
	}
	if got := cl.releases.Load(); got != 1 {
		t.Errorf("releases = %d, want 1", got)
	}
	want := []string{"order.place alice", "user.save alice", "journal.record order for alice"}
	got := trail.list()
	if len(got) != len(want) {
		t.Fatalf("trail = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trail = %v, want %v", got, want)
		}
	}
}

func TestTransactionalAmbientReceiverUnwrap(t *testing.T) {
	ctx := context.Background()
	cl := newCountingLock(1)
	SetLock(cl)
	trail := newAuditTrail()
	repo := &userRepository{Region: "emea", trail: trail}
	info, ok := typeInfoOf(reflect.TypeOf(repo))
	if !ok {
		t.Fatal("fixture type not registered")
	}
	save := info.Methods["Save"]

	var view *Bound
	result, err := Run(ctx, "billing", "Settle", func(actx context.Context) (any, error) {
		cur, _ := TransactionFromContext(actx)
		view = cur.BindToTransaction(repo)
		// Bare context and the view as receiver: only the ambient side table
		// links this call to the live transaction. The method must still get
		// the underlying target, not the view.
		return save(context.Background(), view, "bob")
	})
	if err != nil {
		t.Fatal(err)
	}
	if result != "saved:bob" {
		t.Errorf("result = %v, want saved:bob", result)
	}
	if got := cl.submits.Load(); got != 1 {
		t.Errorf("admissions = %d, want 1: the ambient call must join, not re-admit", got)
	}

	// With its transaction released the view no longer joins anything; a call
	// through it starts fresh and must still unwrap to the target.
	if result, err := save(context.Background(), view, "carol"); err != nil || result != "saved:carol" {
		t.Fatalf("post-release call = (%v, %v), want (saved:carol, nil)", result, err)
	}
	if got := cl.submits.Load(); got != 2 {
		t.Errorf("admissions = %d, want 2 after the fresh call", got)
	}
}

func TestTransactionalErrorReleasesSlot(t *testing.T) {
	ctx := context.Background()
	cl := newCountingLock(1)
	SetLock(cl)
	repo := &userRepository{trail: newAuditTrail()}

	result, err := Push(ctx, repo, "Fail")
	if err == nil || !strings.Contains(err.Error(), "storage rejected") {
		t.Fatalf("error = %v, want the method's failure", err)
	}
	if result != nil {
		t.Errorf("result = %v alongside an error, want nil", result)
	}
	if cl.releases.Load() != 1 {
		t.Errorf("releases = %d, want 1: a failed method must still free the slot", cl.releases.Load())
	}

	// The slot is usable again.
	if result, err := Push(ctx, repo, "Save", "bob"); err != nil || result != "saved:bob" {
		t.Fatalf("follow-up = (%v, %v), want (saved:bob, nil)", result, err)
	}
}

func TestTransactionalNilMethodPanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("wrapping a nil method did not panic")
		}
		e, ok := r.(Error)
		if !ok || e.Code != NotAMethod {
			t.Fatalf("panic value = %v, want a NotAMethod coded Error", r)
		}
	}()
	Transactional("billing", "Charge", nil)
}

func TestTransactionalSuperCall(t *testing.T) {
	ctx := context.Background()
	cl := newCountingLock(1)
	SetLock(cl)

	var baseRan bool
	base := Transactional("account", "Close", func(ctx context.Context, receiver any, args ...any) (any, error) {
		baseRan = true
		return "closed", nil
	})
	override := Transactional("premiumAccount", "Close", func(ctx context.Context, receiver any, args ...any) (any, error) {
		// Augment, then delegate to the parent implementation.
		return TransactionalSuperCall(ctx, base, receiver, args...)
	})

	result, err := override(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result != "closed" || !baseRan {
		t.Errorf("result = %v (baseRan=%v), want the parent's result", result, baseRan)
	}
	// Override plus delegated parent: still exactly one admission.
	if got := cl.submits.Load(); got != 1 {
		t.Errorf("admissions = %d, want 1", got)
	}
}

func TestTransactionalSuperCallNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("super call with a nil method did not panic")
		}
	}()
	TransactionalSuperCall(context.Background(), nil, nil)
}

func TestPushUnknownMethod(t *testing.T) {
	ctx := context.Background()
	SetLock(NewSynchronousLock(1))
	repo := &userRepository{trail: newAuditTrail()}

	_, err := Push(ctx, repo, "Nope")
	var e Error
	if !errors.As(err, &e) || e.Code != NotAMethod {
		t.Fatalf("error = %v, want a NotAMethod coded error", err)
	}
	_, err = Push(ctx, struct{}{}, "Anything")
	if !errors.As(err, &e) || e.Code != NotAMethod {
		t.Fatalf("error = %v, want a NotAMethod coded error for unregistered type", err)
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	SetLock(NewSynchronousLock(1))

	result, err := Run(ctx, "report", "Build", func(ctx context.Context) (any, error) {
		if _, ok := TransactionFromContext(ctx); !ok {
			t.Error("action ran without its transaction in the context")
		}
		return 42, nil
	})
	if err != nil || result != 42 {
		t.Fatalf("Run = (%v, %v), want (42, nil)", result, err)
	}

	if _, err := Run(ctx, "report", "Build", nil); err == nil {
		t.Fatal("Run with a nil action did not fail")
	}
}

func TestPushAll(t *testing.T) {
	ctx := context.Background()
	SetLock(NewSynchronousLock(2))
	trail := newAuditTrail()
	repo := &userRepository{trail: trail}

	results, err := PushAll(ctx, 2,
		Call{Issuer: repo, Method: "Save", Args: []any{"alice"}},
		Call{Issuer: repo, Method: "Save", Args: []any{"bob"}},
		Call{Issuer: repo, Method: "Save", Args: []any{"carol"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{"saved:alice", "saved:bob", "saved:carol"}
	if len(results) != len(want) {
		t.Fatalf("results = %v, want %v", results, want)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("results = %v, want them in call order %v", results, want)
		}
	}
}

func TestPushAllFirstErrorWins(t *testing.T) {
	ctx := context.Background()
	SetLock(NewSynchronousLock(2))
	repo := &userRepository{trail: newAuditTrail()}

	results, err := PushAll(ctx, 2,
		Call{Issuer: repo, Method: "Save", Args: []any{"alice"}},
		Call{Issuer: repo, Method: "Fail"},
	)
	if err == nil {
		t.Fatal("expected the failing call's error")
	}
	if results != nil {
		t.Errorf("results = %v alongside an error, want nil", results)
	}
}
