package txn

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewTransactionFields(t *testing.T) {
	tx := NewTransaction("billing", "Charge", nil, "invoice-42", 7)
	if tx.ID().IsNil() {
		t.Error("transaction got a nil ID")
	}
	if tx.Source() != "billing" || tx.Method() != "Charge" {
		t.Errorf("source.method = %s.%s, want billing.Charge", tx.Source(), tx.Method())
	}
	md := tx.Metadata()
	if len(md) != 2 || md[0] != "invoice-42" || md[1] != 7 {
		t.Errorf("metadata = %v, want it passed through untouched", md)
	}
	if tx.GetID() != tx.ID() {
		t.Error("GetID and ID disagree")
	}
}

func TestTransactionFireNoAction(t *testing.T) {
	ctx := context.Background()
	tx := NewTransaction("billing", "Charge", nil)
	_, err := tx.Fire(ctx)
	var e Error
	if !errors.As(err, &e) || e.Code != NoAction {
		t.Fatalf("Fire error = %v, want a NoAction coded error", err)
	}
	// The failure settled the completion future too.
	if _, werr := tx.Wait(ctx); !errors.As(werr, &e) || e.Code != NoAction {
		t.Errorf("Wait error = %v, want the same NoAction failure", werr)
	}
}

func TestTransactionFirstFireSettlesFuture(t *testing.T) {
	ctx := context.Background()
	tx := NewTransaction("billing", "Charge", func(ctx context.Context) (any, error) {
		return "first", nil
	})
	if result, err := tx.Fire(ctx); err != nil || result != "first" {
		t.Fatalf("first Fire = (%v, %v), want (first, nil)", result, err)
	}

	cont := NewTransaction("billing", "Refund", func(ctx context.Context) (any, error) {
		return "second", nil
	})
	tx.BindTransaction(cont)
	// The continuation gets its own return value...
	if result, err := tx.Fire(ctx); err != nil || result != "second" {
		t.Fatalf("continuation Fire = (%v, %v), want (second, nil)", result, err)
	}
	// ...but the future keeps the first invocation's outcome.
	if result, err := tx.Wait(ctx); err != nil || result != "first" {
		t.Errorf("Wait = (%v, %v), want (first, nil)", result, err)
	}
}

func TestTransactionBindMergesTrace(t *testing.T) {
	tx := NewTransaction("billing", "Charge", nil)
	other := NewTransaction("billing", "Refund", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	other.Log("validated refund request")
	tx.BindTransaction(other)

	joined := strings.Join(tx.LogLines(), "\n")
	if !strings.Contains(joined, "validated refund request") {
		t.Error("bound transaction's trace was not merged")
	}
	if !strings.Contains(joined, "bound transaction "+other.ID().String()) {
		t.Error("binding itself was not traced")
	}
}

func TestTransactionReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	cl := newCountingLock(1)
	SetLock(cl)

	tx := NewTransaction("billing", "Charge", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if result, err := tx.Submit(ctx); err != nil || result != "ok" {
		t.Fatalf("Submit = (%v, %v), want (ok, nil)", result, err)
	}
	if !tx.Released() {
		t.Fatal("transaction not released after Submit returned")
	}
	// Redundant releases must not reach the lock again.
	tx.Release(ctx, nil)
	tx.Release(ctx, nil)
	if got := cl.releases.Load(); got != 1 {
		t.Errorf("lock releases = %d, want exactly 1", got)
	}
}

func TestTransactionReleaseWithoutSubmit(t *testing.T) {
	tx := NewTransaction("billing", "Charge", nil)
	if err := tx.Release(context.Background(), nil); err != nil {
		t.Fatalf("releasing an unsubmitted transaction: %v", err)
	}
	if !tx.Released() {
		t.Error("transaction not marked released")
	}
}

func TestTransactionWaitContextCanceled(t *testing.T) {
	tx := NewTransaction("billing", "Charge", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := tx.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait error = %v, want deadline exceeded", err)
	}
}

func TestTransactionMetadataVisibleToLock(t *testing.T) {
	ctx := context.Background()
	l := NewSynchronousLock(1)
	SetLock(l)
	var seen []any
	l.OnBegin(func(ctx context.Context) error {
		if cur := l.Current(); cur != nil {
			seen = cur.Metadata()
		}
		return nil
	})

	tx := NewTransaction("billing", "Charge", func(ctx context.Context) (any, error) {
		return nil, nil
	}, "tenant-7")
	if _, err := tx.Submit(ctx); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != "tenant-7" {
		t.Errorf("lock hook saw metadata %v, want [tenant-7]", seen)
	}
}

func TestTransactionTimeout(t *testing.T) {
	ctx := context.Background()
	SetLock(NewSynchronousLock(1))
	SetMaxTime(80 * time.Millisecond)
	defer SetMaxTime(0)

	start := time.Now()
	_, err := Run(ctx, "billing", "SlowCharge", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	elapsed := time.Since(start)

	var e Error
	if !errors.As(err, &e) || e.Code != Timeout {
		t.Fatalf("error = %v, want a Timeout coded error", err)
	}
	if elapsed < 70*time.Millisecond {
		t.Errorf("timed out after %v, earlier than the configured limit", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("timed out after %v, far later than the configured limit", elapsed)
	}

	// The slot was force-released; the next transaction proceeds normally.
	SetMaxTime(0)
	if result, err := Run(ctx, "billing", "Charge", func(ctx context.Context) (any, error) {
		return "ok", nil
	}); err != nil || result != "ok" {
		t.Fatalf("follow-up transaction = (%v, %v), want (ok, nil)", result, err)
	}
}
