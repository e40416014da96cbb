package txn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// countingLock wraps a TransactionLock and counts admissions and releases.
// Chained (bound) calls never reach Submit, so submits equals top-level
// admissions.
type countingLock struct {
	inner    TransactionLock
	submits  atomic.Int32
	releases atomic.Int32
}

func newCountingLock(capacity int) *countingLock {
	return &countingLock{inner: NewSynchronousLock(capacity)}
}

func (c *countingLock) Submit(ctx context.Context, t *Transaction) (any, error) {
	c.submits.Add(1)
	return c.inner.Submit(ctx, t)
}

func (c *countingLock) Release(ctx context.Context, err error) error {
	c.releases.Add(1)
	return c.inner.Release(ctx, err)
}

func (c *countingLock) Current() *Transaction {
	return c.inner.Current()
}

// auditTrail records what the fixture methods did, in order.
type auditTrail struct {
	mu    sync.Mutex
	lines []string
}

func newAuditTrail() *auditTrail {
	return &auditTrail{}
}

func (a *auditTrail) add(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = append(a.lines, line)
}

func (a *auditTrail) list() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.lines...)
}

// Fixture types mimicking application repositories/services.

type userRepository struct {
	Region string
	trail  *auditTrail
}

type eventJournal struct {
	trail *auditTrail
}

type orderService struct {
	Users   *userRepository
	Journal *eventJournal
	trail   *auditTrail
}

func init() {
	Register(&userRepository{}, TypeInfo{
		Methods: map[string]MethodFunc{
			"Save": func(ctx context.Context, receiver any, args ...any) (any, error) {
				r := receiver.(*userRepository)
				name := args[0].(string)
				r.trail.add("user.save " + name)
				return "saved:" + name, nil
			},
			"Fail": func(ctx context.Context, receiver any, args ...any) (any, error) {
				r := receiver.(*userRepository)
				r.trail.add("user.fail")
				return nil, fmt.Errorf("storage rejected the write")
			},
		},
	})
	Register(&eventJournal{}, TypeInfo{
		Methods: map[string]MethodFunc{
			"Record": func(ctx context.Context, receiver any, args ...any) (any, error) {
				j := receiver.(*eventJournal)
				line := args[0].(string)
				j.trail.add("journal.record " + line)
				return len(line), nil
			},
		},
	})
	Register(&orderService{}, TypeInfo{
		Methods: map[string]MethodFunc{
			// Invokes both transactional collaborators in sequence; with the
			// ctx threaded through, the whole order is one admission.
			"PlaceOrder": func(ctx context.Context, receiver any, args ...any) (any, error) {
				s := receiver.(*orderService)
				name := args[0].(string)
				s.trail.add("order.place " + name)
				if _, err := Push(ctx, s.Users, "Save", name); err != nil {
					return nil, err
				}
				if _, err := Push(ctx, s.Journal, "Record", "order for "+name); err != nil {
					return nil, err
				}
				return "order:" + name, nil
			},
		},
		Properties: map[string]PropertyFunc{
			"Users": func(receiver any) any {
				return receiver.(*orderService).Users
			},
			"Journal": func(receiver any) any {
				return receiver.(*orderService).Journal
			},
		},
	})
}

func newOrderService(trail *auditTrail) *orderService {
	return &orderService{
		Users:   &userRepository{Region: "emea", trail: trail},
		Journal: &eventJournal{trail: trail},
		trail:   trail,
	}
}
