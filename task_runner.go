package txn

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TaskRunner fans out tasks to goroutines while capping how many run at once.
// PushAll uses it to submit independent transactions concurrently.
type TaskRunner struct {
	maxThreadCount int
	eg             *errgroup.Group
	limiterChan    chan bool
	context        context.Context
}

func NewTaskRunner(ctx context.Context, maxThreadCount int) *TaskRunner {
	if maxThreadCount < 1 {
		maxThreadCount = 1
	}
	eg, ctx2 := errgroup.WithContext(ctx)
	return &TaskRunner{
		maxThreadCount: maxThreadCount,
		limiterChan:    make(chan bool, maxThreadCount),
		eg:             eg,
		context:        ctx2,
	}
}

func (tr *TaskRunner) GetContext() context.Context {
	return tr.context
}

func (tr *TaskRunner) Go(task func() error) {
	t := func() error {
		err := task()
		// Free up this thread slot, on the error path too, so enqueuers never
		// wedge on a slot owned by a failed task.
		<-tr.limiterChan
		return err
	}
	tr.eg.Go(t)
	// Occupy a thread slot.
	tr.limiterChan <- true
}

// Wrapper to errgroup.Wait.
func (tr *TaskRunner) Wait() error {
	defer close(tr.limiterChan)
	return tr.eg.Wait()
}
