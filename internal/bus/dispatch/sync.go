package dispatch

import (
	"sync/atomic"
)

// SyncDispatcher executes requests on the caller's goroutine.
type SyncDispatcher struct {
	executor *Executor

	dispatched atomic.Uint64
}

// NewSyncDispatcher creates a synchronous dispatcher sharing exec.
// A nil exec gets a fresh Executor.
func NewSyncDispatcher(exec *Executor) *SyncDispatcher {
	if exec == nil {
		exec = NewExecutor()
	}
	return &SyncDispatcher{executor: exec}
}

// Dispatch delivers req to all of its targets, in order, before returning.
func (d *SyncDispatcher) Dispatch(req Request) {
	d.dispatched.Add(1)
	req.Execute(d.executor)
}

// Dispatched returns the number of requests dispatched.
func (d *SyncDispatcher) Dispatched() uint64 {
	return d.dispatched.Load()
}

// Executor returns the executor used by the dispatcher.
func (d *SyncDispatcher) Executor() *Executor {
	return d.executor
}
