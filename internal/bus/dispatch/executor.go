package dispatch

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// Result represents the outcome of a handler execution.
type Result struct {
	// Success is true if the handler completed without error or panic.
	Success bool

	// Error is the error returned by the handler, or a *PanicError.
	Error error

	// Panicked is true if the handler panicked.
	Panicked bool

	// Duration is how long the handler took to execute.
	Duration time.Duration
}

// IsSuccess returns true if the result indicates successful execution.
func (r Result) IsSuccess() bool {
	return r.Success && !r.Panicked && r.Error == nil
}

// IsPanic returns true if the result indicates a panic.
func (r Result) IsPanic() bool {
	return r.Panicked
}

// Executor runs handlers with panic recovery and timing, and keeps
// execution counters. One Executor is shared by all dispatch paths of a bus.
type Executor struct {
	panicHandler PanicHandler

	executed    atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	panicked    atomic.Uint64
	escaped     atomic.Uint64
	totalTimeNs atomic.Int64
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithPanicHandler sets the handler for panics that escape a Target.
func WithPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		if h != nil {
			e.panicHandler = h
		}
	}
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		panicHandler: defaultPanicHandler,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a handler and returns the result.
// It recovers from panics and captures timing information.
func (e *Executor) Execute(ctx context.Context, message any, handler Handler) (result Result) {
	start := time.Now()
	e.executed.Add(1)

	defer func() {
		result.Duration = time.Since(start)
		e.totalTimeNs.Add(result.Duration.Nanoseconds())

		if r := recover(); r != nil {
			result.Success = false
			result.Panicked = true
			result.Error = &PanicError{Value: r, Stack: debug.Stack()}
		}

		switch {
		case result.Panicked:
			e.panicked.Add(1)
		case result.Error != nil:
			e.failed.Add(1)
		default:
			e.succeeded.Add(1)
		}
	}()

	if err := handler.Handle(ctx, message); err != nil {
		result.Error = err
		return result
	}
	result.Success = true
	return result
}

// deliver runs one target, containing any panic that escapes it.
func (e *Executor) deliver(ctx context.Context, t Target, message any) {
	defer func() {
		if r := recover(); r != nil {
			e.escaped.Add(1)
			stack := debug.Stack()
			// The panic handler must not take the dispatch loop down either.
			func() {
				defer func() { _ = recover() }()
				e.panicHandler(message, r, stack)
			}()
		}
	}()
	t.Deliver(ctx, message, e)
}

// ExecutorStats contains handler execution counters.
type ExecutorStats struct {
	// Executed is the number of handler invocations.
	Executed uint64

	// Succeeded is the number of invocations that returned nil.
	Succeeded uint64

	// Failed is the number of invocations that returned an error.
	Failed uint64

	// Panicked is the number of invocations that panicked.
	Panicked uint64

	// Escaped is the number of panics raised by targets outside a handler.
	Escaped uint64

	// TotalDuration is the cumulative time spent in handlers.
	TotalDuration time.Duration

	// AvgDuration is the average handler execution time.
	AvgDuration time.Duration
}

// Stats returns execution counters.
// Values are read without a lock and may be slightly inconsistent under load.
func (e *Executor) Stats() ExecutorStats {
	executed := e.executed.Load()
	totalNs := e.totalTimeNs.Load()

	var avgNs int64
	if executed > 0 {
		avgNs = totalNs / int64(executed)
	}

	return ExecutorStats{
		Executed:      executed,
		Succeeded:     e.succeeded.Load(),
		Failed:        e.failed.Load(),
		Panicked:      e.panicked.Load(),
		Escaped:       e.escaped.Load(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}
