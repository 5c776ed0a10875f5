package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// AsyncDispatcher executes requests on a fixed pool of workers fed by a
// bounded queue. Enqueue blocks while the queue is full.
type AsyncDispatcher struct {
	// Configuration
	queueSize   int
	workerCount int

	executor     *Executor
	faultHandler FaultHandler
	logger       zerolog.Logger

	// mu guards state transitions and the queue close. Senders hold the
	// read lock only long enough to register in senders.
	mu       sync.RWMutex
	state    atomic.Int32
	queue    chan Request
	stopping chan struct{}
	halted   chan struct{}
	senders  sync.WaitGroup
	cancel   context.CancelFunc
	group    *errgroup.Group

	// Stats
	enqueued  atomic.Uint64
	blocked   atomic.Uint64
	processed atomic.Uint64
	faults    atomic.Uint64
	waitNs    atomic.Int64
	alive     atomic.Int32
}

// AsyncOption configures an AsyncDispatcher.
type AsyncOption func(*AsyncDispatcher)

// WithQueueSize sets the queue capacity.
func WithQueueSize(size int) AsyncOption {
	return func(d *AsyncDispatcher) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) AsyncOption {
	return func(d *AsyncDispatcher) {
		if count > 0 {
			d.workerCount = count
		}
	}
}

// WithExecutor shares exec with other dispatchers.
func WithExecutor(exec *Executor) AsyncOption {
	return func(d *AsyncDispatcher) {
		if exec != nil {
			d.executor = exec
		}
	}
}

// WithFaultHandler sets the callback for interrupted workers.
func WithFaultHandler(h FaultHandler) AsyncOption {
	return func(d *AsyncDispatcher) {
		if h != nil {
			d.faultHandler = h
		}
	}
}

// WithLogger sets the logger for worker lifecycle events.
func WithLogger(logger zerolog.Logger) AsyncOption {
	return func(d *AsyncDispatcher) {
		d.logger = logger
	}
}

// NewAsyncDispatcher creates a new asynchronous dispatcher.
func NewAsyncDispatcher(opts ...AsyncOption) *AsyncDispatcher {
	d := &AsyncDispatcher{
		queueSize:    1024,
		workerCount:  4,
		faultHandler: defaultFaultHandler,
		logger:       zerolog.Nop(),
		stopping:     make(chan struct{}),
		halted:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.executor == nil {
		d.executor = NewExecutor()
	}
	d.queue = make(chan Request, d.queueSize)
	return d
}

// Start launches the worker pool. Cancelling ctx interrupts the workers:
// each one reports ErrWorkerInterrupted to the fault handler and exits.
func (d *AsyncDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state.Load() {
	case stateRunning:
		return ErrAlreadyRunning
	case stateStopped:
		return ErrStopped
	}

	if ctx == nil {
		ctx = context.Background()
	}
	workerCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.group = &errgroup.Group{}

	for i := 0; i < d.workerCount; i++ {
		id := i
		d.alive.Add(1)
		d.group.Go(func() error {
			defer d.alive.Add(-1)
			return d.worker(workerCtx, id)
		})
	}

	group := d.group
	go func() {
		_ = group.Wait()
		close(d.halted)
	}()

	d.state.Store(stateRunning)
	d.logger.Debug().
		Int("workers", d.workerCount).
		Int("queue_size", d.queueSize).
		Msg("dispatch workers started")
	return nil
}

// worker consumes requests in FIFO order until the queue is closed or ctx
// is cancelled.
func (d *AsyncDispatcher) worker(ctx context.Context, id int) error {
	log := d.logger.With().Int("worker", id).Logger()
	log.Debug().Msg("worker started")

	interrupted := func() error {
		d.faults.Add(1)
		d.faultHandler(id, ErrWorkerInterrupted)
		log.Debug().Err(ctx.Err()).Msg("worker interrupted")
		return ErrWorkerInterrupted
	}

	for {
		if ctx.Err() != nil {
			return interrupted()
		}
		select {
		case <-ctx.Done():
			return interrupted()
		case req, ok := <-d.queue:
			if !ok {
				log.Debug().Msg("worker stopped")
				return nil
			}
			if !req.Enqueued.IsZero() {
				d.waitNs.Add(time.Since(req.Enqueued).Nanoseconds())
			}
			req.Execute(d.executor)
			d.processed.Add(1)
		}
	}
}

// Enqueue submits req, blocking while the queue is full. It returns
// ctx.Err() if ctx ends while blocked, ErrStopped once Stop has begun and
// ErrWorkerInterrupted if every worker has exited.
func (d *AsyncDispatcher) Enqueue(ctx context.Context, req Request) error {
	return d.enqueue(ctx, req, true)
}

// TryEnqueue submits req without blocking, returning ErrQueueFull if the
// queue is at capacity.
func (d *AsyncDispatcher) TryEnqueue(req Request) error {
	return d.enqueue(context.Background(), req, false)
}

func (d *AsyncDispatcher) enqueue(ctx context.Context, req Request, block bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	switch d.state.Load() {
	case stateIdle:
		d.mu.RUnlock()
		return ErrNotRunning
	case stateStopped:
		d.mu.RUnlock()
		return ErrStopped
	}
	d.senders.Add(1)
	d.mu.RUnlock()
	defer d.senders.Done()

	select {
	case <-d.halted:
		return ErrWorkerInterrupted
	default:
	}

	req.Enqueued = time.Now()

	select {
	case d.queue <- req:
		d.enqueued.Add(1)
		return nil
	default:
	}
	if !block {
		return ErrQueueFull
	}

	d.blocked.Add(1)
	select {
	case d.queue <- req:
		d.enqueued.Add(1)
		return nil
	case <-d.stopping:
		return ErrStopped
	case <-d.halted:
		return ErrWorkerInterrupted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting requests and lets the workers drain the queue.
// If ctx ends first the workers are interrupted, queued requests are
// abandoned and ctx.Err() is returned without waiting for handlers still
// running. Stop is terminal.
func (d *AsyncDispatcher) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.Lock()
	switch d.state.Load() {
	case stateIdle:
		d.mu.Unlock()
		return ErrNotRunning
	case stateStopped:
		d.mu.Unlock()
		return ErrStopped
	}
	d.state.Store(stateStopped)
	close(d.stopping)
	d.mu.Unlock()

	// No new sender can register now; wait out the ones already blocked
	// before closing the queue under them.
	d.senders.Wait()
	close(d.queue)

	d.logger.Debug().Int("queued", len(d.queue)).Msg("draining dispatch queue")

	select {
	case <-d.halted:
		d.cancel()
		return nil
	case <-ctx.Done():
		// Workers blocked in a handler exit once it returns.
		d.cancel()
		return ctx.Err()
	}
}

// Done is closed once every worker has exited.
func (d *AsyncDispatcher) Done() <-chan struct{} {
	return d.halted
}

// QueueDepth returns the current number of requests in the queue.
func (d *AsyncDispatcher) QueueDepth() int {
	return len(d.queue)
}

// QueueSize returns the queue capacity.
func (d *AsyncDispatcher) QueueSize() int {
	return d.queueSize
}

// IsRunning returns true between Start and Stop while workers are alive.
func (d *AsyncDispatcher) IsRunning() bool {
	if d.state.Load() != stateRunning {
		return false
	}
	select {
	case <-d.halted:
		return false
	default:
		return true
	}
}

// Executor returns the executor used by the workers.
func (d *AsyncDispatcher) Executor() *Executor {
	return d.executor
}

// Stats returns dispatcher statistics.
func (d *AsyncDispatcher) Stats() AsyncDispatcherStats {
	processed := d.processed.Load()
	waitNs := d.waitNs.Load()

	var avgNs int64
	if processed > 0 {
		avgNs = waitNs / int64(processed)
	}

	return AsyncDispatcherStats{
		Enqueued:      d.enqueued.Load(),
		Blocked:       d.blocked.Load(),
		Processed:     processed,
		Faults:        d.faults.Load(),
		Workers:       int(d.alive.Load()),
		QueueDepth:    d.QueueDepth(),
		QueueSize:     d.queueSize,
		AvgQueueDelay: time.Duration(avgNs),
	}
}

// AsyncDispatcherStats contains statistics for an async dispatcher.
type AsyncDispatcherStats struct {
	// Enqueued is the number of requests accepted by the queue.
	Enqueued uint64

	// Blocked is the number of Enqueue calls that found the queue full.
	Blocked uint64

	// Processed is the number of requests a worker has executed.
	Processed uint64

	// Faults is the number of workers that exited on interruption.
	Faults uint64

	// Workers is the number of live workers.
	Workers int

	// QueueDepth is the current number of requests waiting.
	QueueDepth int

	// QueueSize is the queue capacity.
	QueueSize int

	// AvgQueueDelay is the average time a request waited in the queue.
	AvgQueueDelay time.Duration
}
