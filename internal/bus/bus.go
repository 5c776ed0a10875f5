package bus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/dshills/msgbus/internal/bus/dispatch"
	"github.com/dshills/msgbus/internal/bus/hierarchy"
	"github.com/dshills/msgbus/internal/bus/report"
)

// Mode selects how a message is dispatched.
type Mode int

const (
	// ModeSync runs every handler on the publishing goroutine before Publish
	// returns.
	ModeSync Mode = iota

	// ModeAsync queues the message for the worker pool.
	ModeAsync
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeAsync:
		return "async"
	default:
		return "unknown"
	}
}

// Bus is an in-process message bus. Listeners are subscribed as whole
// values; their handlers are discovered by the configured listener.Reader
// and receive every published message assignable to their declared type.
type Bus struct {
	config   Config
	logger   zerolog.Logger
	reporter *report.Reporter
	registry *Registry
	exec     *dispatch.Executor
	sync     *dispatch.SyncDispatcher
	async    *dispatch.AsyncDispatcher
	metrics  *metrics

	closed atomic.Bool

	// Stats
	publishedSync  atomic.Uint64
	publishedAsync atomic.Uint64
	unrouted       atomic.Uint64
}

// New creates a bus. Workers do not run until Start.
func New(opts ...Option) (*Bus, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	resolver := cfg.Resolver
	if resolver == nil {
		interfaces := hierarchy.NewInterfaces()
		resolver = interfaces
		if cfg.HierarchyCacheSize > 0 {
			cached, err := hierarchy.NewCached(interfaces, cfg.HierarchyCacheSize)
			if err != nil {
				return nil, fmt.Errorf("create hierarchy cache: %w", err)
			}
			resolver = cached
		}
	}

	b := &Bus{
		config:   cfg,
		logger:   cfg.Logger,
		reporter: report.NewReporter(report.LogHandler(cfg.Logger)),
	}

	b.exec = dispatch.NewExecutor(dispatch.WithPanicHandler(b.targetPanicked))
	b.sync = dispatch.NewSyncDispatcher(b.exec)
	b.async = dispatch.NewAsyncDispatcher(
		dispatch.WithWorkerCount(cfg.Workers),
		dispatch.WithQueueSize(cfg.QueueCapacity),
		dispatch.WithExecutor(b.exec),
		dispatch.WithFaultHandler(b.workerFault),
		dispatch.WithLogger(cfg.Logger),
	)

	b.metrics = newMetrics(cfg.Registerer, b)
	if b.metrics != nil {
		b.reporter.Add(b.metrics)
	}
	for _, h := range cfg.ErrorHandlers {
		b.reporter.Add(h)
	}

	b.registry = NewRegistry(cfg.Reader, resolver, cfg.Factory, b.reporter)
	return b, nil
}

// Start launches the worker pool. Cancelling ctx interrupts the workers;
// each reports a worker fault and exits without being replaced.
func (b *Bus) Start(ctx context.Context) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	err := b.async.Start(ctx)
	switch {
	case errors.Is(err, dispatch.ErrAlreadyRunning):
		return ErrAlreadyRunning
	case errors.Is(err, dispatch.ErrStopped):
		return ErrBusClosed
	case err != nil:
		return err
	}
	b.logger.Info().
		Int("workers", b.config.Workers).
		Int("queue_capacity", b.config.QueueCapacity).
		Msg("message bus started")
	return nil
}

// Subscribe registers every handler of l. A type without valid handlers is
// accepted and ignored. Subscribing the same l twice has no further effect.
func (b *Bus) Subscribe(l any) error {
	return b.registry.Subscribe(l)
}

// Unsubscribe removes l from all of its subscriptions. It returns false for
// nil, for types never subscribed and for listeners that were not present.
func (b *Bus) Unsubscribe(l any) bool {
	return b.registry.Unsubscribe(l)
}

// Publish dispatches message in the given mode. Handler failures are
// reported to the error handlers and never returned here.
//
// In ModeAsync Publish blocks while the queue is full and returns ctx.Err()
// if ctx ends first. ctx is otherwise only a source of values for handlers.
func (b *Bus) Publish(ctx context.Context, message any, mode Mode) error {
	if message == nil {
		return ErrInvalidMessage
	}
	if ctx == nil {
		ctx = context.Background()
	}

	switch mode {
	case ModeSync:
		return b.PublishSync(ctx, message)
	case ModeAsync:
		return b.PublishAsync(ctx, message)
	default:
		return fmt.Errorf("unknown dispatch mode %d", mode)
	}
}

// PublishSync runs every matching handler, in priority order, before
// returning.
func (b *Bus) PublishSync(ctx context.Context, message any) error {
	if message == nil {
		return ErrInvalidMessage
	}

	targets := b.resolve(message)
	b.publishedSync.Add(1)
	b.metrics.observePublish(ModeSync, len(targets) > 0)
	if len(targets) == 0 {
		b.unrouted.Add(1)
		return nil
	}

	b.sync.Dispatch(dispatch.NewRequest(ctx, message, targets))
	return nil
}

// PublishAsync resolves the targets now and queues the message for the
// worker pool. Subscriptions made after PublishAsync returns do not see it.
func (b *Bus) PublishAsync(ctx context.Context, message any) error {
	if message == nil {
		return ErrInvalidMessage
	}
	if b.closed.Load() {
		return ErrBusClosed
	}
	if !b.async.IsRunning() {
		select {
		case <-b.async.Done():
			return b.unschedulable(message, uuid.Nil, dispatch.ErrWorkerInterrupted)
		default:
			return ErrNotRunning
		}
	}

	targets := b.resolve(message)
	b.publishedAsync.Add(1)
	b.metrics.observePublish(ModeAsync, len(targets) > 0)
	if len(targets) == 0 {
		b.unrouted.Add(1)
		return nil
	}

	req := dispatch.NewRequest(ctx, message, targets)
	err := b.async.Enqueue(ctx, req)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dispatch.ErrStopped):
		return ErrBusClosed
	case errors.Is(err, dispatch.ErrNotRunning):
		return ErrNotRunning
	case errors.Is(err, dispatch.ErrWorkerInterrupted):
		return b.unschedulable(message, req.ID, err)
	default:
		return err
	}
}

func (b *Bus) unschedulable(message any, id uuid.UUID, err error) error {
	b.reporter.Report(report.New(report.KindScheduling, report.SeverityError, err,
		"no dispatch workers left").WithPayload(message).WithRequest(id))
	return err
}

func (b *Bus) resolve(message any) []dispatch.Target {
	subs := b.registry.ResolveTargets(reflect.TypeOf(message))
	if len(subs) == 0 {
		return nil
	}
	targets := make([]dispatch.Target, len(subs))
	for i, s := range subs {
		targets[i] = s
	}
	return targets
}

// Targets returns the subscriptions a message of type t would be delivered
// to, in dispatch order.
func (b *Bus) Targets(t reflect.Type) []Subscription {
	return b.registry.ResolveTargets(t)
}

// Registry returns the subscription registry.
func (b *Bus) Registry() *Registry {
	return b.registry
}

// AddErrorHandler registers an additional error handler. Handlers are
// called synchronously in registration order and must not panic.
func (b *Bus) AddErrorHandler(h report.Handler) {
	b.reporter.Add(h)
}

// ErrorHandlers returns the registered error handlers, default first.
func (b *Bus) ErrorHandlers() []report.Handler {
	return b.reporter.Handlers()
}

// Shutdown stops accepting async messages and waits for the workers to
// drain the queue. If ctx ends first, the workers are interrupted and the
// remaining queued requests are abandoned. Sync publishing keeps working.
func (b *Bus) Shutdown(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	err := b.async.Stop(ctx)
	if errors.Is(err, dispatch.ErrNotRunning) {
		err = nil
	}
	// Workers interrupted through the start context leave the queue behind
	// even when Stop itself succeeds.
	if depth := b.async.QueueDepth(); depth > 0 {
		err = multierr.Append(err, fmt.Errorf("%w: %d", ErrRequestsAbandoned, depth))
	}

	stats := b.Stats()
	ev := b.logger.Info()
	if err != nil {
		ev = b.logger.Warn().Err(err)
	}
	ev.Uint64("published_sync", stats.PublishedSync).
		Uint64("published_async", stats.PublishedAsync).
		Uint64("errors", stats.Errors).
		Msg("message bus shut down")
	return err
}

// IsRunning reports whether the worker pool is running.
func (b *Bus) IsRunning() bool {
	return b.async.IsRunning()
}

func (b *Bus) workerFault(worker int, err error) {
	b.reporter.Report(report.New(report.KindWorkerFault, report.SeverityFatal, err,
		fmt.Sprintf("dispatch worker %d interrupted", worker)))
}

func (b *Bus) targetPanicked(message any, value any, stack []byte) {
	b.reporter.Report(report.New(report.KindInvocation, report.SeverityError,
		&dispatch.PanicError{Value: value, Stack: stack}, "subscription panicked").
		WithPayload(message).
		WithStack(stack))
}

// Stats contains message bus statistics.
type Stats struct {
	// PublishedSync and PublishedAsync count accepted publish calls.
	PublishedSync  uint64
	PublishedAsync uint64

	// Unrouted counts messages that matched no subscription.
	Unrouted uint64

	// Invocations is the number of handler calls; Failed and Panicked
	// are the ones that did not succeed.
	Invocations uint64
	Failed      uint64
	Panicked    uint64

	// Errors is the number of error records reported.
	Errors uint64

	QueueDepth      int
	QueueCapacity   int
	Workers         int
	WorkerFaults    uint64
	BlockedEnqueues uint64

	MessageTypes  int
	ListenerTypes int
	NonListeners  int
	Subscriptions int
	Bindings      int
}

// Stats returns current bus statistics.
func (b *Bus) Stats() Stats {
	exec := b.exec.Stats()
	async := b.async.Stats()
	counts := b.registry.Counts()

	return Stats{
		PublishedSync:   b.publishedSync.Load(),
		PublishedAsync:  b.publishedAsync.Load(),
		Unrouted:        b.unrouted.Load(),
		Invocations:     exec.Executed,
		Failed:          exec.Failed,
		Panicked:        exec.Panicked,
		Errors:          b.reporter.Count(),
		QueueDepth:      async.QueueDepth,
		QueueCapacity:   async.QueueSize,
		Workers:         async.Workers,
		WorkerFaults:    async.Faults,
		BlockedEnqueues: async.Blocked,
		MessageTypes:    counts.MessageTypes,
		ListenerTypes:   counts.ListenerTypes,
		NonListeners:    counts.NonListeners,
		Subscriptions:   counts.Subscriptions,
		Bindings:        counts.Bindings,
	}
}
