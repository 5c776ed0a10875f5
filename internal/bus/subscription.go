package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dshills/msgbus/internal/bus/dispatch"
	"github.com/dshills/msgbus/internal/bus/listener"
	"github.com/dshills/msgbus/internal/bus/report"
)

// Subscription binds one handler descriptor to the listener instances
// currently subscribed through it. Subscriptions are created once per
// descriptor and are never destroyed; an empty one delivers to nobody.
type Subscription interface {
	dispatch.Target

	// Handler returns the descriptor the subscription was built from.
	Handler() listener.Handler

	// Seq is the registration sequence number. It breaks priority ties.
	Seq() uint64

	// Subscribe adds l. It returns false if l was already present.
	Subscribe(l any) bool

	// Unsubscribe removes l. It returns false if l was not present.
	Unsubscribe(l any) bool

	// Listeners returns a snapshot of the subscribed listeners.
	Listeners() []any

	// Len returns the number of subscribed listeners.
	Len() int
}

// BaseSubscription is the default Subscription. Its listener set is
// copy-on-write: Deliver iterates a snapshot and never blocks writers.
type BaseSubscription struct {
	handler  listener.Handler
	seq      uint64
	reporter *report.Reporter

	mu        sync.Mutex // serializes writers
	listeners atomic.Pointer[[]any]

	invoked atomic.Uint64
	failed  atomic.Uint64
}

// NewBaseSubscription creates an empty subscription for sc.Handler.
func NewBaseSubscription(sc SubscriptionContext) *BaseSubscription {
	s := &BaseSubscription{
		handler:  sc.Handler,
		seq:      sc.Seq,
		reporter: sc.Reporter,
	}
	empty := []any{}
	s.listeners.Store(&empty)
	return s
}

// Handler returns the descriptor.
func (s *BaseSubscription) Handler() listener.Handler { return s.handler }

// Seq returns the registration sequence number.
func (s *BaseSubscription) Seq() uint64 { return s.seq }

// Listeners returns the current snapshot. Callers must not modify it.
func (s *BaseSubscription) Listeners() []any { return *s.listeners.Load() }

// Len returns the number of subscribed listeners.
func (s *BaseSubscription) Len() int { return len(*s.listeners.Load()) }

// Subscribe adds l unless it is already present.
func (s *BaseSubscription) Subscribe(l any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.listeners.Load()
	for _, existing := range cur {
		if existing == l {
			return false
		}
	}
	next := make([]any, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, l)
	s.listeners.Store(&next)
	return true
}

// Unsubscribe removes l if present.
func (s *BaseSubscription) Unsubscribe(l any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.listeners.Load()
	for i, existing := range cur {
		if existing != l {
			continue
		}
		next := make([]any, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		s.listeners.Store(&next)
		return true
	}
	return false
}

// Deliver invokes the handler on every listener in the snapshot. Failures
// are reported and never stop delivery to the remaining listeners.
func (s *BaseSubscription) Deliver(ctx context.Context, message any, exec *dispatch.Executor) {
	for _, l := range s.Listeners() {
		s.invoke(ctx, l, message, exec)
	}
}

func (s *BaseSubscription) invoke(ctx context.Context, l any, message any, exec *dispatch.Executor) {
	s.invoked.Add(1)
	res := exec.Execute(ctx, message, dispatch.HandlerFunc(func(ctx context.Context, m any) error {
		return s.handler.Invoke(ctx, l, m)
	}))
	if res.IsSuccess() {
		return
	}
	s.failed.Add(1)
	if s.reporter == nil {
		return
	}

	rec := report.New(report.KindInvocation, report.SeverityError, res.Error, "handler failed").
		WithListener(l).
		WithHandler(s.handler.Name).
		WithPayload(message)
	if id, ok := dispatch.RequestID(ctx); ok {
		rec = rec.WithRequest(id)
	}
	var pe *dispatch.PanicError
	if errors.As(res.Error, &pe) {
		rec.Message = "handler panicked"
		rec = rec.WithStack(pe.Stack)
	}
	s.reporter.Report(rec)
}

// Invocations returns how many handler calls were made and how many failed.
func (s *BaseSubscription) Invocations() (invoked, failed uint64) {
	return s.invoked.Load(), s.failed.Load()
}

// FilteredSubscription only delivers messages its descriptor accepts.
// Filtered-out messages are skipped silently.
type FilteredSubscription struct {
	*BaseSubscription

	skipped atomic.Uint64
}

// NewFilteredSubscription creates a filtering subscription for sc.Handler.
func NewFilteredSubscription(sc SubscriptionContext) *FilteredSubscription {
	return &FilteredSubscription{BaseSubscription: NewBaseSubscription(sc)}
}

// Deliver checks the descriptor's filters once per message, then delivers.
func (s *FilteredSubscription) Deliver(ctx context.Context, message any, exec *dispatch.Executor) {
	if !s.handler.Accepts(message) {
		s.skipped.Add(1)
		return
	}
	s.BaseSubscription.Deliver(ctx, message, exec)
}

// Skipped returns how many messages were filtered out.
func (s *FilteredSubscription) Skipped() uint64 {
	return s.skipped.Load()
}
