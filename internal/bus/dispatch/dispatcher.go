package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is the interface for a single handler invocation.
type Handler interface {
	Handle(ctx context.Context, message any) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, message any) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, message any) error {
	return f(ctx, message)
}

// Target is one resolved recipient of a message. A Target runs its own
// handlers through exec and deals with their failures itself.
type Target interface {
	Deliver(ctx context.Context, message any, exec *Executor)
}

// Request is a message bound to the targets resolved for it at publish time.
// Later subscribes and unsubscribes do not change an in-flight request.
type Request struct {
	ID       uuid.UUID
	Message  any
	Targets  []Target
	Enqueued time.Time

	ctx context.Context
}

type requestIDKey struct{}

// NewRequest creates a request. ctx supplies values to handlers; its
// cancellation is dropped because there is no per-message cancellation.
// Handlers can read the request ID back with RequestID.
func NewRequest(ctx context.Context, message any, targets []Target) Request {
	if ctx == nil {
		ctx = context.Background()
	}
	id := uuid.New()
	return Request{
		ID:      id,
		Message: message,
		Targets: targets,
		ctx:     context.WithValue(context.WithoutCancel(ctx), requestIDKey{}, id),
	}
}

// RequestID returns the ID of the request ctx was delivered with.
func RequestID(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(requestIDKey{}).(uuid.UUID)
	return id, ok
}

// Context returns the context handlers run with.
func (r Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Execute delivers the message to every target in order.
func (r Request) Execute(exec *Executor) {
	ctx := r.Context()
	for _, t := range r.Targets {
		exec.deliver(ctx, t, r.Message)
	}
}

// Dispatcher executes requests.
type Dispatcher interface {
	Dispatch(req Request)
}

// PanicHandler is called when a panic escapes a Target, i.e. happened outside
// an Executor-guarded handler call.
type PanicHandler func(message any, panicValue any, stack []byte)

// FaultHandler is called when a worker stops because it was interrupted.
type FaultHandler func(worker int, err error)

func defaultPanicHandler(any, any, []byte) {}

func defaultFaultHandler(int, error) {}
