// Package report carries failures out of the message bus.
//
// Every failure during registration, dispatch scheduling or handler invocation
// becomes an Error record that is fanned out, synchronously and in
// registration order, to every Handler registered on a Reporter.
//
// Handlers are trusted: Report does not recover a panicking Handler, and a
// Handler must not call back into the bus in a way that could block on the
// dispatch that produced the record.
package report

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind classifies where a failure happened.
type Kind int

const (
	// KindRegistration is a structurally invalid handler found while
	// registering a listener. Non-fatal, the handler is skipped.
	KindRegistration Kind = iota

	// KindExtraction is a failure of the handler metadata reader itself.
	KindExtraction

	// KindInvocation is a handler that returned an error or panicked.
	KindInvocation

	// KindScheduling is a failure to hand a message to the async queue.
	KindScheduling

	// KindWorkerFault is a dispatch worker interrupted while waiting for work.
	// The worker exits and is not restarted.
	KindWorkerFault
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindRegistration:
		return "registration"
	case KindExtraction:
		return "extraction"
	case KindInvocation:
		return "invocation"
	case KindScheduling:
		return "scheduling"
	case KindWorkerFault:
		return "worker_fault"
	default:
		return "unknown"
	}
}

// Severity is how bad a failure is for the bus as a whole.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

// String returns a human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is an immutable failure record.
type Error struct {
	// ID uniquely identifies the record.
	ID uuid.UUID

	Kind     Kind
	Severity Severity

	// Cause is the triggering error. May be nil for purely structural problems.
	Cause error

	// Message is a human-readable description.
	Message string

	// Listener is the offending listener instance, if any.
	Listener any

	// Handler names the offending handler, if any.
	Handler string

	// Payload is the message being dispatched, if any.
	Payload any

	// Request is the ID of the delivery request, or uuid.Nil.
	Request uuid.UUID

	// Stack is set for recovered panics.
	Stack []byte

	Time time.Time
}

// New creates a record with a fresh ID and timestamp.
func New(kind Kind, severity Severity, cause error, msg string) Error {
	return Error{
		ID:       uuid.New(),
		Kind:     kind,
		Severity: severity,
		Cause:    cause,
		Message:  msg,
		Time:     time.Now(),
	}
}

// WithListener returns a copy referencing the listener.
func (e Error) WithListener(l any) Error {
	e.Listener = l
	return e
}

// WithHandler returns a copy referencing the handler name.
func (e Error) WithHandler(name string) Error {
	e.Handler = name
	return e
}

// WithPayload returns a copy referencing the dispatched message.
func (e Error) WithPayload(p any) Error {
	e.Payload = p
	return e
}

// WithRequest returns a copy referencing the delivery request.
func (e Error) WithRequest(id uuid.UUID) Error {
	e.Request = id
	return e
}

// WithStack returns a copy carrying a stack trace.
func (e Error) WithStack(stack []byte) Error {
	e.Stack = stack
	return e
}

// Error implements the error interface.
func (e Error) Error() string {
	s := e.Kind.String() + ": " + e.Message
	if e.Handler != "" {
		s += " (handler " + e.Handler + ")"
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

// Unwrap returns the cause.
func (e Error) Unwrap() error {
	return e.Cause
}

// String implements fmt.Stringer.
func (e Error) String() string {
	return fmt.Sprintf("[%s/%s %s] %s", e.Severity, e.Kind, e.ID, e.Error())
}

// Handler receives error records.
type Handler interface {
	HandleError(e Error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(e Error)

// HandleError implements Handler.
func (f HandlerFunc) HandleError(e Error) {
	f(e)
}

// Reporter fans records out to its handlers.
// Handlers accumulate and are never removed implicitly.
type Reporter struct {
	mu       sync.Mutex
	handlers atomic.Pointer[[]Handler]
	reported atomic.Uint64
}

// NewReporter creates a reporter with the given initial handlers.
func NewReporter(handlers ...Handler) *Reporter {
	r := &Reporter{}
	hs := make([]Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	r.handlers.Store(&hs)
	return r
}

// Add registers an additional handler. Nil handlers are ignored.
func (r *Reporter) Add(h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.handlers.Load()
	next := make([]Handler, len(old), len(old)+1)
	copy(next, old)
	next = append(next, h)
	r.handlers.Store(&next)
}

// Handlers returns a copy of the registered handlers in registration order.
func (r *Reporter) Handlers() []Handler {
	hs := *r.handlers.Load()
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

// Report delivers e to every handler in registration order.
func (r *Reporter) Report(e Error) {
	r.reported.Add(1)
	for _, h := range *r.handlers.Load() {
		h.HandleError(e)
	}
}

// Count returns how many records have been reported.
func (r *Reporter) Count() uint64 {
	return r.reported.Load()
}
