package listener

import (
	"context"
	"errors"
	"reflect"

	"github.com/dshills/msgbus/internal/bus/filter"
)

// ErrTypeMismatch is returned by Invoke when the listener or message does not
// fit the handler's declared types.
var ErrTypeMismatch = errors.New("listener: type mismatch")

// InvokeFunc calls a handler on a listener.
type InvokeFunc func(ctx context.Context, listener any, message any) error

// Handler describes one message handler of a listener type.
// Handlers are immutable once built and shared across listener instances.
type Handler struct {
	// Name identifies the handler, usually "Type.Method".
	Name string

	// ListenerType is the type the handler belongs to.
	ListenerType reflect.Type

	// MessageType is the declared message parameter type.
	MessageType reflect.Type

	// Priority orders dispatch; higher values run first.
	Priority int

	// Params is the number of message parameters the handler declares.
	// Only handlers with exactly one are valid.
	Params int

	// Disabled handlers are skipped at registration without an error.
	Disabled bool

	// RejectSubtypes restricts delivery to messages whose dynamic type is
	// exactly MessageType.
	RejectSubtypes bool

	// Filters must all pass for a message to be delivered.
	Filters []filter.Func

	// Problem explains why the handler is invalid, if it is.
	Problem string

	invoke InvokeFunc
}

// Valid reports whether the handler declares exactly one message parameter
// and can be invoked.
func (h Handler) Valid() bool {
	return h.Params == 1 && h.MessageType != nil && h.invoke != nil && h.Problem == ""
}

// Filtered reports whether the handler narrows delivery beyond its type.
func (h Handler) Filtered() bool {
	return len(h.Filters) > 0 || h.RejectSubtypes
}

// Accepts reports whether message passes the handler's type restriction and
// filters. It does not re-check assignability to MessageType; the registry
// only routes assignable messages here.
func (h Handler) Accepts(message any) bool {
	if h.RejectSubtypes && reflect.TypeOf(message) != h.MessageType {
		return false
	}
	for _, f := range h.Filters {
		if !f(message) {
			return false
		}
	}
	return true
}

// Invoke calls the handler on listener with message.
func (h Handler) Invoke(ctx context.Context, listener any, message any) error {
	if h.invoke == nil {
		return ErrTypeMismatch
	}
	return h.invoke(ctx, listener, message)
}

// NewHandler builds a descriptor from its parts. It is the building block for
// custom readers; Bind and MethodReader use it too.
func NewHandler(name string, listenerType, messageType reflect.Type, invoke InvokeFunc, opts ...Option) Handler {
	h := Handler{
		Name:         name,
		ListenerType: listenerType,
		MessageType:  messageType,
		Params:       1,
		invoke:       invoke,
	}
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// Option configures a Handler.
type Option func(*Handler)

// WithPriority sets the handler priority.
func WithPriority(p int) Option {
	return func(h *Handler) {
		h.Priority = p
	}
}

// WithFilter appends filters.
func WithFilter(filters ...filter.Func) Option {
	return func(h *Handler) {
		for _, f := range filters {
			if f != nil {
				h.Filters = append(h.Filters, f)
			}
		}
	}
}

// WithRejectSubtypes restricts delivery to the exact declared message type.
func WithRejectSubtypes() Option {
	return func(h *Handler) {
		h.RejectSubtypes = true
	}
}

// WithDisabled marks the handler as disabled.
func WithDisabled() Option {
	return func(h *Handler) {
		h.Disabled = true
	}
}

// Config is per-handler configuration a listener type can supply to
// MethodReader through Configurer.
type Config struct {
	Priority       int
	Disabled       bool
	RejectSubtypes bool
	Filters        []filter.Func
}

func (c Config) options() []Option {
	opts := []Option{WithPriority(c.Priority), WithFilter(c.Filters...)}
	if c.Disabled {
		opts = append(opts, WithDisabled())
	}
	if c.RejectSubtypes {
		opts = append(opts, WithRejectSubtypes())
	}
	return opts
}

// Configurer is implemented by listener types that configure their handlers.
// MethodReader calls HandlerConfig on the zero value of the listener type
// (a nil pointer for pointer types), so implementations must not touch the
// receiver. Keys are method names.
type Configurer interface {
	HandlerConfig() map[string]Config
}

// Reader extracts handler descriptors from a listener type.
// A nil or empty result means the type has no handlers. An error means the
// reader itself failed, which the bus treats as unrecoverable for that call.
type Reader interface {
	Handlers(listenerType reflect.Type) ([]Handler, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(listenerType reflect.Type) ([]Handler, error)

// Handlers implements Reader.
func (f ReaderFunc) Handlers(listenerType reflect.Type) ([]Handler, error) {
	return f(listenerType)
}

// Chain returns a reader that asks each reader in turn and returns the first
// non-empty result. The first error stops the chain.
func Chain(readers ...Reader) Reader {
	return ReaderFunc(func(lt reflect.Type) ([]Handler, error) {
		for _, r := range readers {
			hs, err := r.Handlers(lt)
			if err != nil {
				return nil, err
			}
			if len(hs) > 0 {
				return hs, nil
			}
		}
		return nil, nil
	})
}
