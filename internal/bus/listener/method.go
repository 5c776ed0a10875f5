package listener

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// DefaultPrefix is the method name prefix MethodReader looks for.
const DefaultPrefix = "Handle"

// PriorityFunc assigns a priority to a discovered handler method.
type PriorityFunc func(listenerType reflect.Type, method string) int

// MethodReader discovers handlers among the exported methods of a listener
// type. A handler method is named with the prefix and has the shape
//
//	func (l L) HandleX([ctx context.Context,] msg M) [error]
//
// Methods with the prefix but a different number of message parameters are
// returned as invalid descriptors so the bus can report them.
type MethodReader struct {
	prefix   string
	priority PriorityFunc
}

// MethodOption configures a MethodReader.
type MethodOption func(*MethodReader)

// WithPrefix sets the method name prefix.
func WithPrefix(prefix string) MethodOption {
	return func(r *MethodReader) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithPriorityFunc sets a fallback priority source for methods the listener
// type does not configure itself.
func WithPriorityFunc(f PriorityFunc) MethodOption {
	return func(r *MethodReader) {
		r.priority = f
	}
}

// NewMethodReader creates a reflection-based reader.
func NewMethodReader(opts ...MethodOption) *MethodReader {
	r := &MethodReader{prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handlers implements Reader. Methods are returned in name order.
func (r *MethodReader) Handlers(lt reflect.Type) (hs []Handler, err error) {
	if lt == nil {
		return nil, nil
	}

	configs, err := r.configs(lt)
	if err != nil {
		return nil, err
	}

	for i := 0; i < lt.NumMethod(); i++ {
		m := lt.Method(i)
		if !strings.HasPrefix(m.Name, r.prefix) || m.Name == "HandlerConfig" {
			continue
		}
		h := r.describe(lt, m)
		if cfg, ok := configs[m.Name]; ok {
			for _, opt := range cfg.options() {
				opt(&h)
			}
		} else if r.priority != nil {
			h.Priority = r.priority(lt, m.Name)
		}
		hs = append(hs, h)
	}
	return hs, nil
}

// configs calls HandlerConfig on the zero value of lt, if implemented.
func (r *MethodReader) configs(lt reflect.Type) (cfg map[string]Config, err error) {
	if !lt.Implements(reflect.TypeOf((*Configurer)(nil)).Elem()) {
		return nil, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener: %s.HandlerConfig panicked on zero value: %v", lt, rec)
		}
	}()
	return reflect.Zero(lt).Interface().(Configurer).HandlerConfig(), nil
}

func (r *MethodReader) describe(lt reflect.Type, m reflect.Method) Handler {
	name := typeName(lt) + "." + m.Name
	ft := m.Type

	// Parameter 0 is the receiver.
	first := 1
	withContext := ft.NumIn() > 1 && ft.In(1) == contextType
	if withContext {
		first = 2
	}
	params := ft.NumIn() - first

	h := Handler{
		Name:         name,
		ListenerType: lt,
		Params:       params,
	}
	if params >= 1 {
		h.MessageType = ft.In(first)
	}

	switch {
	case params != 1:
		h.Problem = fmt.Sprintf("found %d message parameters in handler %s, a handler must declare exactly one", params, name)
		return h
	case ft.IsVariadic():
		h.Problem = fmt.Sprintf("handler %s is variadic", name)
		return h
	case ft.NumOut() > 1 || (ft.NumOut() == 1 && ft.Out(0) != errorType):
		h.Problem = fmt.Sprintf("handler %s must return nothing or an error", name)
		return h
	}

	fn := m.Func
	returnsError := ft.NumOut() == 1
	msgType := h.MessageType
	h.invoke = func(ctx context.Context, l any, msg any) error {
		lv := reflect.ValueOf(l)
		mv := reflect.ValueOf(msg)
		if !lv.IsValid() || lv.Type() != lt || !mv.IsValid() || !mv.Type().AssignableTo(msgType) {
			return fmt.Errorf("%w: %s cannot take %T on %T", ErrTypeMismatch, name, msg, l)
		}
		args := make([]reflect.Value, 0, 3)
		args = append(args, lv)
		if withContext {
			if ctx == nil {
				ctx = context.Background()
			}
			args = append(args, reflect.ValueOf(ctx))
		}
		args = append(args, mv)

		out := fn.Call(args)
		if returnsError && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}
	return h
}

func typeName(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		return "*" + t.Elem().Name()
	}
	return t.Name()
}
