package listener

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Table is a static registration table of handlers, keyed by listener type.
// It is the reflection-free alternative to MethodReader.
type Table struct {
	mu      sync.RWMutex
	entries map[reflect.Type][]Handler
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[reflect.Type][]Handler)}
}

// Add appends a prebuilt handler to its listener type's entry.
func (t *Table) Add(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[h.ListenerType] = append(t.entries[h.ListenerType], h)
}

// Handlers implements Reader.
func (t *Table) Handlers(lt reflect.Type) ([]Handler, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	hs := t.entries[lt]
	if len(hs) == 0 {
		return nil, nil
	}
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out, nil
}

// Len returns the number of listener types in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Bind registers fn as a handler of listener type L for messages of type M.
// Bindings must happen before the first subscribe of an L; the bus reads a
// listener type's handlers only once.
func Bind[L any, M any](t *Table, name string, fn func(L, M) error, opts ...Option) {
	BindContext(t, name, func(_ context.Context, l L, m M) error {
		return fn(l, m)
	}, opts...)
}

// BindContext is Bind for handlers that take the dispatch context.
func BindContext[L any, M any](t *Table, name string, fn func(context.Context, L, M) error, opts ...Option) {
	lt := reflect.TypeOf((*L)(nil)).Elem()
	mt := reflect.TypeOf((*M)(nil)).Elem()
	full := typeName(lt) + "." + name

	invoke := func(ctx context.Context, l any, msg any) error {
		lv, ok := l.(L)
		if !ok {
			return fmt.Errorf("%w: %s cannot run on %T", ErrTypeMismatch, full, l)
		}
		mv, ok := msg.(M)
		if !ok {
			return fmt.Errorf("%w: %s cannot take %T", ErrTypeMismatch, full, msg)
		}
		return fn(ctx, lv, mv)
	}
	t.Add(NewHandler(full, lt, mt, invoke, opts...))
}
