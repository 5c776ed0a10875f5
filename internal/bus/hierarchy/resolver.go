package hierarchy

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Any is the reflect.Type of the empty interface, the universal root.
var Any = reflect.TypeOf((*any)(nil)).Elem()

// Resolver produces the ancestors of a message type.
type Resolver interface {
	Ancestors(t reflect.Type) []reflect.Type
}

// Tracker is implemented by resolvers that need to learn which interface
// types handlers are declared for. Track reports whether t was new.
type Tracker interface {
	Track(t reflect.Type) bool
}

// Interfaces resolves ancestors against a growing set of known interface types.
// Reads are lock-free; Track copies the set on write.
type Interfaces struct {
	mu    sync.Mutex
	known atomic.Pointer[[]reflect.Type]
}

// NewInterfaces creates a resolver that knows the given interface types.
func NewInterfaces(types ...reflect.Type) *Interfaces {
	r := &Interfaces{}
	empty := []reflect.Type{}
	r.known.Store(&empty)
	for _, t := range types {
		r.Track(t)
	}
	return r
}

// Track adds an interface type. Non-interface types are ignored.
func (r *Interfaces) Track(t reflect.Type) bool {
	if t == nil || t.Kind() != reflect.Interface {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.known.Load()
	for _, k := range old {
		if k == t {
			return false
		}
	}

	next := make([]reflect.Type, 0, len(old)+1)
	if t == Any {
		// Keep the universal root at the end.
		next = append(next, old...)
		next = append(next, t)
	} else {
		n := len(old)
		hasRoot := n > 0 && old[n-1] == Any
		if hasRoot {
			next = append(next, old[:n-1]...)
			next = append(next, t, Any)
		} else {
			next = append(next, old...)
			next = append(next, t)
		}
	}
	r.known.Store(&next)
	return true
}

// Known returns the tracked interface types.
func (r *Interfaces) Known() []reflect.Type {
	k := *r.known.Load()
	out := make([]reflect.Type, len(k))
	copy(out, k)
	return out
}

// Ancestors returns the known interface types t implements, excluding t.
func (r *Interfaces) Ancestors(t reflect.Type) []reflect.Type {
	if t == nil {
		return nil
	}
	var out []reflect.Type
	for _, k := range *r.known.Load() {
		if k != t && t.Implements(k) {
			out = append(out, k)
		}
	}
	return out
}
