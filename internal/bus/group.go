package bus

import (
	"errors"
	"sync"
)

// ErrGroupClosed is returned when subscribing through a closed Group.
var ErrGroupClosed = errors.New("subscription group is closed")

// Group subscribes listeners and unsubscribes all of them on Close.
type Group struct {
	bus       *Bus
	mu        sync.Mutex
	listeners []any
	closed    bool
}

// NewGroup creates an empty Group on b.
func NewGroup(b *Bus) *Group {
	return &Group{bus: b}
}

// Subscribe subscribes l and tracks it for Close.
func (g *Group) Subscribe(l any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrGroupClosed
	}
	if err := g.bus.Subscribe(l); err != nil {
		return err
	}
	for _, existing := range g.listeners {
		if existing == l {
			return nil
		}
	}
	g.listeners = append(g.listeners, l)
	return nil
}

// Len returns the number of tracked listeners.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.listeners)
}

// Close unsubscribes every tracked listener. It returns true if every
// removal succeeded. Closing twice returns false.
func (g *Group) Close() bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.closed = true
	listeners := g.listeners
	g.listeners = nil
	g.mu.Unlock()

	ok := true
	for _, l := range listeners {
		if !g.bus.Unsubscribe(l) {
			ok = false
		}
	}
	return ok
}
