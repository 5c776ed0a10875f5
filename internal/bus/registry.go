package bus

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dshills/msgbus/internal/bus/hierarchy"
	"github.com/dshills/msgbus/internal/bus/listener"
	"github.com/dshills/msgbus/internal/bus/report"
)

type messageIndex map[reflect.Type][]Subscription

// Registry indexes subscriptions by message type and by listener type.
//
// The message-type index is an immutable map replaced wholesale on the
// registration path, so publishes read it without locking. The listener-type
// index and the non-listener cache are sync.Maps. Only the first
// registration of a listener type takes the registration lock.
type Registry struct {
	reader   listener.Reader
	resolver hierarchy.Resolver
	tracker  hierarchy.Tracker
	factory  SubscriptionFactory
	reporter *report.Reporter

	mu           sync.Mutex // registration of new listener types
	seq          uint64
	byMessage    atomic.Pointer[messageIndex]
	byListener   sync.Map // reflect.Type -> []Subscription
	nonListeners sync.Map // reflect.Type -> struct{}

	extractions atomic.Uint64
}

// NewRegistry creates an empty registry. If resolver also implements
// hierarchy.Tracker, every registered message type is tracked through it.
func NewRegistry(reader listener.Reader, resolver hierarchy.Resolver, factory SubscriptionFactory, reporter *report.Reporter) *Registry {
	if reporter == nil {
		reporter = report.NewReporter()
	}
	r := &Registry{
		reader:   reader,
		resolver: resolver,
		factory:  factory,
		reporter: reporter,
	}
	if t, ok := resolver.(hierarchy.Tracker); ok {
		r.tracker = t
	}
	idx := messageIndex{}
	r.byMessage.Store(&idx)
	return r
}

// Subscribe attaches l to every subscription of its type, creating those
// subscriptions the first time the type is seen. Types without valid
// handlers are remembered and ignored from then on.
func (r *Registry) Subscribe(l any) error {
	lt, err := listenerType(l)
	if err != nil {
		return err
	}
	if r.IsNonListener(lt) {
		return nil
	}

	subs, ok := r.SubscriptionsFor(lt)
	if !ok {
		if subs, err = r.register(lt); err != nil {
			return err
		}
	}
	for _, s := range subs {
		s.Subscribe(l)
	}
	return nil
}

// register extracts the handlers of lt and creates its subscriptions. It
// returns nil subscriptions when lt turns out to be a non-listener.
func (r *Registry) register(lt reflect.Type) ([]Subscription, error) {
	var reports []report.Error
	defer func() {
		// Sinks run outside the registration lock.
		for _, e := range reports {
			r.reporter.Report(e)
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	if subs, ok := r.SubscriptionsFor(lt); ok {
		return subs, nil
	}
	if r.IsNonListener(lt) {
		return nil, nil
	}

	r.extractions.Add(1)
	handlers, err := r.reader.Handlers(lt)
	if err != nil {
		reports = append(reports, report.New(report.KindExtraction, report.SeverityError, err,
			"extracting handlers of "+lt.String()))
		return nil, fmt.Errorf("extract handlers of %s: %w", lt, err)
	}

	cur := *r.byMessage.Load()
	next := make(messageIndex, len(cur)+len(handlers))
	for k, v := range cur {
		next[k] = v
	}

	var subs []Subscription
	for _, h := range handlers {
		if h.Disabled {
			continue
		}
		if !h.Valid() {
			reports = append(reports, report.New(report.KindRegistration, report.SeverityWarning, nil,
				"skipping invalid handler: "+h.Problem).WithHandler(h.Name))
			continue
		}

		r.seq++
		s := r.factory.CreateSubscription(SubscriptionContext{
			Handler:  h,
			Seq:      r.seq,
			Reporter: r.reporter,
		})
		if r.tracker != nil {
			r.tracker.Track(h.MessageType)
		}

		existing := next[h.MessageType]
		list := make([]Subscription, len(existing), len(existing)+1)
		copy(list, existing)
		next[h.MessageType] = append(list, s)
		subs = append(subs, s)
	}

	if len(subs) == 0 {
		r.nonListeners.Store(lt, struct{}{})
		return nil, nil
	}

	r.byMessage.Store(&next)
	r.byListener.Store(lt, subs)
	return subs, nil
}

// Unsubscribe removes l from every subscription of its type. It returns
// true only if l was present in all of them.
func (r *Registry) Unsubscribe(l any) bool {
	lt, err := listenerType(l)
	if err != nil {
		return false
	}
	subs, ok := r.SubscriptionsFor(lt)
	if !ok {
		return false
	}

	removed := true
	for _, s := range subs {
		if !s.Unsubscribe(l) {
			removed = false
		}
	}
	return removed
}

// ResolveTargets returns the subscriptions for t and all of its ancestors,
// without duplicates, ordered by descending priority then registration order.
func (r *Registry) ResolveTargets(t reflect.Type) []Subscription {
	if t == nil {
		return nil
	}
	idx := *r.byMessage.Load()
	if len(idx) == 0 {
		return nil
	}

	targets := append([]Subscription(nil), idx[t]...)
	for _, a := range r.resolver.Ancestors(t) {
		if a != t {
			targets = append(targets, idx[a]...)
		}
	}
	if len(targets) < 2 {
		return targets
	}

	slices.SortFunc(targets, func(a, b Subscription) int {
		if c := cmp.Compare(b.Handler().Priority, a.Handler().Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq(), b.Seq())
	})
	return slices.CompactFunc(targets, func(a, b Subscription) bool {
		return a.Seq() == b.Seq()
	})
}

// SubscriptionsFor returns the subscriptions created for a listener type.
func (r *Registry) SubscriptionsFor(lt reflect.Type) ([]Subscription, bool) {
	v, ok := r.byListener.Load(lt)
	if !ok {
		return nil, false
	}
	return v.([]Subscription), true
}

// IsNonListener reports whether lt is known to have no valid handlers.
func (r *Registry) IsNonListener(lt reflect.Type) bool {
	_, ok := r.nonListeners.Load(lt)
	return ok
}

// MessageTypes returns the message types that have subscriptions.
func (r *Registry) MessageTypes() []reflect.Type {
	idx := *r.byMessage.Load()
	types := make([]reflect.Type, 0, len(idx))
	for t := range idx {
		types = append(types, t)
	}
	slices.SortFunc(types, func(a, b reflect.Type) int {
		return cmp.Compare(a.String(), b.String())
	})
	return types
}

// Extractions returns how many times handler metadata was extracted.
func (r *Registry) Extractions() uint64 {
	return r.extractions.Load()
}

// RegistryCounts summarizes registry contents.
type RegistryCounts struct {
	MessageTypes  int
	ListenerTypes int
	NonListeners  int
	Subscriptions int

	// Bindings is the sum of listener counts over all subscriptions.
	Bindings int
}

// Counts walks the indexes and returns their sizes.
func (r *Registry) Counts() RegistryCounts {
	var c RegistryCounts
	c.MessageTypes = len(*r.byMessage.Load())
	r.byListener.Range(func(_, v any) bool {
		c.ListenerTypes++
		for _, s := range v.([]Subscription) {
			c.Subscriptions++
			c.Bindings += s.Len()
		}
		return true
	})
	r.nonListeners.Range(func(_, _ any) bool {
		c.NonListeners++
		return true
	})
	return c
}

func listenerType(l any) (reflect.Type, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidListener)
	}
	lt := reflect.TypeOf(l)
	if !reflect.ValueOf(l).Comparable() {
		return nil, fmt.Errorf("%w: %s is not comparable", ErrInvalidListener, lt)
	}
	return lt, nil
}
