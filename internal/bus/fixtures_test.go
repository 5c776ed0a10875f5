package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dshills/msgbus/internal/bus/filter"
	"github.com/dshills/msgbus/internal/bus/listener"
	"github.com/dshills/msgbus/internal/bus/report"
)

// Message types.

type Named interface {
	Name() string
}

type Event struct {
	ID int
}

func (e *Event) Name() string { return "event" }

type Other struct{}

type Unrouted struct{}

// recorder collects handler calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Listeners.

type eventListener struct {
	rec *recorder
	tag string
}

func (l *eventListener) HandleEvent(e *Event) {
	l.rec.add(l.tag)
}

func (*eventListener) HandlerConfig() map[string]listener.Config {
	return map[string]listener.Config{"HandleEvent": {Priority: 1}}
}

type anyListener struct {
	rec *recorder
	tag string
}

func (l *anyListener) HandleAny(m any) {
	l.rec.add(l.tag)
}

type namedListener struct {
	rec *recorder
}

func (l *namedListener) HandleNamed(n Named) {
	l.rec.add("named:" + n.Name())
}

type otherListener struct {
	rec *recorder
}

func (l *otherListener) HandleOther(*Other) {
	l.rec.add("other")
}

type prioritized struct {
	rec *recorder
}

func (p *prioritized) HandleHigh(*Event) { p.rec.add("high") }
func (p *prioritized) HandleLow(*Event)  { p.rec.add("low") }
func (p *prioritized) HandleMid(*Event)  { p.rec.add("mid") }

func (*prioritized) HandlerConfig() map[string]listener.Config {
	return map[string]listener.Config{
		"HandleHigh": {Priority: 10},
		"HandleLow":  {Priority: 5},
		"HandleMid":  {Priority: 5},
	}
}

var errFirst = errors.New("first failed")

type failing struct {
	rec *recorder
}

func (f *failing) HandleFirst(*Event) error {
	f.rec.add("first")
	return errFirst
}

func (f *failing) HandleSecond(*Event) error {
	f.rec.add("second")
	return nil
}

func (*failing) HandlerConfig() map[string]listener.Config {
	return map[string]listener.Config{
		"HandleFirst":  {Priority: 10},
		"HandleSecond": {Priority: 5},
	}
}

type panicking struct {
	rec *recorder
}

func (p *panicking) HandleEvent(*Event) {
	panic("boom")
}

func (p *panicking) HandleAfter(*Event) {
	p.rec.add("after")
}

func (*panicking) HandlerConfig() map[string]listener.Config {
	return map[string]listener.Config{"HandleEvent": {Priority: 1}}
}

type malformed struct {
	rec *recorder
}

func (m *malformed) HandleTwo(a, b *Event) {}

func (m *malformed) HandleEvent(*Event) {
	m.rec.add("valid")
}

// orderFeed only wants raw JSON orders.
type orderFeed struct {
	rec *recorder
}

func (f *orderFeed) HandleRaw(json.RawMessage) {
	f.rec.add("order")
}

func (*orderFeed) HandlerConfig() map[string]listener.Config {
	return map[string]listener.Config{
		"HandleRaw": {Filters: []filter.Func{filter.JSONPath("kind", "order")}},
	}
}

// plain has no handlers at all.
type plain struct {
	n int
}

func (p *plain) Process(*Event) {}

// mapListener is not comparable.
type mapListener map[string]int

func (mapListener) HandleEvent(*Event) {}

// taggedListener is a comparable type whose values may not be.
type taggedListener struct {
	tag any
}

func (taggedListener) HandleEvent(*Event) {}

// gated blocks in its handler until released.
type gated struct {
	entered chan struct{}
	release chan struct{}
	done    chan struct{}
}

func newGated() *gated {
	return &gated{
		entered: make(chan struct{}, 64),
		release: make(chan struct{}),
		done:    make(chan struct{}, 64),
	}
}

func (g *gated) HandleEvent(*Event) {
	g.entered <- struct{}{}
	<-g.release
	g.done <- struct{}{}
}

func (g *gated) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(time.Second):
		t.Fatal("handler was not entered")
	}
}

// errorSink collects error records.
type errorSink struct {
	mu      sync.Mutex
	records []report.Error
	ch      chan report.Error
}

func newErrorSink() *errorSink {
	return &errorSink{ch: make(chan report.Error, 64)}
}

func (s *errorSink) HandleError(e report.Error) {
	s.mu.Lock()
	s.records = append(s.records, e)
	s.mu.Unlock()
	select {
	case s.ch <- e:
	default:
	}
}

func (s *errorSink) Records() []report.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]report.Error(nil), s.records...)
}

func (s *errorSink) wait(t *testing.T, n int) []report.Error {
	t.Helper()
	var got []report.Error
	for len(got) < n {
		select {
		case e := <-s.ch:
			got = append(got, e)
		case <-time.After(time.Second):
			t.Fatalf("got %d error records, want %d", len(got), n)
		}
	}
	return got
}

func newTestBus(t *testing.T, opts ...Option) (*Bus, *errorSink) {
	t.Helper()
	sink := newErrorSink()
	all := append([]Option{WithLogger(zerolog.Nop()), WithErrorHandler(sink)}, opts...)
	b, err := New(all...)
	require.NoError(t, err)
	return b, sink
}

func startBus(t *testing.T, b *Bus) {
	t.Helper()
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Shutdown(ctx)
	})
}
