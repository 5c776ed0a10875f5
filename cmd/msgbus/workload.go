package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/msgbus/internal/bus"
	"github.com/dshills/msgbus/internal/bus/filter"
	"github.com/dshills/msgbus/internal/bus/listener"
)

// Keyed is implemented by every domain message of the workload.
type Keyed interface {
	Key() string
}

// Order is a placed order.
type Order struct {
	ID     int
	Amount int64
}

// Key implements Keyed.
func (o *Order) Key() string { return fmt.Sprintf("order-%d", o.ID) }

// Shipment follows an order.
type Shipment struct {
	OrderID int
}

// Key implements Keyed.
func (s *Shipment) Key() string { return fmt.Sprintf("shipment-%d", s.OrderID) }

// ledger sums order amounts. It runs before anything else sees an order.
type ledger struct {
	orders atomic.Int64
	total  atomic.Int64
}

func (l *ledger) HandleOrder(o *Order) {
	l.orders.Add(1)
	l.total.Add(o.Amount)
}

func (*ledger) HandlerConfig() map[string]listener.Config {
	return map[string]listener.Config{"HandleOrder": {Priority: 10}}
}

// auditor sees every Keyed message.
type auditor struct {
	seen atomic.Int64
}

func (a *auditor) HandleKeyed(_ context.Context, _ Keyed) {
	a.seen.Add(1)
}

// euFeed only takes raw JSON events for the eu region.
type euFeed struct {
	matched atomic.Int64
}

func (f *euFeed) HandleRaw(json.RawMessage) {
	f.matched.Add(1)
}

func (*euFeed) HandlerConfig() map[string]listener.Config {
	return map[string]listener.Config{
		"HandleRaw": {Filters: []filter.Func{filter.JSONPath("region", "eu")}},
	}
}

// tap counts everything published.
type tap struct {
	n atomic.Int64
}

func (t *tap) HandleAny(any) {
	t.n.Add(1)
}

// workload drives concurrent publishers against a bus.
type workload struct {
	bus        *bus.Bus
	publishers int
	messages   int

	group   *bus.Group
	ledger  *ledger
	auditor *auditor
	feed    *euFeed
	tap     *tap
}

func newWorkload(b *bus.Bus, publishers, messages int) *workload {
	return &workload{
		bus:        b,
		group:      bus.NewGroup(b),
		publishers: publishers,
		messages:   messages,
		ledger:     &ledger{},
		auditor:    &auditor{},
		feed:       &euFeed{},
		tap:        &tap{},
	}
}

// Run subscribes the listeners and publishes until done or ctx ends.
// Listeners stay subscribed so queued async messages still reach them;
// call Close once the bus has drained.
func (w *workload) Run(ctx context.Context, mode string) error {
	for _, l := range []any{w.ledger, w.auditor, w.feed, w.tap} {
		if err := w.group.Subscribe(l); err != nil {
			return fmt.Errorf("subscribe %T: %w", l, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for p := 0; p < w.publishers; p++ {
		p := p
		pub := bus.NewPublisher(w.bus, modeFor(mode, p))
		g.Go(func() error {
			for i := 0; i < w.messages; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := pub.Publish(ctx, message(p, i)); err != nil {
					return fmt.Errorf("publisher %d: %w", p, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Close unsubscribes the workload listeners.
func (w *workload) Close() {
	w.group.Close()
}

func modeFor(mode string, publisher int) bus.Mode {
	switch mode {
	case "sync":
		return bus.ModeSync
	case "async":
		return bus.ModeAsync
	default:
		if publisher%2 == 0 {
			return bus.ModeAsync
		}
		return bus.ModeSync
	}
}

var regions = []string{"eu", "us", "apac"}

func message(publisher, i int) any {
	id := publisher*1_000_000 + i
	switch i % 3 {
	case 0:
		return &Order{ID: id, Amount: int64(i%100 + 1)}
	case 1:
		return &Shipment{OrderID: id}
	default:
		return json.RawMessage(fmt.Sprintf(`{"id":%d,"region":%q}`, id, regions[(i/3)%len(regions)]))
	}
}

func printStats(out io.Writer, s bus.Stats, w *workload, elapsed time.Duration) {
	published := s.PublishedSync + s.PublishedAsync
	rate := 0.0
	if elapsed > 0 {
		rate = float64(published) / elapsed.Seconds()
	}

	fmt.Fprintf(out, "published     %d (sync %d, async %d) in %s, %.0f msg/s\n",
		published, s.PublishedSync, s.PublishedAsync, elapsed.Round(time.Millisecond), rate)
	fmt.Fprintf(out, "invocations   %d (failed %d, panicked %d)\n", s.Invocations, s.Failed, s.Panicked)
	fmt.Fprintf(out, "errors        %d, worker faults %d\n", s.Errors, s.WorkerFaults)
	fmt.Fprintf(out, "queue         blocked enqueues %d, capacity %d\n", s.BlockedEnqueues, s.QueueCapacity)
	fmt.Fprintf(out, "registry      %d message types, %d listener types, %d subscriptions\n",
		s.MessageTypes, s.ListenerTypes, s.Subscriptions)
	fmt.Fprintf(out, "ledger        %d orders, total %d\n", w.ledger.orders.Load(), w.ledger.total.Load())
	fmt.Fprintf(out, "auditor       %d keyed\n", w.auditor.seen.Load())
	fmt.Fprintf(out, "eu feed       %d matched\n", w.feed.matched.Load())
	fmt.Fprintf(out, "tap           %d total\n", w.tap.n.Load())
}
