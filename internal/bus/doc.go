// Package bus provides an in-process publish/subscribe message bus.
//
// Listeners are subscribed as whole values. The first time a listener type is
// seen, its handlers are discovered by a listener.Reader (by default every
// exported method named Handle*) and turned into Subscriptions, one per
// handler. Later instances of the same type are attached to those existing
// Subscriptions.
//
// # Architecture
//
//	                ┌──────────────────────────────────────┐
//	                │                 Bus                  │
//	                │  - Publish (sync / async)            │
//	                │  - Subscribe / Unsubscribe           │
//	                └──────────────────────────────────────┘
//	                       │                        │
//	          ┌────────────┘                        └────────────┐
//	          ▼                                                  ▼
//	┌───────────────────┐                              ┌───────────────────┐
//	│     Registry      │                              │     dispatch      │
//	│  - by message type│                              │  - SyncDispatcher │
//	│  - by listener    │                              │  - AsyncDispatcher│
//	│  - non-listeners  │                              │  - Executor       │
//	└───────────────────┘                              └───────────────────┘
//	          │
//	          ▼
//	┌───────────────────┐
//	│     hierarchy     │
//	│  - interface      │
//	│    ancestors      │
//	└───────────────────┘
//
// # Matching
//
// A message is delivered to every handler declared for its dynamic type and
// for every interface type it implements that some handler declares, including
// any. A message published as *T and one published as T are different types.
//
// # Ordering
//
// For one publish, handlers run in descending priority; equal priorities run
// in registration order. Sync and async publishes use the same order. Across
// messages there is no ordering guarantee once more than one worker runs.
//
// # Failures
//
// A failing or panicking handler is reported to the error handlers and
// delivery continues with the next one. Publish only fails for invalid input,
// lifecycle state or a cancelled context while blocked on a full queue.
//
// Example:
//
//	type Audit struct{}
//
//	func (a *Audit) HandleOrder(o *Order) error { ... }
//
//	b, err := bus.New(bus.WithWorkers(4), bus.WithQueueCapacity(1024))
//	if err != nil {
//	    return err
//	}
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	defer b.Shutdown(context.Background())
//
//	b.Subscribe(&Audit{})
//	b.PublishAsync(ctx, &Order{ID: 1})
package bus
