// Package dispatch delivers resolved messages to their targets.
//
// A Request binds one message to the ordered targets that were resolved for
// it at publish time. Requests are executed either synchronously on the
// publishing goroutine (SyncDispatcher) or by a fixed pool of worker
// goroutines fed by a bounded queue (AsyncDispatcher).
//
// # Failure isolation
//
// Every handler runs through an Executor, which recovers panics and converts
// them to a PanicError in the Result. A failing handler never stops delivery
// to the remaining targets and never terminates a worker. Panics escaping a
// Target itself are recovered one level up and passed to the PanicHandler.
//
// # Backpressure
//
// Enqueue blocks while the queue is full. The publisher is held until a
// worker frees a slot, the publisher's context ends, or the dispatcher stops.
// Nothing is dropped and the queue never grows past its capacity.
// TryEnqueue is the non-blocking variant.
//
// # Workers
//
// Each worker takes one request at a time, FIFO. Cancelling the context given
// to Start interrupts every worker waiting for work; each reports a fault
// through the FaultHandler and exits. Workers are not restarted.
//
// Usage:
//
//	d := dispatch.NewAsyncDispatcher(
//	    dispatch.WithWorkerCount(4),
//	    dispatch.WithQueueSize(1024),
//	    dispatch.WithFaultHandler(onFault),
//	)
//	if err := d.Start(ctx); err != nil {
//	    return err
//	}
//	defer d.Stop(context.Background())
//
//	err := d.Enqueue(ctx, dispatch.NewRequest(ctx, msg, targets))
package dispatch
