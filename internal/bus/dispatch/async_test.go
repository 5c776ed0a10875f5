package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func stopDispatcher(t *testing.T, d *AsyncDispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
}

func request(targets ...Target) Request {
	return NewRequest(context.Background(), "msg", targets)
}

// gate blocks its deliveries until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gate) Deliver(context.Context, any, *Executor) {
	g.entered <- struct{}{}
	<-g.release
}

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(time.Second):
		t.Fatal("gate was not entered")
	}
}

func TestAsyncDispatcher_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := NewAsyncDispatcher(WithWorkerCount(2))
	require.NoError(t, d.Start(context.Background()))
	assert.True(t, d.IsRunning())
	assert.ErrorIs(t, d.Start(context.Background()), ErrAlreadyRunning)

	stopDispatcher(t, d)
	assert.False(t, d.IsRunning())

	assert.ErrorIs(t, d.Stop(context.Background()), ErrStopped)
	assert.ErrorIs(t, d.Start(context.Background()), ErrStopped)
	assert.ErrorIs(t, d.Enqueue(context.Background(), request()), ErrStopped)
}

func TestAsyncDispatcher_NotRunning(t *testing.T) {
	d := NewAsyncDispatcher()

	assert.ErrorIs(t, d.Enqueue(context.Background(), request()), ErrNotRunning)
	assert.ErrorIs(t, d.TryEnqueue(request()), ErrNotRunning)
	assert.ErrorIs(t, d.Stop(context.Background()), ErrNotRunning)
}

func TestAsyncDispatcher_ProcessesAll(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := NewAsyncDispatcher(WithWorkerCount(4), WithQueueSize(8))
	require.NoError(t, d.Start(context.Background()))

	var count atomic.Int64
	target := funcTarget(func(context.Context, any, *Executor) { count.Add(1) })

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				assert.NoError(t, d.Enqueue(context.Background(), request(target)))
			}
		}()
	}
	wg.Wait()

	stopDispatcher(t, d)
	assert.Equal(t, int64(1000), count.Load())
	assert.Equal(t, uint64(1000), d.Stats().Processed)
}

func TestAsyncDispatcher_FIFOWithinWorker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := NewAsyncDispatcher(WithWorkerCount(1), WithQueueSize(64))
	require.NoError(t, d.Start(context.Background()))

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 50; i++ {
		n := i
		require.NoError(t, d.Enqueue(context.Background(), request(funcTarget(func(context.Context, any, *Executor) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}))))
	}

	stopDispatcher(t, d)
	require.Len(t, order, 50)
	for i, n := range order {
		assert.Equal(t, i, n)
	}
}

func TestAsyncDispatcher_Backpressure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := NewAsyncDispatcher(WithWorkerCount(1), WithQueueSize(1))
	require.NoError(t, d.Start(context.Background()))

	g := newGate()
	require.NoError(t, d.Enqueue(context.Background(), request(g)))
	g.waitEntered(t)

	// The worker is busy; one request fills the queue.
	require.NoError(t, d.Enqueue(context.Background(), request()))
	assert.ErrorIs(t, d.TryEnqueue(request()), ErrQueueFull)

	accepted := make(chan error, 1)
	go func() {
		accepted <- d.Enqueue(context.Background(), request())
	}()

	select {
	case err := <-accepted:
		t.Fatalf("enqueue returned while queue was full: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(g.release)

	select {
	case err := <-accepted:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue was not released")
	}

	stopDispatcher(t, d)
	assert.Equal(t, uint64(3), d.Stats().Processed)
	assert.GreaterOrEqual(t, d.Stats().Blocked, uint64(1))
}

func TestAsyncDispatcher_EnqueueContextCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := NewAsyncDispatcher(WithWorkerCount(1), WithQueueSize(1))
	require.NoError(t, d.Start(context.Background()))

	g := newGate()
	require.NoError(t, d.Enqueue(context.Background(), request(g)))
	g.waitEntered(t)
	require.NoError(t, d.Enqueue(context.Background(), request()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Enqueue(ctx, request()), context.DeadlineExceeded)

	close(g.release)
	stopDispatcher(t, d)
}

func TestAsyncDispatcher_StopReleasesBlockedSenders(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := NewAsyncDispatcher(WithWorkerCount(1), WithQueueSize(1))
	require.NoError(t, d.Start(context.Background()))

	g := newGate()
	require.NoError(t, d.Enqueue(context.Background(), request(g)))
	g.waitEntered(t)
	require.NoError(t, d.Enqueue(context.Background(), request()))

	blocked := make(chan error, 1)
	go func() {
		blocked <- d.Enqueue(context.Background(), request())
	}()
	time.Sleep(20 * time.Millisecond)

	stopped := make(chan error, 1)
	go func() {
		stopped <- d.Stop(context.Background())
	}()

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("blocked sender was not released by Stop")
	}

	close(g.release)
	require.NoError(t, <-stopped)
}

func TestAsyncDispatcher_WorkerInterrupted(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		mu     sync.Mutex
		faults = map[int]error{}
	)
	d := NewAsyncDispatcher(
		WithWorkerCount(3),
		WithFaultHandler(func(worker int, err error) {
			mu.Lock()
			faults[worker] = err
			mu.Unlock()
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))
	cancel()

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("workers did not exit")
	}

	mu.Lock()
	assert.Len(t, faults, 3)
	for _, err := range faults {
		assert.ErrorIs(t, err, ErrWorkerInterrupted)
	}
	mu.Unlock()

	stats := d.Stats()
	assert.Equal(t, uint64(3), stats.Faults)
	assert.Equal(t, 0, stats.Workers)

	assert.False(t, d.IsRunning())
	assert.ErrorIs(t, d.Enqueue(context.Background(), NewRequest(context.Background(), 1, nil)), ErrWorkerInterrupted)
	assert.ErrorIs(t, d.TryEnqueue(NewRequest(context.Background(), 2, nil)), ErrWorkerInterrupted)
	assert.Zero(t, d.QueueDepth())

	require.NoError(t, d.Stop(context.Background()))
}

func TestAsyncDispatcher_HandlerPanicKeepsWorker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := NewAsyncDispatcher(WithWorkerCount(1))
	require.NoError(t, d.Start(context.Background()))

	var ran atomic.Bool
	require.NoError(t, d.Enqueue(context.Background(), request(funcTarget(func(context.Context, any, *Executor) {
		panic("boom")
	}))))
	require.NoError(t, d.Enqueue(context.Background(), request(funcTarget(func(context.Context, any, *Executor) {
		ran.Store(true)
	}))))

	stopDispatcher(t, d)
	assert.True(t, ran.Load())
	assert.Equal(t, uint64(0), d.Stats().Faults)
	assert.Equal(t, uint64(1), d.Executor().Stats().Escaped)
}

func TestAsyncDispatcher_StopTimeoutAbandonsQueue(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var faults atomic.Int64
	d := NewAsyncDispatcher(
		WithWorkerCount(1),
		WithQueueSize(4),
		WithFaultHandler(func(int, error) { faults.Add(1) }),
	)
	require.NoError(t, d.Start(context.Background()))

	g := newGate()
	var ran atomic.Int64
	counted := funcTarget(func(context.Context, any, *Executor) { ran.Add(1) })

	require.NoError(t, d.Enqueue(context.Background(), request(g)))
	g.waitEntered(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Enqueue(context.Background(), request(counted)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)

	close(g.release)
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not exit")
	}

	assert.Equal(t, int64(0), ran.Load())
	assert.Equal(t, int64(1), faults.Load())
}
