package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcTarget adapts a function to Target.
type funcTarget func(ctx context.Context, message any, exec *Executor)

func (f funcTarget) Deliver(ctx context.Context, message any, exec *Executor) {
	f(ctx, message, exec)
}

// handlerTarget runs h through the executor and records the result.
type handlerTarget struct {
	h       Handler
	mu      sync.Mutex
	results []Result
}

func (t *handlerTarget) Deliver(ctx context.Context, message any, exec *Executor) {
	r := exec.Execute(ctx, message, t.h)
	t.mu.Lock()
	t.results = append(t.results, r)
	t.mu.Unlock()
}

func (t *handlerTarget) Results() []Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Result(nil), t.results...)
}

func TestResult_IsSuccess(t *testing.T) {
	tests := []struct {
		name     string
		result   Result
		expected bool
	}{
		{"success", Result{Success: true}, true},
		{"error", Result{Error: errors.New("error")}, false},
		{"panic", Result{Panicked: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsSuccess())
		})
	}
}

func TestExecutor_Execute(t *testing.T) {
	exec := NewExecutor()
	ctx := context.Background()

	ok := exec.Execute(ctx, "msg", HandlerFunc(func(context.Context, any) error { return nil }))
	assert.True(t, ok.IsSuccess())

	boom := errors.New("boom")
	failed := exec.Execute(ctx, "msg", HandlerFunc(func(context.Context, any) error { return boom }))
	assert.False(t, failed.IsSuccess())
	assert.ErrorIs(t, failed.Error, boom)

	panicked := exec.Execute(ctx, "msg", HandlerFunc(func(context.Context, any) error { panic("kaboom") }))
	assert.True(t, panicked.IsPanic())
	assert.ErrorIs(t, panicked.Error, ErrHandlerPanic)

	var pe *PanicError
	require.ErrorAs(t, panicked.Error, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)

	stats := exec.Stats()
	assert.Equal(t, uint64(3), stats.Executed)
	assert.Equal(t, uint64(1), stats.Succeeded)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(1), stats.Panicked)
}

func TestPanicError_UnwrapsErrorValue(t *testing.T) {
	cause := errors.New("cause")
	err := &PanicError{Value: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.Nil(t, (&PanicError{Value: 42}).Unwrap())
	assert.Contains(t, err.Error(), "cause")
}

func TestExecutor_DeliverContainsEscapedPanic(t *testing.T) {
	var (
		gotMessage any
		gotValue   any
	)
	exec := NewExecutor(WithPanicHandler(func(message, value any, stack []byte) {
		gotMessage = message
		gotValue = value
		assert.NotEmpty(t, stack)
	}))

	require.NotPanics(t, func() {
		exec.deliver(context.Background(), funcTarget(func(context.Context, any, *Executor) {
			panic("target")
		}), "msg")
	})

	assert.Equal(t, "msg", gotMessage)
	assert.Equal(t, "target", gotValue)
	assert.Equal(t, uint64(1), exec.Stats().Escaped)
}

func TestExecutor_PanickingPanicHandler(t *testing.T) {
	exec := NewExecutor(WithPanicHandler(func(any, any, []byte) {
		panic("handler")
	}))

	assert.NotPanics(t, func() {
		exec.deliver(context.Background(), funcTarget(func(context.Context, any, *Executor) {
			panic("target")
		}), "msg")
	})
}

func TestRequest_ContextIgnoresCancellation(t *testing.T) {
	type key struct{}
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "v"))
	req := NewRequest(ctx, "msg", nil)
	cancel()

	assert.NoError(t, req.Context().Err())
	assert.Equal(t, "v", req.Context().Value(key{}))
	assert.NotEqual(t, uuid.Nil, req.ID)

	id, ok := RequestID(req.Context())
	require.True(t, ok)
	assert.Equal(t, req.ID, id)

	_, ok = RequestID(context.Background())
	assert.False(t, ok)
}
