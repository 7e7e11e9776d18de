package collab

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T, size int, timeout time.Duration) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(size, timeout)
	require.NoError(t, err)
	t.Cleanup(d.Release)
	return d
}

func TestDo_Success(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, 2, 0)
	r := Do(context.Background(), d, "echo", func(ctx context.Context) (string, error) {
		return "hi", nil
	})
	require.True(t, r.OK())
	assert.Equal(t, "hi", r.Value)
	assert.Equal(t, "hi", r.Or("fallback"))
}

func TestDo_Classification(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, 2, 50*time.Millisecond)
	ctx := context.Background()

	unavailable := Do(ctx, d, "db", func(ctx context.Context) (int, error) {
		return 0, errors.New("connection refused")
	})
	assert.Equal(t, KindUnavailable, unavailable.Kind)
	assert.Equal(t, 7, unavailable.Or(7))

	invalid := Do(ctx, d, "parse", func(ctx context.Context) (int, error) {
		return 0, InvalidOutput(errors.New("not json"))
	})
	assert.Equal(t, KindInvalidOutput, invalid.Kind)

	timeout := Do(ctx, d, "slow", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.Equal(t, KindTimeout, timeout.Kind)
	assert.ErrorIs(t, timeout.Err, context.DeadlineExceeded)

	panicked := Do(ctx, d, "crash", func(ctx context.Context) (int, error) {
		panic("kaboom")
	})
	assert.Equal(t, KindPanic, panicked.Kind)
	assert.Contains(t, panicked.Err.Error(), "kaboom")
}

func TestDo_ParentCancellation(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, 1, 0)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	r := Do(ctx, d, "blocked", func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.Equal(t, KindCancelled, r.Kind)
}

func TestDo_NilDispatcherRunsInline(t *testing.T) {
	t.Parallel()

	r := Do(context.Background(), nil, "inline", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	assert.Equal(t, 42, r.Value)
	assert.Equal(t, 0, (*Dispatcher)(nil).Running())
}

func TestDo_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, 2, 0)
	var inFlight, peak atomic.Int32

	results := make(chan Result[int], 6)
	for i := 0; i < 6; i++ {
		go func(i int) {
			results <- Do(context.Background(), d, "work", func(ctx context.Context) (int, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				inFlight.Add(-1)
				return i, nil
			})
		}(i)
	}
	for i := 0; i < 6; i++ {
		assert.True(t, (<-results).OK())
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDo_ReleasedPool(t *testing.T) {
	t.Parallel()

	d, err := NewDispatcher(1, 0)
	require.NoError(t, err)
	d.Release()

	r := Do(context.Background(), d, "late", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	assert.Equal(t, KindUnavailable, r.Kind)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindCancelled, Classify(context.Canceled))
	assert.Equal(t, KindUnavailable, Classify(errors.New("x")))
	assert.Equal(t, KindPanic, Classify(&Error{Kind: KindPanic, Err: errors.New("p")}))
}
