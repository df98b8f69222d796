// internal/readiness/retry/retry_test.go
package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRunTimer(t *testing.T) {
	start := time.Unix(100, 0)
	timer, err := NewRunTimer(start, 10*time.Second, 250*time.Millisecond, 0.6)
	require.NoError(t, err)

	assert.Equal(t, start.Add(6*time.Second), timer.ConditionsEnd())
	assert.Equal(t, start.Add(10*time.Second), timer.End())
	assert.False(t, timer.SoftPromote(start.Add(5*time.Second)))
	assert.True(t, timer.SoftPromote(start.Add(6*time.Second)))
	assert.Equal(t, 4*time.Second, timer.Remaining(start.Add(6*time.Second)))
	assert.Zero(t, timer.Remaining(start.Add(time.Minute)))
	assert.True(t, timer.Expired(start.Add(10*time.Second)))

	for _, f := range []float64{0, 1, 1.5, -0.1} {
		_, err := NewRunTimer(start, time.Second, 0, f)
		assert.Error(t, err, "fraction %g", f)
	}
	_, err = NewRunTimer(start, 0, 0, 0.5)
	assert.Error(t, err)
}

func TestRun_CompletesAndPromotes(t *testing.T) {
	timer, err := NewRunTimer(time.Now(), time.Second, time.Millisecond, 0.05)
	require.NoError(t, err)
	loop := NewLoop(zaptest.NewLogger(t), timer, nil)

	out, err := Run(context.Background(), loop, func(_ context.Context, a Attempt) (string, bool) {
		return "soft", a.SoftPromote
	})
	require.NoError(t, err)
	assert.Equal(t, "soft", out.Result)
	assert.GreaterOrEqual(t, out.Attempts, 2, "promotion is only granted after the soft budget")
	assert.False(t, out.Stopped)
}

func TestRun_Timeout(t *testing.T) {
	timer, err := NewRunTimer(time.Now(), 30*time.Millisecond, 5*time.Millisecond, 0.5)
	require.NoError(t, err)
	loop := NewLoop(zaptest.NewLogger(t), timer, nil)

	out, err := Run(context.Background(), loop, func(_ context.Context, a Attempt) (int, bool) {
		return a.N, false
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, out.Attempts, out.Result, "the last attempt's result is kept")
}

func TestRun_StopFlagExitsWithoutError(t *testing.T) {
	var stop atomic.Bool
	timer, err := NewRunTimer(time.Now(), time.Minute, time.Millisecond, 0.5)
	require.NoError(t, err)
	loop := NewLoop(zaptest.NewLogger(t), timer, &stop)

	out, err := Run(context.Background(), loop, func(_ context.Context, a Attempt) (int, bool) {
		if a.N == 3 {
			stop.Store(true)
		}
		return a.N, false
	})
	require.NoError(t, err)
	assert.True(t, out.Stopped)
	assert.Equal(t, 3, out.Attempts)
}

func TestRun_ContextCancelled(t *testing.T) {
	timer, err := NewRunTimer(time.Now(), time.Minute, time.Hour, 0.5)
	require.NoError(t, err)
	loop := NewLoop(zaptest.NewLogger(t), timer, nil)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = Run(ctx, loop, func(context.Context, Attempt) (struct{}, bool) { return struct{}{}, false })
	assert.ErrorIs(t, err, context.Canceled)
}
