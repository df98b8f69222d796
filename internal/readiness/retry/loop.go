// internal/readiness/retry/loop.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrTimeout is returned when the hard deadline passes before an attempt
// reports completion. The last attempt's result is still returned.
var ErrTimeout = errors.New("resolution timed out")

// Attempt describes the state of the run at the start of one attempt.
type Attempt struct {
	N           int
	SoftPromote bool
	Remaining   time.Duration
}

// Outcome is the result of a finished loop.
type Outcome[T any] struct {
	Result   T
	Attempts int
	Elapsed  time.Duration
	// Stopped is set when the loop exited because of the stop flag.
	Stopped bool
}

// AttemptFunc runs one attempt; done ends the loop.
type AttemptFunc[T any] func(ctx context.Context, a Attempt) (result T, done bool)

// Loop drives repeated attempts between a run timer's start and end.
type Loop struct {
	logger *zap.Logger
	timer  RunTimer
	stop   *atomic.Bool
	now    func() time.Time
}

// NewLoop creates a loop. stop is the shared stop flag; it may be nil.
func NewLoop(logger *zap.Logger, timer RunTimer, stop *atomic.Bool) *Loop {
	if stop == nil {
		stop = new(atomic.Bool)
	}
	return &Loop{logger: logger.Named("retry"), timer: timer, stop: stop, now: time.Now}
}

// Timer returns the loop's run timer.
func (l *Loop) Timer() RunTimer { return l.timer }

// Run calls attempt until it reports done, the stop flag is set, ctx ends or
// the hard deadline passes. Between attempts it sleeps the timer's interval,
// racing ctx. The stop flag exits without error; the deadline yields ErrTimeout.
func Run[T any](ctx context.Context, l *Loop, attempt AttemptFunc[T]) (Outcome[T], error) {
	var out Outcome[T]
	interval := backoff.NewConstantBackOff(l.timer.Sleep)
	for n := 1; ; n++ {
		if l.stop.Load() {
			out.Stopped = true
			out.Elapsed = l.now().Sub(l.timer.Start)
			return out, nil
		}

		now := l.now()
		a := Attempt{N: n, SoftPromote: l.timer.SoftPromote(now), Remaining: l.timer.Remaining(now)}
		res, done := attempt(ctx, a)
		out.Result = res
		out.Attempts = n
		out.Elapsed = l.now().Sub(l.timer.Start)
		if done {
			return out, nil
		}

		now = l.now()
		if l.timer.Expired(now) {
			l.logger.Debug("Run timeout reached", zap.Int("attempts", n), zap.Duration("elapsed", out.Elapsed))
			return out, fmt.Errorf("%w after %d attempts (%s)", ErrTimeout, n, l.timer.Timeout)
		}

		wait := interval.NextBackOff()
		if left := l.timer.Remaining(now); wait > left {
			wait = left
		}
		if err := sleep(ctx, wait); err != nil {
			return out, fmt.Errorf("resolution interrupted: %w", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
