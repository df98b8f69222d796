// internal/readiness/retry/timer.go
package retry

import (
	"fmt"
	"time"
)

// RunTimer supplies the deadlines of one step resolution: the point after
// which soft conditions are promoted and the hard end.
type RunTimer struct {
	Start        time.Time
	Timeout      time.Duration
	Sleep        time.Duration
	SoftFraction float64
}

// NewRunTimer validates and builds a timer starting at start.
func NewRunTimer(start time.Time, timeout, sleep time.Duration, softFraction float64) (RunTimer, error) {
	t := RunTimer{Start: start, Timeout: timeout, Sleep: sleep, SoftFraction: softFraction}
	if err := t.Validate(); err != nil {
		return RunTimer{}, err
	}
	return t, nil
}

// Validate checks that the soft threshold falls strictly before the end.
func (t RunTimer) Validate() error {
	if t.Timeout <= 0 {
		return fmt.Errorf("run timeout must be positive, got %s", t.Timeout)
	}
	if t.Sleep < 0 {
		return fmt.Errorf("sleep interval must not be negative, got %s", t.Sleep)
	}
	if t.SoftFraction <= 0 || t.SoftFraction >= 1 {
		return fmt.Errorf("soft condition fraction must be in (0,1), got %g", t.SoftFraction)
	}
	if !t.ConditionsEnd().Before(t.End()) {
		return fmt.Errorf("soft condition threshold %s is not before the run timeout %s", t.softAfter(), t.Timeout)
	}
	return nil
}

func (t RunTimer) softAfter() time.Duration {
	return time.Duration(float64(t.Timeout) * t.SoftFraction)
}

// ConditionsEnd is the moment after which non-hard conditions are promoted.
func (t RunTimer) ConditionsEnd() time.Time { return t.Start.Add(t.softAfter()) }

// End is the hard deadline.
func (t RunTimer) End() time.Time { return t.Start.Add(t.Timeout) }

// SoftPromote reports whether the soft-condition budget has elapsed at now.
func (t RunTimer) SoftPromote(now time.Time) bool { return !now.Before(t.ConditionsEnd()) }

// Expired reports whether the hard deadline has passed at now.
func (t RunTimer) Expired(now time.Time) bool { return !now.Before(t.End()) }

// Remaining returns the time left until the hard deadline, never negative.
func (t RunTimer) Remaining(now time.Time) time.Duration {
	if d := t.End().Sub(now); d > 0 {
		return d
	}
	return 0
}
