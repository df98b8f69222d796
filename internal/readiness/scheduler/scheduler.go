// internal/readiness/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

// Reason names the signal that marked the watch dirty.
type Reason string

const (
	ReasonWatch            Reason = "watch"
	ReasonMutation         Reason = "mutation"
	ReasonIntersection     Reason = "intersection"
	ReasonAnimationEnd     Reason = "animationend"
	ReasonTransitionEnd    Reason = "transitionend"
	ReasonResize           Reason = "resize"
	ReasonWheel            Reason = "wheel"
	ReasonDOMContentLoaded Reason = "domcontentloaded"
	ReasonLoad             Reason = "load"
	ReasonTimer            Reason = "timer"
)

// GeometricObserver is the intersection observer attached to a watch.
type GeometricObserver interface {
	Disconnect()
}

// PendingWatch is the step currently being watched for readiness.
type PendingWatch struct {
	Step      *schemas.Step
	TestRunID string
	TabID     string
	Observer  GeometricObserver
}

// PassFunc performs one recheck of w. It runs on the scheduler's loop
// goroutine and may call Clear or Watch.
type PassFunc func(ctx context.Context, w *PendingWatch, reason Reason)

// Options tune the scheduler.
type Options struct {
	// FallbackInterval triggers a pass periodically even without signals.
	// Zero disables the fallback timer.
	FallbackInterval time.Duration
	// MinInterval is the minimum spacing between the starts of two passes.
	MinInterval time.Duration
}

// Scheduler coalesces readiness signals into a single, non-overlapping
// recheck loop. Every trigger means "mark dirty, run if idle": while a pass
// runs, further triggers only set a rerun flag, and on completion the loop
// runs at most one more pass.
type Scheduler struct {
	logger  *zap.Logger
	pass    PassFunc
	opts    Options
	limiter *rate.Limiter

	mu       sync.Mutex
	watch    *PendingWatch
	running  bool
	rerun    bool
	reason   Reason
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	wg       sync.WaitGroup
	passes   atomic.Int64
	coalesce atomic.Int64
}

// New creates a scheduler around pass.
func New(logger *zap.Logger, pass PassFunc, opts Options) *Scheduler {
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:  logger.Named("recheck_scheduler"),
		pass:    pass,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the fallback timer. The scheduler stops when ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var tick <-chan time.Time
		if s.opts.FallbackInterval > 0 {
			ticker := time.NewTicker(s.opts.FallbackInterval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case <-ctx.Done():
				s.Stop()
				return
			case <-s.ctx.Done():
				return
			case <-tick:
				s.Trigger(ReasonTimer)
			}
		}
	}()
}

// Watch installs w as the pending watch, superseding (and disconnecting the
// observer of) any previous one, and schedules a pass.
func (s *Scheduler) Watch(w *PendingWatch) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	prev := s.watch
	s.watch = w
	s.mu.Unlock()

	if prev != nil && prev != w && prev.Observer != nil {
		prev.Observer.Disconnect()
	}
	s.Trigger(ReasonWatch)
}

// Current returns the pending watch, if any.
func (s *Scheduler) Current() *PendingWatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watch
}

// Clear drops the pending watch. An in-flight pass completes but no further
// pass runs.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	prev := s.watch
	s.watch = nil
	s.rerun = false
	s.mu.Unlock()
	if prev != nil && prev.Observer != nil {
		prev.Observer.Disconnect()
	}
}

// Trigger marks the watch dirty.
func (s *Scheduler) Trigger(reason Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.watch == nil {
		return
	}
	if s.running {
		s.rerun = true
		s.reason = reason
		s.coalesce.Add(1)
		return
	}
	s.running = true
	s.wg.Add(1)
	go s.loop(reason)
}

func (s *Scheduler) loop(reason Reason) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		w := s.watch
		if s.stopped || w == nil {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		if err := s.limiter.Wait(s.ctx); err != nil {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}

		s.passes.Add(1)
		s.logger.Debug("Recheck pass", zap.String("reason", string(reason)))
		s.pass(s.ctx, w, reason)

		s.mu.Lock()
		if s.rerun && !s.stopped && s.watch != nil {
			s.rerun = false
			reason = s.reason
			s.mu.Unlock()
			continue
		}
		s.running = false
		s.rerun = false
		s.mu.Unlock()
		return
	}
}

// Stop sets the stop flag. In-flight passes finish; nothing new starts.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	prev := s.watch
	s.watch = nil
	s.mu.Unlock()

	s.cancel()
	if prev != nil && prev.Observer != nil {
		prev.Observer.Disconnect()
	}
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Wait blocks until the loop and the fallback timer have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Passes returns the number of passes run so far.
func (s *Scheduler) Passes() int64 { return s.passes.Load() }

// Coalesced returns how many triggers were folded into a rerun flag.
func (s *Scheduler) Coalesced() int64 { return s.coalesce.Load() }
