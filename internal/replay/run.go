// internal/replay/run.go
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/config"
	"github.com/xkilldash9x/replay-cli/internal/framebridge"
	"github.com/xkilldash9x/replay-cli/internal/readiness/resolver"
	"github.com/xkilldash9x/replay-cli/internal/readiness/retry"
	"github.com/xkilldash9x/replay-cli/internal/readiness/scheduler"
)

// outcome is what a poll or watch resolution hands back to RunStep.
type outcome struct {
	result   schemas.ResolutionResult
	attempts int
	timedOut bool
	stopped  bool
}

// watchRun is the state of the step a watch-mode session is waiting on.
type watchRun struct {
	step     *schemas.Step
	timer    retry.RunTimer
	done     chan struct{}
	finished bool
	result   schemas.ResolutionResult
	attempts int
}

// satisfied reports whether res lets the step proceed. A notExists assertion
// is satisfied by the absence of its target.
func satisfied(step *schemas.Step, res *schemas.ResolutionResult) bool {
	if step.Assertion != nil && step.Assertion.Property == schemas.AssertNotExists {
		return !res.ElementExists
	}
	return res.ElementExists && res.Ready()
}

func status(step *schemas.Step, res *schemas.ResolutionResult) schemas.StepStatus {
	switch {
	case satisfied(step, res) && (res.IsSuccess || !res.ElementExists):
		return schemas.StatusPassed
	case satisfied(step, res):
		return schemas.StatusSoftPassed
	case !res.ElementExists:
		return schemas.StatusNotFound
	}
	return schemas.StatusFailed
}

// attempt captures a snapshot and resolves step once. Snapshot failures and
// broken frame chains leave the element unresolved for this attempt.
func (s *Session) attempt(ctx context.Context, step *schemas.Step, remaining time.Duration, softPromote bool) schemas.ResolutionResult {
	notFound := schemas.ResolutionResult{
		SelectorIndex:   -1,
		ConditionsState: map[schemas.ConditionType]schemas.ConditionResult{},
	}
	if l, ok := s.backend.(viewLocker); ok {
		unlock := l.LockView()
		defer unlock()
	}
	if _, err := s.refresh(ctx); err != nil {
		s.logger.Debug("Snapshot failed", zap.String("step", step.ID), zap.Error(err))
		return notFound
	}

	bc := s.context(step.FramesPath)
	doc, err := bc.node.Document()
	if err != nil {
		if errors.Is(err, framebridge.ErrFrameNotFound) {
			s.logger.Debug("Frames path does not resolve", zap.String("step", step.ID), zap.Strings("frames_path", step.FramesPath))
		} else {
			s.logger.Warn("Browsing context unavailable", zap.String("step", step.ID), zap.Error(err))
		}
		return notFound
	}

	req := resolver.Request{
		Step:        step,
		Document:    doc,
		TabID:       s.backend.TabID(),
		Remaining:   remaining,
		SoftPromote: softPromote,
	}
	if !bc.node.IsRoot() {
		req.Frames = bc.node
	}
	res := bc.resolver.Resolve(ctx, req)
	return res.ResolutionResult
}

// RunStep resolves one step until it is ready, the run timeout passes or the
// session is stopped. Only cancellation of ctx is reported as an error; every
// other outcome is described by the report.
func (s *Session) RunStep(ctx context.Context, step *schemas.Step) (*schemas.StepReport, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}
	if err := step.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	timer, err := retry.NewRunTimer(start, s.cfg.RunTimeout, s.cfg.SleepInterval, s.cfg.SoftConditionFraction)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", step.ID, err)
	}
	s.logger.Info("Resolving step",
		zap.String("step", step.ID), zap.String("type", string(step.Type)), zap.Int("candidates", len(step.Selectors)))

	var out outcome
	switch s.cfg.Mode {
	case config.ModeWatch:
		out, err = s.runWatch(ctx, step, timer)
	default:
		out, err = s.runPoll(ctx, step, timer)
	}

	report := &schemas.StepReport{
		StepID:    step.ID,
		Type:      step.Type,
		Status:    status(step, &out.result),
		Attempts:  out.attempts,
		ElapsedMs: time.Since(start).Milliseconds(),
		TimedOut:  out.timedOut,
		Result:    out.result,
		Published: s.publishedFor(step.ID),
	}
	if out.stopped {
		report.Error = "stopped"
	}
	if err != nil {
		report.Error = err.Error()
	}
	if report.Status.IsHardFailure() {
		report.Diagnostics = s.diag.Explain(step, &out.result)
	}

	fields := []zap.Field{
		zap.String("step", step.ID),
		zap.String("status", string(report.Status)),
		zap.Int("attempts", report.Attempts),
		zap.Int64("elapsed_ms", report.ElapsedMs),
	}
	switch report.Status {
	case schemas.StatusSoftPassed:
		s.logger.Warn("Step ready with soft conditions", fields...)
	case schemas.StatusPassed:
		s.logger.Info("Step ready", fields...)
	default:
		s.logger.Info("Step not ready", fields...)
	}

	if err != nil && ctx.Err() != nil {
		return report, err
	}
	return report, nil
}

func (s *Session) runPoll(ctx context.Context, step *schemas.Step, timer retry.RunTimer) (outcome, error) {
	loop := retry.NewLoop(s.logger, timer, &s.stop)
	res, err := retry.Run(ctx, loop, func(ctx context.Context, a retry.Attempt) (schemas.ResolutionResult, bool) {
		r := s.attempt(ctx, step, a.Remaining, a.SoftPromote)
		s.logger.Debug("Resolution attempt",
			zap.String("step", step.ID), zap.Int("attempt", a.N),
			zap.Bool("soft_promote", a.SoftPromote), zap.Bool("exists", r.ElementExists), zap.Bool("ready", r.Ready()))
		return r, satisfied(step, &r)
	})
	out := outcome{result: res.Result, attempts: res.Attempts, stopped: res.Stopped}
	if errors.Is(err, retry.ErrTimeout) {
		out.timedOut = true
		return out, nil
	}
	return out, err
}

// scheduler returns the session scheduler, starting it on first use.
func (s *Session) scheduler() *scheduler.Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		s.sched = scheduler.New(s.logger, s.pass, scheduler.Options{
			FallbackInterval: s.cfg.RecheckFallbackInterval,
			MinInterval:      s.cfg.RecheckMinInterval,
		})
		s.sched.Start(s.ctx)
	}
	return s.sched
}

// pass is one recheck of the watched step, run on the scheduler loop.
func (s *Session) pass(ctx context.Context, w *scheduler.PendingWatch, reason scheduler.Reason) {
	s.mu.Lock()
	run := s.watch
	s.mu.Unlock()
	if run == nil || run.step != w.Step {
		return
	}
	now := time.Now()
	res := s.attempt(ctx, w.Step, run.timer.Remaining(now), run.timer.SoftPromote(now))

	s.mu.Lock()
	run.attempts++
	run.result = res
	ready := satisfied(w.Step, &res)
	if ready && !run.finished {
		run.finished = true
		close(run.done)
	}
	sched := s.sched
	s.mu.Unlock()

	s.logger.Debug("Recheck",
		zap.String("step", w.Step.ID), zap.String("reason", string(reason)), zap.Bool("ready", ready))
	if ready && sched != nil {
		sched.Clear()
	}
}

func (s *Session) runWatch(ctx context.Context, step *schemas.Step, timer retry.RunTimer) (outcome, error) {
	run := &watchRun{step: step, timer: timer, done: make(chan struct{})}
	s.mu.Lock()
	s.watch = run
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.watch = nil
		s.mu.Unlock()
	}()

	sched := s.scheduler()
	// Promotion only happens on a pass, so one is forced at the soft threshold.
	promote := time.AfterFunc(time.Until(timer.ConditionsEnd()), func() { sched.Trigger(scheduler.ReasonTimer) })
	defer promote.Stop()

	sched.Watch(&scheduler.PendingWatch{Step: step, TestRunID: s.id, TabID: s.backend.TabID()})

	deadline := time.NewTimer(timer.Remaining(time.Now()))
	defer deadline.Stop()
	stopCheck := time.NewTicker(s.cfg.SleepInterval + time.Millisecond)
	defer stopCheck.Stop()

	var out outcome
	var err error
wait:
	for {
		select {
		case <-run.done:
			break wait
		case <-deadline.C:
			out.timedOut = true
			break wait
		case <-ctx.Done():
			err = fmt.Errorf("resolution interrupted: %w", ctx.Err())
			break wait
		case <-stopCheck.C:
			if s.stop.Load() {
				out.stopped = true
				break wait
			}
		}
	}
	sched.Clear()

	s.mu.Lock()
	out.result = run.result
	out.attempts = run.attempts
	s.mu.Unlock()
	if out.attempts == 0 {
		out.result = schemas.ResolutionResult{SelectorIndex: -1, ConditionsState: map[schemas.ConditionType]schemas.ConditionResult{}}
	}
	return out, err
}

// Run resolves every step of rec in order. Steps after a hard failure are
// still resolved; only cancellation ends the run early.
func (s *Session) Run(ctx context.Context, rec *schemas.Recording) (*schemas.RunReport, error) {
	report := &schemas.RunReport{
		RunID:     s.id,
		Name:      rec.Name,
		Mode:      string(s.cfg.Mode),
		StartedAt: time.Now().UTC(),
	}
	for i := range rec.Steps {
		step := &rec.Steps[i]
		sr, err := s.RunStep(ctx, step)
		if sr != nil {
			report.Steps = append(report.Steps, *sr)
			report.Summary.Add(sr.Status)
		}
		if err != nil {
			return report, err
		}
		if s.stop.Load() {
			break
		}
	}
	s.logger.Info("Replay finished",
		zap.Int("passed", report.Summary.Passed),
		zap.Int("soft_passed", report.Summary.SoftPassed),
		zap.Int("failed", report.Summary.Failed),
		zap.Int("not_found", report.Summary.NotFound))
	return report, nil
}
