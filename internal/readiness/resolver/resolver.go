// internal/readiness/resolver/resolver.go
package resolver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
	"github.com/xkilldash9x/replay-cli/internal/readiness/animation"
	"github.com/xkilldash9x/replay-cli/internal/readiness/conditions"
	"github.com/xkilldash9x/replay-cli/internal/readiness/interaction"
)

// -- Collaborators --

// ScrollOptions tune a scroll-into-view request.
type ScrollOptions struct {
	Position         schemas.PositionSpec
	IgnoreVisibility bool
}

// Scroller performs scroll-into-view and reports whether the element is
// interactable afterwards.
type Scroller interface {
	ScrollIntoView(ctx context.Context, el *dom.Element, opts ScrollOptions) (bool, error)
}

// FocusTrigger dispatches a synthetic click to move focus onto an element.
type FocusTrigger interface {
	TriggerFocus(ctx context.Context, el *dom.Element, at schemas.Point) error
}

// LocatorPublisher announces a locator adopted inside a nested frame to the
// top-level context. Delivery is fire-and-forget.
type LocatorPublisher interface {
	PublishLocator(ctx context.Context, stepID string, index int, locator string)
}

// Dependencies groups the context-scoped collaborators of a Resolver.
type Dependencies struct {
	Registry *Registry
	Tracker  *animation.Tracker
	Points   *interaction.Resolver
	Network  conditions.NetworkMonitor
	Scroller Scroller
	Focus    FocusTrigger
	// Publisher is only set for nested browsing contexts.
	Publisher LocatorPublisher

	DocumentCompleteWait time.Duration
	NetworkIdleThreshold int
}

// Request is one resolution attempt.
type Request struct {
	Step     *schemas.Step
	Document *dom.Document
	TabID    string
	// Frames relays layout queries to ancestor contexts; nil at the top level.
	Frames conditions.FrameRelay
	// Remaining is the time left before the hard timeout.
	Remaining time.Duration
	// SoftPromote is set once the soft-condition budget has elapsed.
	SoftPromote bool

	deadline time.Time
}

// Result is a ResolutionResult plus the live element. Element is only valid
// for the attempt that produced it and must never be retained.
type Result struct {
	schemas.ResolutionResult
	Element *dom.Element
	// Scrolled reports that a scroll-into-view was issued during the attempt.
	Scrolled bool
	// FocusRequested reports that a synthetic focus click was dispatched.
	FocusRequested bool
}

// Resolver orchestrates the condition evaluators for a step's candidates.
type Resolver struct {
	logger *zap.Logger
	deps   Dependencies
}

// New creates a resolver for one browsing context.
func New(logger *zap.Logger, deps Dependencies) *Resolver {
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Points == nil {
		deps.Points = interaction.NewResolver(logger, nil)
	}
	return &Resolver{logger: logger.Named("resolver"), deps: deps}
}

// Registry exposes the element-identity registry owned by the resolver.
func (r *Resolver) Registry() *Registry { return r.deps.Registry }

// Resolve runs one attempt. A missing element is reported through
// ElementExists=false and never as an error.
func (r *Resolver) Resolve(ctx context.Context, req Request) Result {
	step := req.Step
	if req.Remaining > 0 {
		req.deadline = time.Now().Add(req.Remaining)
	}
	if step.IsWindowTarget() {
		states := r.evaluate(ctx, req, nil, "", true, nil)
		return r.finish(ctx, req, states, Result{ResolutionResult: schemas.ResolutionResult{ElementExists: true, SelectorIndex: -1}})
	}

	if sel, idx, ok := step.ActiveSelector(); ok {
		return r.resolveOne(ctx, req, sel, idx)
	}
	if idx, ok := r.deps.Registry.Adopted(step.ID); ok && idx < len(step.Selectors) {
		return r.resolveOne(ctx, req, step.Selectors[idx], idx)
	}
	return r.bestMatch(ctx, req)
}

func (r *Resolver) lookup(req Request, sel schemas.Selector) *dom.Element {
	el, err := req.Document.Query(sel.Query())
	if err != nil {
		r.logger.Warn("Locator could not be evaluated", zap.String("locator", sel.Query()), zap.Error(err))
		return nil
	}
	return el
}

func (r *Resolver) observe(stepID, locator string, el *dom.Element) {
	tr := r.deps.Registry.Observe(locator, el)
	switch tr {
	case Replaced, Removed:
		r.logger.Debug("Element identity changed",
			zap.String("step", stepID), zap.String("locator", locator), zap.Stringer("transition", tr))
	}
}

func (r *Resolver) resolveOne(ctx context.Context, req Request, sel schemas.Selector, idx int) Result {
	selCopy := sel
	out := Result{ResolutionResult: schemas.ResolutionResult{Selector: &selCopy, SelectorIndex: idx}}

	el := r.lookup(req, sel)
	r.observe(req.Step.ID, sel.Query(), el)
	if el == nil {
		out.ConditionsState = map[schemas.ConditionType]schemas.ConditionResult{}
		return out
	}

	out.Scrolled = r.scrollIfNeeded(ctx, req, el)
	states := r.evaluate(ctx, req, el, sel.Query(), false, nil)
	out.ElementExists = true
	out.Element = el
	out = r.finish(ctx, req, states, out)
	r.triggerFocus(ctx, req, &out)
	return out
}

// bestMatch evaluates every recorded candidate and adopts, among those that
// meet their own conditions, the one whose live size deviates least from the
// recorded size. Ties favour the earliest candidate. Offscreen candidates are
// scrolled into view first. When none is ready, the focus click goes to the
// first candidate that only lacks focus, else to the first existing one.
func (r *Resolver) bestMatch(ctx context.Context, req Request) Result {
	step := req.Step
	var (
		best      *Result
		bestScore float64
		fallback  *Result
		focusable *Result
	)
	page := make(States)
	for i, sel := range step.Selectors {
		el := r.lookup(req, sel)
		r.observe(step.ID, sel.Query(), el)
		if el == nil {
			continue
		}
		selCopy := sel
		cand := Result{ResolutionResult: schemas.ResolutionResult{
			ElementExists: true,
			Selector:      &selCopy,
			SelectorIndex: i,
		}, Element: el}
		cand.Scrolled = r.scrollIfNeeded(ctx, req, el)
		states := r.evaluate(ctx, req, el, sel.Query(), false, page)
		cand = r.finish(ctx, req, states, cand)

		if fallback == nil {
			c := cand
			fallback = &c
		}
		if !cand.Ready() {
			if focusable == nil && onlyLacksFocus(step, &cand) {
				c := cand
				focusable = &c
			}
			continue
		}
		score := Score(step, el.Rect())
		if best == nil || score < bestScore {
			c := cand
			best, bestScore = &c, score
		}
	}

	if best == nil {
		target := fallback
		if focusable != nil {
			target = focusable
		}
		if target == nil {
			return Result{ResolutionResult: schemas.ResolutionResult{
				SelectorIndex:   -1,
				ConditionsState: map[schemas.ConditionType]schemas.ConditionResult{},
			}}
		}
		r.triggerFocus(ctx, req, target)
		return *target
	}

	r.deps.Registry.Adopt(step.ID, best.SelectorIndex)
	r.logger.Debug("Adopted best-matching selector",
		zap.String("step", step.ID),
		zap.Int("index", best.SelectorIndex),
		zap.String("locator", best.Selector.Query()),
		zap.Float64("score", bestScore))
	if r.deps.Publisher != nil {
		r.deps.Publisher.PublishLocator(ctx, step.ID, best.SelectorIndex, best.Selector.Query())
	}
	r.triggerFocus(ctx, req, best)
	return *best
}

// onlyLacksFocus reports whether HAS_FOCUS is failing and no other failing
// condition of res is hard.
func onlyLacksFocus(step *schemas.Step, res *Result) bool {
	lacksFocus := false
	for _, c := range res.FailingConditions() {
		if c.Type == schemas.ElementHasFocus {
			lacksFocus = true
			continue
		}
		if IsHard(step, c.Type) {
			return false
		}
	}
	return lacksFocus
}

func (r *Resolver) env(req Request, locator string) *conditions.Env {
	env := &conditions.Env{
		Logger:               r.logger,
		Document:             req.Document,
		TabID:                req.TabID,
		Tracker:              r.deps.Tracker,
		Network:              r.deps.Network,
		Points:               r.deps.Points,
		Frames:               req.Frames,
		Position:             req.Step.InteractionPosition,
		Deadline:             req.deadline,
		DocumentCompleteWait: r.deps.DocumentCompleteWait,
		NetworkIdleThreshold: r.deps.NetworkIdleThreshold,
	}
	if locator != "" {
		env.PreviousRect = func(*dom.Element) (schemas.Rect, bool) {
			return r.deps.Registry.PreviousRect(locator)
		}
	}
	return env
}

// evaluate runs every active condition against el. Page-level conditions
// found in page are reused, and new ones are stored there, so they are
// evaluated once per attempt however many candidates there are.
func (r *Resolver) evaluate(ctx context.Context, req Request, el *dom.Element, locator string, isWindow bool, page States) States {
	env := r.env(req, locator)
	states := make(States)
	for _, c := range req.Step.ActiveConditions() {
		shared := page != nil && pageLevel(c.Type)
		if shared {
			if res, ok := page[c.Type]; ok {
				states[c.Type] = res
				continue
			}
		}
		res := conditions.Evaluate(ctx, env, c, el, isWindow)
		if shared {
			page[c.Type] = res
		}
		states[c.Type] = res
	}
	return states
}

// pageLevel reports whether ct depends only on the document, not the element.
func pageLevel(ct schemas.ConditionType) bool {
	return ct == schemas.DocumentComplete || ct == schemas.NetworkIdle
}

// finish runs the result pipeline and fills in the element-level details.
func (r *Resolver) finish(ctx context.Context, req Request, evaluated States, out Result) Result {
	states, success, soft := Finalize(req.Step, evaluated, req.SoftPromote)
	out.ConditionsState = states
	out.IsSuccess = success
	out.IsSoftSuccess = soft

	if c, ok := states[schemas.ElementIsNotCovered]; ok && !c.IsIgnored {
		out.CoveringElement = c.CoveringElement
	}
	if c, ok := states[schemas.ElementIsNotAnimating]; ok && soft && c.IsSoftSuccess && c.Current != nil && *c.Current == "infinite" {
		r.logger.Warn("Step treated as ready while an infinite animation is still running",
			zap.String("step", req.Step.ID))
	}

	if out.Element != nil {
		rect := out.Element.Rect()
		out.Rect = &rect
		pos := r.deps.Points.Resolve(ctx, out.Element, req.Step.InteractionPosition)
		out.InteractionPosition = &pos.Point
		out.IsFocused = schemas.Bool(req.Document.ActiveElement() == out.Element)
	}
	return out
}

// -- Side effects --

// scrollIfNeeded requests scroll-into-view when the element lies outside the
// viewport.
func (r *Resolver) scrollIfNeeded(ctx context.Context, req Request, el *dom.Element) bool {
	if r.deps.Scroller == nil {
		return false
	}
	if !el.Rect().Intersect(req.Document.Viewport()).IsEmpty() {
		return false
	}
	_, visibilityRequired := activeCondition(req.Step, schemas.ElementIsVisible)
	ok, err := r.deps.Scroller.ScrollIntoView(ctx, el, ScrollOptions{
		Position:         req.Step.InteractionPosition,
		IgnoreVisibility: !visibilityRequired,
	})
	if err != nil {
		r.logger.Debug("Scroll into view failed", zap.String("step", req.Step.ID), zap.Error(err))
		return false
	}
	return ok
}

// triggerFocus dispatches the synthetic focus click when the focus condition
// is active, unmet and not ignored. It reports whether a click was sent.
func (r *Resolver) triggerFocus(ctx context.Context, req Request, res *Result) bool {
	if r.deps.Focus == nil || res.Element == nil {
		return false
	}
	c, ok := res.ConditionsState[schemas.ElementHasFocus]
	if !ok || c.IsSuccess || c.IsIgnored {
		return false
	}
	at := res.Element.Rect().Center()
	if res.InteractionPosition != nil {
		at = *res.InteractionPosition
	}
	if err := r.deps.Focus.TriggerFocus(ctx, res.Element, at); err != nil {
		r.logger.Debug("Focus trigger failed", zap.String("step", req.Step.ID), zap.Error(err))
		return false
	}
	res.FocusRequested = true
	return true
}

func activeCondition(step *schemas.Step, ct schemas.ConditionType) (schemas.WaitingCondition, bool) {
	for _, c := range step.ActiveConditions() {
		if c.Type == ct {
			return c, true
		}
	}
	return schemas.WaitingCondition{}, false
}
