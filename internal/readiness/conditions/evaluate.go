// internal/readiness/conditions/evaluate.go
package conditions

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
)

const (
	valueTrue  = "true"
	valueFalse = "false"
)

// Evaluate runs the evaluator for cond against el. el is nil for window
// targets. Every path sets IsSuccess explicitly.
//
// Evaluate panics on a condition type outside the closed set: that is a
// programming defect, never a runtime condition.
func Evaluate(ctx context.Context, env *Env, cond schemas.WaitingCondition, el *dom.Element, isWindow bool) schemas.ConditionResult {
	switch cond.Type {
	case schemas.DocumentComplete:
		return documentComplete(ctx, env)
	case schemas.NetworkIdle:
		return networkIdle(env, cond)
	}

	if isWindow {
		return schemas.ConditionResult{Type: cond.Type, IsSuccess: true}
	}
	if el == nil {
		return schemas.ConditionResult{Type: cond.Type, IsSuccess: false, Expected: schemas.Str(valueTrue)}
	}

	switch cond.Type {
	case schemas.ElementIsVisible:
		return elementIsVisible(ctx, env, el)
	case schemas.ElementHasAttribute:
		return elementHasAttribute(cond, el)
	case schemas.ElementIsNotCovered:
		return elementIsNotCovered(ctx, env, el)
	case schemas.ElementHasFocus:
		return boolResult(cond.Type, env.Document.ActiveElement() == el)
	case schemas.ElementIsNotDisabled:
		return boolResult(cond.Type, !disabledInTree(el))
	case schemas.ElementIsNotAnimating:
		return elementIsNotAnimating(env, el)
	default:
		panic(fmt.Sprintf("conditions: unrecognized condition type %d (%s)", int(cond.Type), cond.Type))
	}
}

func boolResult(t schemas.ConditionType, ok bool) schemas.ConditionResult {
	cur := valueFalse
	if ok {
		cur = valueTrue
	}
	return schemas.ConditionResult{
		Type:      t,
		IsSuccess: ok,
		Expected:  schemas.Str(valueTrue),
		Current:   schemas.Str(cur),
	}
}

// -- Document and network --

func documentComplete(ctx context.Context, env *Env) schemas.ConditionResult {
	doc := env.Document
	res := schemas.ConditionResult{
		Type:     schemas.DocumentComplete,
		Expected: schemas.Str(dom.ReadyComplete),
	}
	if doc.ReadyState() == dom.ReadyComplete {
		res.IsSuccess = true
		res.Current = schemas.Str(dom.ReadyComplete)
		return res
	}

	wait := env.DocumentCompleteWait
	if !env.Deadline.IsZero() {
		if left := time.Until(env.Deadline); wait <= 0 || left < wait {
			wait = left
		}
	}
	if wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		err := doc.WaitReadyState(waitCtx, dom.ReadyComplete)
		cancel()
		if err == nil {
			res.IsSuccess = true
			res.Current = schemas.Str(dom.ReadyComplete)
			return res
		}
	}

	// Never a hard failure: the budget ran out while still loading.
	res.IsSuccess = false
	res.IsSoftSuccess = true
	res.Current = schemas.Str(doc.ReadyState())
	env.logger().Debug("Document not complete within budget, soft success",
		zap.String("ready_state", doc.ReadyState()), zap.Duration("waited", wait))
	return res
}

func networkIdle(env *Env, cond schemas.WaitingCondition) schemas.ConditionResult {
	threshold := env.NetworkIdleThreshold
	if v := strings.TrimSpace(cond.ExpectedValue); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			threshold = n
		}
	}
	res := schemas.ConditionResult{Type: schemas.NetworkIdle, Expected: schemas.Str(strconv.Itoa(threshold))}
	if env.Network == nil {
		res.IsSuccess = true
		return res
	}
	pending, active := env.Network.PendingRequests(env.TabID)
	if !active {
		res.IsSuccess = true
		return res
	}
	res.Current = schemas.Str(strconv.Itoa(pending))
	res.IsSuccess = pending <= threshold
	return res
}

// -- Element predicates --

func elementIsVisible(ctx context.Context, env *Env, el *dom.Element) schemas.ConditionResult {
	if !el.IsRendered() {
		return boolResult(schemas.ElementIsVisible, false)
	}
	visible := el.Rect().Intersect(env.Document.Viewport())
	if visible.IsEmpty() {
		return boolResult(schemas.ElementIsVisible, false)
	}
	if env.Frames != nil {
		root, err := env.Frames.RootViewport(ctx)
		if err != nil {
			env.logger().Warn("Could not resolve root viewport through frame chain", zap.Error(err))
			return boolResult(schemas.ElementIsVisible, false)
		}
		if visible.Intersect(root).IsEmpty() {
			return boolResult(schemas.ElementIsVisible, false)
		}
	}
	return boolResult(schemas.ElementIsVisible, true)
}

// ParseAttributeExpectation splits `name="value"` into its parts. Quotes
// around the value are optional. Without `=`, only presence is expected.
func ParseAttributeExpectation(s string) (name, value string, hasValue bool) {
	name, value, hasValue = strings.Cut(strings.TrimSpace(s), "=")
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return name, value, hasValue
}

func elementHasAttribute(cond schemas.WaitingCondition, el *dom.Element) schemas.ConditionResult {
	name, want, hasValue := ParseAttributeExpectation(cond.ExpectedValue)
	res := schemas.ConditionResult{Type: schemas.ElementHasAttribute}
	if hasValue {
		res.Expected = schemas.Str(want)
	}
	got, ok := el.Attr(name)
	if !ok || name == "" {
		res.IsSuccess = false
		return res
	}
	res.Current = schemas.Str(got)
	res.IsSuccess = !hasValue || got == want
	return res
}

func elementIsNotCovered(ctx context.Context, env *Env, el *dom.Element) schemas.ConditionResult {
	pos := env.Points.Resolve(ctx, el, env.Position)
	if !pos.Accepted {
		res := boolResult(schemas.ElementIsNotCovered, false)
		res.CoveringElement = pos.Covering.Describe()
		return res
	}
	if env.Frames != nil {
		covering, err := env.Frames.CheckCoverage(ctx, pos.Point)
		if err != nil {
			env.logger().Warn("Frame coverage check failed", zap.Error(err))
			return boolResult(schemas.ElementIsNotCovered, false)
		}
		if covering != nil {
			res := boolResult(schemas.ElementIsNotCovered, false)
			res.CoveringElement = covering
			return res
		}
	}
	return boolResult(schemas.ElementIsNotCovered, true)
}

func disabledInTree(el *dom.Element) bool {
	for _, a := range el.Ancestors() {
		if a.IsDisabled() {
			return true
		}
	}
	return false
}

func elementIsNotAnimating(env *Env, el *dom.Element) schemas.ConditionResult {
	if env.PreviousRect != nil {
		if prev, ok := env.PreviousRect(el); ok && prev != el.Rect() {
			res := boolResult(schemas.ElementIsNotAnimating, false)
			res.Current = schemas.Str("moving")
			return res
		}
	}
	if env.Tracker == nil {
		return boolResult(schemas.ElementIsNotAnimating, true)
	}
	if env.Tracker.InActiveTree(el) || env.Tracker.IsTransitioning(el) {
		return boolResult(schemas.ElementIsNotAnimating, false)
	}
	if env.Tracker.InInfiniteTree(el) {
		// Infinite animations never end; readiness degrades instead of blocking.
		res := boolResult(schemas.ElementIsNotAnimating, false)
		res.IsSoftSuccess = true
		res.Current = schemas.Str("infinite")
		return res
	}
	return boolResult(schemas.ElementIsNotAnimating, true)
}
