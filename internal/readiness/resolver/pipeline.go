// internal/readiness/resolver/pipeline.go
package resolver

import (
	"math"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

// States maps each evaluated condition to its result. Pipeline stages never
// modify their input; each returns a fresh map.
type States map[schemas.ConditionType]schemas.ConditionResult

func (s States) clone() States {
	out := make(States, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// -- Hardness --

// IsHard reports whether a condition must genuinely pass for the step to be
// ready. Hard conditions are never promoted to soft success.
func IsHard(step *schemas.Step, ct schemas.ConditionType) bool {
	switch ct {
	case schemas.ElementHasAttribute:
		return true
	case schemas.DocumentComplete, schemas.NetworkIdle, schemas.ElementIsNotAnimating:
		return false
	}

	switch {
	case step.Type == schemas.StepAssertion:
		if step.Assertion == nil || step.Assertion.Property.IsPresenceOnly() {
			return false
		}
		switch ct {
		case schemas.ElementIsVisible, schemas.ElementIsNotCovered,
			schemas.ElementIsNotDisabled, schemas.ElementHasFocus:
			return true
		}
		return false

	case step.Type.IsText():
		return ct == schemas.ElementIsVisible || ct == schemas.ElementIsNotDisabled

	case step.Type.IsPointer():
		switch ct {
		case schemas.ElementIsVisible:
			return true
		case schemas.ElementIsNotDisabled:
			switch step.Type {
			case schemas.StepClick, schemas.StepDblClick, schemas.StepMouseDown, schemas.StepDragDrop:
				return true
			}
		}
		return false
	}
	return false
}

// -- Stages --

// ignoreRules maps a leading condition to the conditions whose results stop
// being meaningful once it fails.
var ignoreRules = []struct {
	leader     schemas.ConditionType
	dependents []schemas.ConditionType
}{
	{schemas.ElementIsVisible, []schemas.ConditionType{schemas.ElementIsNotCovered, schemas.ElementHasFocus}},
	{schemas.ElementIsNotDisabled, []schemas.ConditionType{schemas.ElementHasFocus}},
}

// ApplyIgnoreRules marks dependents of failed leading conditions as ignored.
func ApplyIgnoreRules(in States) States {
	out := in.clone()
	for _, rule := range ignoreRules {
		leader, ok := in[rule.leader]
		if !ok || leader.IsSuccess {
			continue
		}
		for _, dep := range rule.dependents {
			if r, ok := out[dep]; ok {
				out[dep] = r.Ignore()
			}
		}
	}
	return out
}

// Promote softens every still-failing, non-hard, non-ignored condition.
func Promote(in States, hard func(schemas.ConditionType) bool) States {
	out := in.clone()
	for ct, r := range in {
		if hard(ct) || r.Passed() || r.IsIgnored {
			continue
		}
		out[ct] = r.Soften()
	}
	return out
}

// Aggregate folds condition results into an overall outcome. success holds
// when every non-ignored condition genuinely passed. soft holds when the
// outcome is not a success but every non-ignored condition passed, at least
// one of them degraded. An empty set is a success.
func Aggregate(in States) (success, soft bool) {
	success = true
	passed := true
	for _, r := range in {
		if r.IsIgnored {
			continue
		}
		if !r.IsSuccess {
			success = false
		}
		if !r.Passed() {
			passed = false
		}
	}
	return success, !success && passed
}

// Finalize runs the ignore, promotion and aggregation stages in order.
func Finalize(step *schemas.Step, evaluated States, promote bool) (States, bool, bool) {
	states := ApplyIgnoreRules(evaluated)
	if promote {
		states = Promote(states, func(ct schemas.ConditionType) bool { return IsHard(step, ct) })
	}
	success, soft := Aggregate(states)
	return states, success, soft
}

// -- Best match --

// Score is the sum of the absolute relative deviations of the live width and
// height from the recorded ones. Lower is better. A dimension that was not
// recorded contributes nothing.
func Score(step *schemas.Step, live schemas.Rect) float64 {
	var s float64
	if step.Width > 0 {
		s += math.Abs(live.Width-step.Width) / step.Width
	}
	if step.Height > 0 {
		s += math.Abs(live.Height-step.Height) / step.Height
	}
	return s
}
