package schemas

import (
	"fmt"
	"strings"
)

// -- Step Schemas --

// StepType identifies the kind of recorded action a Step replays.
type StepType string

const (
	StepClick     StepType = "click"
	StepDblClick  StepType = "dblclick"
	StepHover     StepType = "hover"
	StepMouseDown StepType = "mousedown"
	StepInput     StepType = "input"
	StepChange    StepType = "change"
	StepKeyPress  StepType = "keypress"
	StepDragDrop  StepType = "dragdrop"
	StepScroll    StepType = "scroll"
	StepNavigate  StepType = "navigate"
	StepAssertion StepType = "assertion"
	StepWait      StepType = "wait"
	StepResize    StepType = "resize"
)

// IsPointer reports whether the step is delivered through a pointer event.
func (t StepType) IsPointer() bool {
	switch t {
	case StepClick, StepDblClick, StepHover, StepMouseDown, StepDragDrop:
		return true
	}
	return false
}

// IsText reports whether the step delivers keyboard or value input.
func (t StepType) IsText() bool {
	switch t {
	case StepInput, StepChange, StepKeyPress:
		return true
	}
	return false
}

// AssertionProperty is the property an assertion step verifies.
type AssertionProperty string

const (
	AssertExists     AssertionProperty = "exists"
	AssertNotExists  AssertionProperty = "notExists"
	AssertCount      AssertionProperty = "count"
	AssertVisible    AssertionProperty = "visible"
	AssertValue      AssertionProperty = "value"
	AssertText       AssertionProperty = "text"
	AssertAttribute  AssertionProperty = "attribute"
	AssertNotVisible AssertionProperty = "notVisible"
)

// IsPresenceOnly reports whether the assertion only cares that the element is
// (or is not) in the document.
func (p AssertionProperty) IsPresenceOnly() bool {
	switch p {
	case AssertExists, AssertNotExists, AssertCount, AssertNotVisible:
		return true
	}
	return false
}

// Assertion holds the type-specific fields of an assertion step.
type Assertion struct {
	Property AssertionProperty `json:"property"`
	Value    string            `json:"value,omitempty"`
}

// Selector is one recorded way of locating the step's target.
type Selector struct {
	Locator         string `json:"locator"`
	IsActive        bool   `json:"isActive,omitempty"`
	IsCustom        bool   `json:"isCustom,omitempty"`
	ComputedLocator string `json:"computedLocator,omitempty"`
}

// Query returns the locator that should be evaluated against the document.
// A computed locator, when present, takes precedence over the recorded one.
func (s Selector) Query() string {
	if s.ComputedLocator != "" {
		return s.ComputedLocator
	}
	return s.Locator
}

// WaitingCondition is a named readiness predicate a step may require.
type WaitingCondition struct {
	Type     ConditionType `json:"type"`
	IsActive bool          `json:"isActive"`
	// ExpectedValue carries the type-specific expectation: `name="value"`
	// for ELEMENT_HAS_ATTRIBUTE, a request count for NETWORK_IDLE.
	ExpectedValue string `json:"expectedValue,omitempty"`
}

// Step is a recorded, replayable action together with its locators and
// readiness preconditions. It is immutable input to the resolution engine.
type Step struct {
	ID                  string             `json:"id"`
	Type                StepType           `json:"type"`
	Selectors           []Selector         `json:"selectors,omitempty"`
	WaitingConditions   []WaitingCondition `json:"waitingConditions,omitempty"`
	Width               float64            `json:"width,omitempty"`
	Height              float64            `json:"height,omitempty"`
	InteractionPosition PositionSpec       `json:"interactionPosition,omitempty"`
	Assertion           *Assertion         `json:"assertion,omitempty"`
	// FramesPath lists the frame locators from the root document down to the
	// browsing context that hosts the target. Empty means the root document.
	FramesPath []string `json:"framesPath,omitempty"`
}

// ActiveSelector returns the authoritative selector, if one exists.
func (s *Step) ActiveSelector() (Selector, int, bool) {
	for i, sel := range s.Selectors {
		if sel.IsActive {
			return sel, i, true
		}
	}
	return Selector{}, -1, false
}

// IsWindowTarget reports whether the step targets the window rather than an element.
func (s *Step) IsWindowTarget() bool {
	switch s.Type {
	case StepNavigate, StepWait, StepResize:
		return true
	}
	return len(s.Selectors) == 0
}

// ActiveConditions returns the waiting conditions the step actually requires.
func (s *Step) ActiveConditions() []WaitingCondition {
	out := make([]WaitingCondition, 0, len(s.WaitingConditions))
	for _, c := range s.WaitingConditions {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks the structural invariants of a step.
func (s *Step) Validate() error {
	if s.Type == "" {
		return fmt.Errorf("step %q: type is required", s.ID)
	}
	active := 0
	for i, sel := range s.Selectors {
		if strings.TrimSpace(sel.Query()) == "" {
			return fmt.Errorf("step %q: selector %d has an empty locator", s.ID, i)
		}
		if sel.IsActive {
			active++
		}
	}
	if active > 1 {
		return fmt.Errorf("step %q: %d active selectors, at most one is allowed", s.ID, active)
	}
	for _, c := range s.WaitingConditions {
		if !c.Type.IsValid() {
			return fmt.Errorf("step %q: unknown waiting condition %q", s.ID, c.Type)
		}
	}
	if s.Type == StepAssertion && s.Assertion == nil {
		return fmt.Errorf("step %q: assertion step without an assertion property", s.ID)
	}
	return nil
}

// Recording is the on-disk form of a recorded test: the page it starts from
// and the steps to replay against it.
type Recording struct {
	Name     string `json:"name"`
	StartURL string `json:"startUrl,omitempty"`
	Steps    []Step `json:"steps"`
}
