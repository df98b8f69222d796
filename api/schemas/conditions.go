package schemas

import (
	"fmt"
)

// ConditionType is the closed set of readiness predicates a step may wait on.
// Dispatch over it must be total; an unknown value is a programming defect.
type ConditionType int

const (
	ConditionUnknown ConditionType = iota
	DocumentComplete
	ElementIsVisible
	ElementHasAttribute
	ElementIsNotCovered
	ElementHasFocus
	ElementIsNotDisabled
	ElementIsNotAnimating
	NetworkIdle
)

var conditionNames = map[ConditionType]string{
	DocumentComplete:      "DOCUMENT_COMPLETE",
	ElementIsVisible:      "ELEMENT_IS_VISIBLE",
	ElementHasAttribute:   "ELEMENT_HAS_ATTRIBUTE",
	ElementIsNotCovered:   "ELEMENT_IS_NOT_COVERED",
	ElementHasFocus:       "ELEMENT_HAS_FOCUS",
	ElementIsNotDisabled:  "ELEMENT_IS_NOT_DISABLED",
	ElementIsNotAnimating: "ELEMENT_IS_NOT_ANIMATING",
	NetworkIdle:           "NETWORK_IDLE",
}

// AllConditionTypes lists every valid condition type in declaration order.
func AllConditionTypes() []ConditionType {
	return []ConditionType{
		DocumentComplete,
		ElementIsVisible,
		ElementHasAttribute,
		ElementIsNotCovered,
		ElementHasFocus,
		ElementIsNotDisabled,
		ElementIsNotAnimating,
		NetworkIdle,
	}
}

// IsValid reports whether t is a member of the closed enum.
func (t ConditionType) IsValid() bool {
	_, ok := conditionNames[t]
	return ok
}

func (t ConditionType) String() string {
	if name, ok := conditionNames[t]; ok {
		return name
	}
	return fmt.Sprintf("CONDITION(%d)", int(t))
}

// MarshalText encodes the wire name of the condition.
func (t ConditionType) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("cannot marshal unknown condition type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a wire name. Unknown names are rejected so that a
// malformed step file fails at load time rather than during replay.
func (t *ConditionType) UnmarshalText(b []byte) error {
	parsed, err := ParseConditionType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseConditionType maps a wire name to its ConditionType.
func ParseConditionType(s string) (ConditionType, error) {
	for t, name := range conditionNames {
		if name == s {
			return t, nil
		}
	}
	return ConditionUnknown, fmt.Errorf("unknown condition type %q", s)
}

// ElementDescriptor is a detached, serializable description of a DOM element,
// used for diagnostics. It never references live nodes.
type ElementDescriptor struct {
	Tag     string   `json:"tag"`
	ID      string   `json:"id,omitempty"`
	Classes []string `json:"classes,omitempty"`
	Locator string   `json:"locator,omitempty"`
}

func (d *ElementDescriptor) String() string {
	if d == nil {
		return "<nil>"
	}
	s := d.Tag
	if d.ID != "" {
		s += "#" + d.ID
	}
	for _, c := range d.Classes {
		s += "." + c
	}
	return s
}

// ConditionResult is the outcome of evaluating one waiting condition.
type ConditionResult struct {
	Type            ConditionType      `json:"type"`
	IsSuccess       bool               `json:"isSuccess"`
	IsSoftSuccess   bool               `json:"isSoftSuccess,omitempty"`
	IsIgnored       bool               `json:"isIgnored,omitempty"`
	Expected        *string            `json:"expected"`
	Current         *string            `json:"current"`
	CoveringElement *ElementDescriptor `json:"coveringElement,omitempty"`
}

// Passed reports whether the condition counts towards readiness, either as a
// genuine or as a degraded pass.
func (r ConditionResult) Passed() bool {
	return r.IsSuccess || r.IsSoftSuccess
}

// Ignore returns a copy of r marked as skipped because a leading condition failed.
func (r ConditionResult) Ignore() ConditionResult {
	r.IsSuccess = false
	r.IsSoftSuccess = false
	r.IsIgnored = true
	r.CoveringElement = nil
	return r
}

// Soften returns a copy of r promoted to a degraded pass. Already passing or
// ignored results are returned unchanged.
func (r ConditionResult) Soften() ConditionResult {
	if r.IsSuccess || r.IsIgnored {
		return r
	}
	r.IsSoftSuccess = true
	return r
}

// ResolutionResult is the serializable outcome of one resolution attempt.
// The live element handle is kept by the resolver and never stored here.
type ResolutionResult struct {
	ElementExists       bool                              `json:"elementExists"`
	Selector            *Selector                         `json:"selector,omitempty"`
	SelectorIndex       int                               `json:"selectorIndex"`
	IsSuccess           bool                              `json:"isSuccess"`
	IsSoftSuccess       bool                              `json:"isSoftSuccess,omitempty"`
	ConditionsState     map[ConditionType]ConditionResult `json:"conditionsState"`
	CoveringElement     *ElementDescriptor                `json:"coveringElement,omitempty"`
	Rect                *Rect                             `json:"rect,omitempty"`
	InteractionPosition *Point                            `json:"interactionPosition,omitempty"`
	IsFocused           *bool                             `json:"isFocused,omitempty"`
}

// Ready reports whether the attempt may proceed, genuinely or degraded.
func (r *ResolutionResult) Ready() bool {
	return r.IsSuccess || r.IsSoftSuccess
}

// FailingConditions returns the active conditions that neither passed nor were ignored.
func (r *ResolutionResult) FailingConditions() []ConditionResult {
	var out []ConditionResult
	for _, t := range AllConditionTypes() {
		c, ok := r.ConditionsState[t]
		if !ok {
			continue
		}
		if !c.Passed() && !c.IsIgnored {
			out = append(out, c)
		}
	}
	return out
}

// Str is a helper for building optional string values.
func Str(s string) *string { return &s }

// Bool is a helper for building optional bool values.
func Bool(b bool) *bool { return &b }
