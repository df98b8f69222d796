package schemas

import "time"

// -- Replay Reports --

// StepStatus is the final outcome of resolving one step.
type StepStatus string

const (
	StatusPassed     StepStatus = "passed"
	StatusSoftPassed StepStatus = "soft-passed"
	StatusFailed     StepStatus = "failed"
	StatusNotFound   StepStatus = "not-found"
)

// IsHardFailure reports whether the step never became ready.
func (s StepStatus) IsHardFailure() bool {
	return s == StatusFailed || s == StatusNotFound
}

// PublishedLocator is a best-match locator a nested browsing context adopted
// and announced to the top level.
type PublishedLocator struct {
	FramesPath []string `json:"framesPath"`
	Index      int      `json:"index"`
	Locator    string   `json:"locator"`
}

// StepReport records how one step was resolved.
type StepReport struct {
	StepID      string            `json:"stepId"`
	Type        StepType          `json:"type"`
	Status      StepStatus        `json:"status"`
	Attempts    int               `json:"attempts"`
	ElapsedMs   int64             `json:"elapsedMs"`
	TimedOut    bool              `json:"timedOut,omitempty"`
	Result      ResolutionResult  `json:"result"`
	Diagnostics []string          `json:"diagnostics,omitempty"`
	Published   *PublishedLocator `json:"publishedLocator,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// RunSummary counts step outcomes.
type RunSummary struct {
	Passed     int `json:"passed"`
	SoftPassed int `json:"softPassed"`
	Failed     int `json:"failed"`
	NotFound   int `json:"notFound"`
}

// Add counts one step outcome.
func (s *RunSummary) Add(status StepStatus) {
	switch status {
	case StatusPassed:
		s.Passed++
	case StatusSoftPassed:
		s.SoftPassed++
	case StatusFailed:
		s.Failed++
	case StatusNotFound:
		s.NotFound++
	}
}

// RunReport is the outcome of replaying a recording.
type RunReport struct {
	RunID     string       `json:"runId"`
	Name      string       `json:"name,omitempty"`
	Mode      string       `json:"mode"`
	StartedAt time.Time    `json:"startedAt"`
	Steps     []StepReport `json:"steps"`
	Summary   RunSummary   `json:"summary"`
}

// HasHardFailure reports whether any step hard-failed.
func (r *RunReport) HasHardFailure() bool {
	return r.Summary.Failed > 0 || r.Summary.NotFound > 0
}
