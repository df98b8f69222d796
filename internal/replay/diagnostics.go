// internal/replay/diagnostics.go
package replay

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

// Diagnostics explains why a step did not become ready in time.
type Diagnostics struct {
	logger *zap.Logger
}

// NewDiagnostics creates the collaborator.
func NewDiagnostics(logger *zap.Logger) *Diagnostics {
	return &Diagnostics{logger: logger.Named("diagnostics")}
}

func deref(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}

// Explain logs every unmet condition of the final attempt as a likely cause
// of the failure and returns one human readable line per cause.
func (d *Diagnostics) Explain(step *schemas.Step, res *schemas.ResolutionResult) []string {
	if !res.ElementExists {
		locators := make([]string, 0, len(step.Selectors))
		for _, sel := range step.Selectors {
			locators = append(locators, sel.Query())
		}
		line := fmt.Sprintf("no candidate locator matched: %s", strings.Join(locators, ", "))
		if len(step.FramesPath) > 0 {
			line += fmt.Sprintf(" (frames path %s)", strings.Join(step.FramesPath, " > "))
		}
		d.logger.Warn("Target element not found",
			zap.String("step", step.ID), zap.Strings("locators", locators), zap.Strings("frames_path", step.FramesPath))
		return []string{line}
	}

	var lines []string
	for _, c := range res.FailingConditions() {
		line := fmt.Sprintf("%s: expected %s, got %s", c.Type, deref(c.Expected), deref(c.Current))
		fields := []zap.Field{
			zap.String("step", step.ID),
			zap.Stringer("condition", c.Type),
			zap.String("expected", deref(c.Expected)),
			zap.String("current", deref(c.Current)),
		}
		if c.CoveringElement != nil {
			line += fmt.Sprintf(" (covered by %s)", c.CoveringElement)
			fields = append(fields, zap.Stringer("covering", c.CoveringElement))
			if c.CoveringElement.Locator != "" {
				fields = append(fields, zap.String("covering_locator", c.CoveringElement.Locator))
			}
		}
		d.logger.Warn("Condition not met, likely cause of the timeout", fields...)
		lines = append(lines, line)
	}
	return lines
}
