// internal/reporting/text_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

// textReporter renders a table with one row per step followed by the
// diagnostics of failed steps.
type textReporter struct {
	w io.WriteCloser
}

func (r *textReporter) Write(report *schemas.RunReport) error {
	tw := tabwriter.NewWriter(r.w, 0, 4, 2, ' ', 0)
	name := report.Name
	if name == "" {
		name = report.RunID
	}
	fmt.Fprintf(tw, "Replay %s (%s mode)\n", name, report.Mode)
	fmt.Fprintln(tw, "STEP\tTYPE\tSTATUS\tATTEMPTS\tELAPSED\tSELECTOR")
	for _, s := range report.Steps {
		selector := "-"
		if s.Result.Selector != nil {
			selector = s.Result.Selector.Query()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dms\t%s\n", s.StepID, s.Type, s.Status, s.Attempts, s.ElapsedMs, selector)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	var b strings.Builder
	for _, s := range report.Steps {
		for _, d := range s.Diagnostics {
			fmt.Fprintf(&b, "  %s: %s\n", s.StepID, d)
		}
	}
	sum := report.Summary
	fmt.Fprintf(&b, "%d passed, %d soft-passed, %d failed, %d not found\n", sum.Passed, sum.SoftPassed, sum.Failed, sum.NotFound)
	if _, err := io.WriteString(r.w, b.String()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (r *textReporter) Close() error { return r.w.Close() }
