// internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

var codec = json.ConfigCompatibleWithStandardLibrary

// jsonReporter writes each report as an indented JSON document.
type jsonReporter struct {
	w io.WriteCloser
}

func (r *jsonReporter) Write(report *schemas.RunReport) error {
	data, err := codec.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')
	if _, err := r.w.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (r *jsonReporter) Close() error { return r.w.Close() }
