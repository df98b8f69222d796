// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

// Reporter writes replay reports to an output.
type Reporter interface {
	// Write renders one run report.
	Write(report *schemas.RunReport) error
	// Close flushes the output and releases any file handle.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath. An empty path or
// "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	isStdOut := outputPath == "" || outputPath == "stdout"
	if isStdOut {
		return NewWithWriter(format, os.Stdout)
	}
	if !Supported(format) {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}
	r, err := newReporter(format, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// NewWithWriter creates a reporter on an existing writer. Close does not
// close w.
func NewWithWriter(format string, w io.Writer) (Reporter, error) {
	return newReporter(format, &nopWriteCloser{w})
}

// Supported reports whether format names a known reporter.
func Supported(format string) bool {
	switch format {
	case "json", "text":
		return true
	}
	return false
}

func newReporter(format string, w io.WriteCloser) (Reporter, error) {
	switch format {
	case "json":
		return &jsonReporter{w: w}, nil
	case "text":
		return &textReporter{w: w}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
