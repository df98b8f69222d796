// File: cmd/replay.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/config"
	"github.com/xkilldash9x/replay-cli/internal/replay"
	"github.com/xkilldash9x/replay-cli/internal/reporting"
)

// outputOptions are the report flags shared by every replaying command.
type outputOptions struct {
	steps  string
	format string
	output string
}

func addReplayFlags(cmd *cobra.Command, opts *outputOptions) {
	cmd.Flags().StringVar(&opts.steps, "steps", "", "recorded steps file (JSON)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "report format (json, text)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "stdout", "report destination file")
	cmd.Flags().Duration("timeout", 30*time.Second, "per-step run timeout")
	cmd.Flags().Duration("sleep", 250*time.Millisecond, "sleep between poll attempts")
	cmd.Flags().String("mode", string(config.ModePoll), "recheck mode (poll, watch)")
	_ = cmd.MarkFlagRequired("steps")
}

// newReporter writes to the command's output stream unless a file is named.
func newReporter(cmd *cobra.Command, opts *outputOptions) (reporting.Reporter, error) {
	if opts.output == "" || opts.output == "stdout" {
		return reporting.NewWithWriter(opts.format, cmd.OutOrStdout())
	}
	return reporting.New(opts.format, opts.output)
}

// prepare loads the recording and checks the report format before any
// browser work starts.
func prepare(opts *outputOptions) (*schemas.Recording, error) {
	if !reporting.Supported(opts.format) {
		return nil, fmt.Errorf("unsupported output format: %s", opts.format)
	}
	rec, err := replay.LoadRecording(opts.steps)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// replayRecording runs rec against backend and writes the report.
func replayRecording(cmd *cobra.Command, cfg config.Interface, backend replay.Backend, rec *schemas.Recording, opts *outputOptions, logger *zap.Logger) error {
	ctx := cmd.Context()
	session, err := replay.NewSession(ctx, backend, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("Failed to close replay session", zap.Error(cerr))
		}
	}()

	report, runErr := session.Run(ctx, rec)
	if report != nil {
		if err := writeReport(cmd, opts, report); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("replay aborted: %w", runErr)
	}
	if report.HasHardFailure() {
		return ErrStepsFailed
	}
	return nil
}

func writeReport(cmd *cobra.Command, opts *outputOptions, report *schemas.RunReport) error {
	r, err := newReporter(cmd, opts)
	if err != nil {
		return err
	}
	if err := r.Write(report); err != nil {
		_ = r.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return r.Close()
}
