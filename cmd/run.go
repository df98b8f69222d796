// File: cmd/run.go
package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/internal/browser/chrome"
	"github.com/xkilldash9x/replay-cli/internal/netidle"
	"github.com/xkilldash9x/replay-cli/internal/observability"
)

// newRunCmd replays a recording in a live browser tab.
func newRunCmd() *cobra.Command {
	var (
		url  string
		opts outputOptions
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve recorded steps in a live browser tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			rec, err := prepare(&opts)
			if err != nil {
				return err
			}
			if url == "" {
				url = rec.StartURL
			}
			if url == "" {
				return errors.New("no start URL: pass --url or set startUrl in the recording")
			}

			// 1. Browser
			monitor := netidle.NewMonitor(logger)
			tab, err := chrome.Launch(ctx, cfg.Browser(), monitor, logger)
			if err != nil {
				return err
			}
			defer tab.Close()

			// 2. Page
			if err := tab.Navigate(ctx, url); err != nil {
				return err
			}
			logger.Info("Replaying in live tab",
				zap.String("url", url), zap.Int("steps", len(rec.Steps)), zap.Bool("headless", cfg.Browser().Headless))

			// 3. Steps
			return replayRecording(cmd, cfg, tab, rec, &opts, logger)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "page to open (default: the recording's startUrl)")
	cmd.Flags().Bool("headless", true, "run the browser without a window")
	addReplayFlags(cmd, &opts)
	return cmd
}
