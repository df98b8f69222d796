// File: cmd/resolve.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
	"github.com/xkilldash9x/replay-cli/internal/observability"
	"github.com/xkilldash9x/replay-cli/internal/replay"
)

// newResolveCmd resolves a recording against a static HTML snapshot.
func newResolveCmd() *cobra.Command {
	var (
		htmlPath string
		opts     outputOptions
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve recorded steps against a static HTML snapshot",
		Long: `Resolve every recorded step against a static HTML snapshot.

Element boxes are read from inline left, top, width and height declarations
in px. Nested frames are declared with srcdoc. Declared listeners are read
from the data-listeners attribute.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			rec, err := prepare(&opts)
			if err != nil {
				return err
			}
			f, err := os.Open(htmlPath)
			if err != nil {
				return fmt.Errorf("failed to open snapshot: %w", err)
			}
			defer f.Close()

			vp := cfg.Browser().Viewport
			backend, err := replay.LoadStaticBackend(f, dom.ParseOptions{
				URL:      rec.StartURL,
				Viewport: schemas.Rect{Width: float64(vp.Width), Height: float64(vp.Height)},
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to parse snapshot %s: %w", htmlPath, err)
			}
			logger.Info("Resolving against static snapshot",
				zap.String("snapshot", htmlPath), zap.Int("steps", len(rec.Steps)))
			return replayRecording(cmd, cfg, backend, rec, &opts, logger)
		},
	}
	cmd.Flags().StringVar(&htmlPath, "html", "", "static HTML snapshot")
	_ = cmd.MarkFlagRequired("html")
	addReplayFlags(cmd, &opts)
	return cmd
}
