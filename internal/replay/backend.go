// internal/replay/backend.go
package replay

import (
	"context"

	"github.com/xkilldash9x/replay-cli/internal/browser/chrome"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
	"github.com/xkilldash9x/replay-cli/internal/netidle"
	"github.com/xkilldash9x/replay-cli/internal/readiness/interaction"
	"github.com/xkilldash9x/replay-cli/internal/readiness/resolver"
)

// Backend is the browser a session resolves steps against. Focus clicks are
// dispatched at top-level viewport coordinates.
type Backend interface {
	TabID() string
	// Snapshot returns the current state of every browsing context of the tab.
	Snapshot(ctx context.Context) (*dom.Page, error)
	// Listen installs the sink for event-driven readiness signals.
	Listen(s chrome.Signals)
	// Network returns the pending-request monitor of the tab.
	Network() *netidle.Monitor

	resolver.Scroller
	resolver.FocusTrigger
	interaction.ListenerProbe
}

// Ensure both backends satisfy the interface.
var (
	_ Backend = (*chrome.Tab)(nil)
	_ Backend = (*StaticBackend)(nil)
)
