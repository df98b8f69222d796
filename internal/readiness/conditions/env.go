// internal/readiness/conditions/env.go
package conditions

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
	"github.com/xkilldash9x/replay-cli/internal/readiness/animation"
	"github.com/xkilldash9x/replay-cli/internal/readiness/interaction"
)

// NetworkMonitor reports in-flight requests per tab.
type NetworkMonitor interface {
	// PendingRequests returns the pending request count of the tab and
	// whether a run is currently observing it.
	PendingRequests(tabID string) (count int, active bool)
}

// FrameRelay gives a nested browsing context access to layout information
// owned by its ancestors. Points and rects are in the caller's coordinates.
type FrameRelay interface {
	// RootViewport returns the part of the top-level viewport visible
	// through the frame chain.
	RootViewport(ctx context.Context) (schemas.Rect, error)
	// CheckCoverage reports the element of an ancestor context that covers
	// p, or nil when p reaches the frame chain uncovered.
	CheckCoverage(ctx context.Context, p schemas.Point) (*schemas.ElementDescriptor, error)
}

// Env carries everything the evaluators read during one resolution attempt.
type Env struct {
	Logger   *zap.Logger
	Document *dom.Document
	TabID    string

	Tracker *animation.Tracker
	Network NetworkMonitor
	Points  *interaction.Resolver
	// Frames is nil for the top-level context.
	Frames FrameRelay

	// Position is the interaction position of the step being resolved.
	Position schemas.PositionSpec
	// PreviousRect returns the rect observed for el on the previous attempt.
	PreviousRect func(el *dom.Element) (schemas.Rect, bool)

	// Deadline is the run's hard timeout; zero means unbounded. Every
	// evaluation of one attempt shares it.
	Deadline time.Time
	// DocumentCompleteWait caps how long DOCUMENT_COMPLETE blocks.
	DocumentCompleteWait time.Duration
	// NetworkIdleThreshold applies when a condition carries no expected value.
	NetworkIdleThreshold int
}

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
