// internal/framebridge/messages.go
package framebridge

import (
	"errors"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
)

// ErrFrameNotFound is returned when a hop's frame locator no longer resolves
// to a live frame. It is the same value as dom.ErrFrameNotFound.
var ErrFrameNotFound = dom.ErrFrameNotFound

// ErrRelayTimeout is returned when no response arrives within the relay timeout.
var ErrRelayTimeout = errors.New("frame relay timed out")

// ErrClosed is returned by requests issued after the tree shut down.
var ErrClosed = errors.New("frame bridge closed")

// Kind identifies a bridge request.
type Kind int

const (
	// KindRect translates a local rect into top-level coordinates.
	KindRect Kind = iota + 1
	// KindCoverage asks whether a local point reaches the top level uncovered.
	KindCoverage
	// KindViewport asks for the part of the top-level viewport visible
	// through the frame chain, in local coordinates.
	KindViewport
	// KindIdentity asks for the frames path of the requester.
	KindIdentity
	// KindLocatorUpdate publishes an adopted locator. It has no response.
	KindLocatorUpdate
)

func (k Kind) String() string {
	switch k {
	case KindRect:
		return "rect"
	case KindCoverage:
		return "coverage"
	case KindViewport:
		return "viewport"
	case KindIdentity:
		return "identity"
	case KindLocatorUpdate:
		return "locator_update"
	}
	return "unknown"
}

// LocatorUpdate is delivered to the top-level hook when a nested context
// adopts a best-match locator.
type LocatorUpdate struct {
	FramesPath []string
	StepID     string
	Index      int
	Locator    string
}

// request travels upward. Path accumulates one frame locator per hop, the
// outermost first; Point and Rect are in the coordinates of the current hop.
type request struct {
	ID     string
	Kind   Kind
	Path   []string
	Point  schemas.Point
	Rect   schemas.Rect
	Update *LocatorUpdate
}

// response travels downward, popping Path one entry per hop until it reaches
// the requester.
type response struct {
	ID       string
	Kind     Kind
	Path     []string
	Rect     schemas.Rect
	Covering *schemas.ElementDescriptor
	Identity []string
	Err      error
}

type envelope struct {
	from *Node
	req  *request
	resp *response
}

func (r *request) relayed(loc string, p schemas.Point, rect schemas.Rect) *request {
	path := make([]string, 0, len(r.Path)+1)
	path = append(path, loc)
	path = append(path, r.Path...)
	out := *r
	out.Path = path
	out.Point = p
	out.Rect = rect
	return &out
}

func (r *request) reply() *response {
	path := make([]string, len(r.Path))
	copy(path, r.Path)
	return &response{ID: r.ID, Kind: r.Kind, Path: path}
}
