// internal/readiness/interaction/point.go
package interaction

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
	"github.com/xkilldash9x/replay-cli/internal/browser/geometry"
)

// ListenerProbe answers whether an element has a bound click handler.
type ListenerProbe interface {
	HasClickListener(ctx context.Context, el *dom.Element) (bool, error)
}

// Resolution is the outcome of resolving an interaction point.
type Resolution struct {
	Point schemas.Point
	// Hit is the topmost element at Point, if any.
	Hit *dom.Element
	// Accepted reports whether Hit is the target or a non-clickable descendant.
	Accepted bool
	// Covering is set when the point is occupied by something else.
	Covering *dom.Element
}

// Resolver computes and validates the point used for interaction and
// occlusion testing.
type Resolver struct {
	logger *zap.Logger
	probe  ListenerProbe
}

// NewResolver creates a point resolver. probe may be nil, in which case only
// markup and backend signals establish click affordance.
func NewResolver(logger *zap.Logger, probe ListenerProbe) *Resolver {
	return &Resolver{logger: logger.Named("interaction_point"), probe: probe}
}

// compass maps fixed positions to fractions of the bounding box.
var compass = map[schemas.PositionKind][2]float64{
	schemas.PositionTopLeft:     {1.0 / 6, 1.0 / 6},
	schemas.PositionTop:         {3.0 / 6, 1.0 / 6},
	schemas.PositionTopRight:    {5.0 / 6, 1.0 / 6},
	schemas.PositionLeft:        {1.0 / 6, 3.0 / 6},
	schemas.PositionCenter:      {3.0 / 6, 3.0 / 6},
	schemas.PositionRight:       {5.0 / 6, 3.0 / 6},
	schemas.PositionBottomLeft:  {1.0 / 6, 5.0 / 6},
	schemas.PositionBottom:      {3.0 / 6, 5.0 / 6},
	schemas.PositionBottomRight: {5.0 / 6, 5.0 / 6},
}

// Fixed returns the point for a non-smart position. ok is false for smart
// positions and unknown kinds.
func Fixed(rect schemas.Rect, spec schemas.PositionSpec) (schemas.Point, bool) {
	spec = spec.Normalized()
	if spec.Kind == schemas.PositionCustom {
		return schemas.Point{X: rect.X + spec.OffsetX, Y: rect.Y + spec.OffsetY}, true
	}
	f, ok := compass[spec.Kind]
	if !ok {
		return schemas.Point{}, false
	}
	return geometry.FractionPoint(rect, f[0], f[1]), true
}

// Validate reports whether p lies inside the rect clipped to the viewport.
func Validate(p schemas.Point, rect, viewport schemas.Rect) bool {
	clipped := rect.Intersect(viewport)
	if clipped.IsEmpty() {
		return false
	}
	return geometry.ClosedContains(clipped, p)
}

// Resolve computes the interaction point of el for spec and hit-tests it.
func (r *Resolver) Resolve(ctx context.Context, el *dom.Element, spec schemas.PositionSpec) Resolution {
	rect := el.Rect()
	if p, ok := Fixed(rect, spec); ok {
		return r.probePoint(ctx, el, p)
	}
	return r.smart(ctx, el)
}

// smart searches for a point that lands on the element itself:
//  1. the center of the element's visible part;
//  2. each vertex of the element's box minus its independently clickable
//     descendants, clipped to the viewport;
//  3. the visible center again, as a fallback.
//
// When the element is entirely outside the viewport the box center is used.
func (r *Resolver) smart(ctx context.Context, el *dom.Element) Resolution {
	rect := el.Rect()
	viewport := el.Document().Viewport()
	aim := rect.Center()
	if visible := rect.Intersect(viewport); !visible.IsEmpty() {
		aim = visible.Center()
	}
	center := r.probePoint(ctx, el, aim)
	if center.Accepted {
		return center
	}

	var holes []schemas.Rect
	for _, d := range el.Descendants() {
		if d.Rect().IsEmpty() || !d.IsHitTestable() {
			continue
		}
		if r.HasClickAffordance(ctx, d) {
			holes = append(holes, d.Rect())
		}
	}

	for _, v := range geometry.RemainderVertices(rect, holes, viewport) {
		if ctx.Err() != nil {
			break
		}
		if res := r.probePoint(ctx, el, v); res.Accepted {
			r.logger.Debug("Smart position settled on remainder vertex",
				zap.Float64("x", v.X), zap.Float64("y", v.Y))
			return res
		}
	}
	return center
}

func (r *Resolver) probePoint(ctx context.Context, el *dom.Element, p schemas.Point) Resolution {
	res := Resolution{Point: p}
	res.Hit = el.Document().ElementFromPoint(p)
	res.Accepted = r.Accepts(ctx, el, res.Hit)
	if !res.Accepted && res.Hit != nil {
		res.Covering = res.Hit
	}
	return res
}

// Accepts reports whether hit counts as a hit on target: the target itself, or
// a descendant such that no element on the chain from hit up to (excluding)
// target has independent click affordance.
func (r *Resolver) Accepts(ctx context.Context, target, hit *dom.Element) bool {
	if hit == nil {
		return false
	}
	if hit == target {
		return true
	}
	if !target.Contains(hit) {
		return false
	}
	for _, a := range hit.Ancestors() {
		if a == target {
			return true
		}
		if r.HasClickAffordance(ctx, a) {
			return false
		}
	}
	return false
}

// HasClickAffordance reports whether el handles clicks on its own: an onclick
// attribute, a link, a button role or type, or a bound click listener.
func (r *Resolver) HasClickAffordance(ctx context.Context, el *dom.Element) bool {
	if _, ok := el.Attr("onclick"); ok {
		return true
	}
	if _, ok := el.Attr("href"); ok {
		return true
	}
	if v, ok := el.Attr("role"); ok && strings.EqualFold(v, "button") {
		return true
	}
	if v, ok := el.Attr("type"); ok && strings.EqualFold(v, "button") {
		return true
	}
	if el.Clickable() {
		return true
	}
	if r.probe == nil {
		return false
	}
	has, err := r.probe.HasClickListener(ctx, el)
	if err != nil {
		r.logger.Debug("Listener probe failed", zap.Stringer("element", el.Describe()), zap.Error(err))
		return false
	}
	return has
}
