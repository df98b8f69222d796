package schemas

import (
	"fmt"
)

// -- Geometry Schemas --

// Point is a 2D coordinate in CSS pixels relative to a browsing context's viewport.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// IsEmpty reports whether the rect covers no area.
func (r Rect) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Center returns the geometric center of the rect.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Contains reports whether p lies within the rect. The right and bottom
// edges are exclusive, matching browser hit testing.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.Right() && p.Y >= r.Y && p.Y < r.Bottom()
}

// Intersect returns the overlap of r and o; the result is empty if they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.Right(), o.Right())
	y1 := min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{X: x0, Y: y0}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Translate returns r moved by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	r.X += dx
	r.Y += dy
	return r
}

func (r Rect) String() string {
	return fmt.Sprintf("(%g,%g %gx%g)", r.X, r.Y, r.Width, r.Height)
}

// PositionKind selects how the interaction point is derived from the target's box.
type PositionKind string

const (
	PositionSmart       PositionKind = "smart"
	PositionCustom      PositionKind = "custom"
	PositionTopLeft     PositionKind = "top-left"
	PositionTop         PositionKind = "top"
	PositionTopRight    PositionKind = "top-right"
	PositionLeft        PositionKind = "left"
	PositionCenter      PositionKind = "center"
	PositionRight       PositionKind = "right"
	PositionBottomLeft  PositionKind = "bottom-left"
	PositionBottom      PositionKind = "bottom"
	PositionBottomRight PositionKind = "bottom-right"
)

// PositionSpec describes where on the target an interaction lands.
// An empty Kind means smart positioning.
type PositionSpec struct {
	Kind PositionKind `json:"kind,omitempty"`
	// OffsetX and OffsetY are relative to the target's top-left corner and
	// only apply to custom positions.
	OffsetX float64 `json:"offsetX,omitempty"`
	OffsetY float64 `json:"offsetY,omitempty"`
}

// Normalized returns the spec with the default kind filled in.
func (p PositionSpec) Normalized() PositionSpec {
	if p.Kind == "" {
		p.Kind = PositionSmart
	}
	return p
}
