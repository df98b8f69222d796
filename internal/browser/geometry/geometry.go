// internal/browser/geometry/geometry.go
package geometry

import (
	"math"
	"sort"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

// nudge is how far (in CSS pixels) a remainder vertex is pushed into its
// free cell so that hit testing lands inside the region rather than on its edge.
const nudge = 0.5

// Offset is a translation between two coordinate spaces, typically the origin
// of a frame element inside its parent document.
type Offset struct {
	DX, DY float64
}

// OffsetOf returns the translation that maps a frame's local coordinates into
// the coordinates of the document embedding it.
func OffsetOf(frameRect schemas.Rect) Offset {
	return Offset{DX: frameRect.X, DY: frameRect.Y}
}

// Then composes two offsets: applying o and then next.
func (o Offset) Then(next Offset) Offset {
	return Offset{DX: o.DX + next.DX, DY: o.DY + next.DY}
}

// Inverse returns the offset undoing o.
func (o Offset) Inverse() Offset {
	return Offset{DX: -o.DX, DY: -o.DY}
}

// Point applies the offset to p.
func (o Offset) Point(p schemas.Point) schemas.Point {
	return schemas.Point{X: p.X + o.DX, Y: p.Y + o.DY}
}

// Rect applies the offset to r.
func (o Offset) Rect(r schemas.Rect) schemas.Rect {
	return r.Translate(o.DX, o.DY)
}

// ClosedContains reports whether p lies within r including its right and bottom edges.
func ClosedContains(r schemas.Rect, p schemas.Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// FractionPoint returns the point at the given fractional position of r.
func FractionPoint(r schemas.Rect, fx, fy float64) schemas.Point {
	return schemas.Point{X: r.X + r.Width*fx, Y: r.Y + r.Height*fy}
}

// -- Rectilinear Region Remainder --

// RemainderVertices computes the region base ∩ clip minus the union of holes
// and returns the vertices of that region's outline, each nudged slightly into
// the region. Every returned point lies inside base ∩ clip and outside every hole.
//
// The region is decomposed over the grid formed by all rectangle edges; a grid
// point is a vertex when the free cells around it do not continue a straight edge.
// Vertices are ordered top-to-bottom, then left-to-right.
func RemainderVertices(base schemas.Rect, holes []schemas.Rect, clip schemas.Rect) []schemas.Point {
	area := base.Intersect(clip)
	if area.IsEmpty() {
		return nil
	}

	clipped := make([]schemas.Rect, 0, len(holes))
	for _, h := range holes {
		c := h.Intersect(area)
		if !c.IsEmpty() {
			clipped = append(clipped, c)
		}
	}

	xs := edges(area.X, area.Right(), clipped, func(r schemas.Rect) (float64, float64) { return r.X, r.Right() })
	ys := edges(area.Y, area.Bottom(), clipped, func(r schemas.Rect) (float64, float64) { return r.Y, r.Bottom() })

	cols, rows := len(xs)-1, len(ys)-1
	free := make([][]bool, rows)
	for j := 0; j < rows; j++ {
		free[j] = make([]bool, cols)
		for i := 0; i < cols; i++ {
			c := schemas.Point{X: (xs[i] + xs[i+1]) / 2, Y: (ys[j] + ys[j+1]) / 2}
			free[j][i] = !coveredByAny(c, clipped)
		}
	}

	cell := func(i, j int) bool {
		if i < 0 || j < 0 || i >= cols || j >= rows {
			return false
		}
		return free[j][i]
	}

	var out []schemas.Point
	for j := 0; j <= rows; j++ {
		for i := 0; i <= cols; i++ {
			// Cells around grid point (i, j): top-left, top-right, bottom-left, bottom-right.
			tl, tr, bl, br := cell(i-1, j-1), cell(i, j-1), cell(i-1, j), cell(i, j)
			n := count(tl, tr, bl, br)
			isVertex := n == 1 || n == 3 || (n == 2 && ((tl && br) || (tr && bl)))
			if !isVertex {
				continue
			}
			// Push the vertex into one adjacent free cell.
			var ci, cj int
			switch {
			case br:
				ci, cj = i, j
			case bl:
				ci, cj = i-1, j
			case tr:
				ci, cj = i, j-1
			default:
				ci, cj = i-1, j-1
			}
			out = append(out, nudgeInto(xs[i], ys[j], xs[ci], xs[ci+1], ys[cj], ys[cj+1]))
		}
	}
	return out
}

func edges(lo, hi float64, rects []schemas.Rect, pick func(schemas.Rect) (float64, float64)) []float64 {
	set := map[float64]struct{}{lo: {}, hi: {}}
	for _, r := range rects {
		a, b := pick(r)
		set[a] = struct{}{}
		set[b] = struct{}{}
	}
	out := make([]float64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

func coveredByAny(p schemas.Point, rects []schemas.Rect) bool {
	for _, r := range rects {
		if r.Contains(p) {
			return true
		}
	}
	return false
}

func count(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

// nudgeInto moves (x, y), a corner of the cell [x0,x1]x[y0,y1], towards the
// cell's interior by at most nudge pixels and never past the cell's midpoint.
func nudgeInto(x, y, x0, x1, y0, y1 float64) schemas.Point {
	dx := math.Min(nudge, (x1-x0)/2)
	dy := math.Min(nudge, (y1-y0)/2)
	if x >= x1 {
		dx = -dx
	}
	if y >= y1 {
		dy = -dy
	}
	return schemas.Point{X: x + dx, Y: y + dy}
}
