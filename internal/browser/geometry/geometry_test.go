// internal/browser/geometry/geometry_test.go
package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

func TestOffsetComposition(t *testing.T) {
	p := schemas.Point{X: 3, Y: 4}
	a := OffsetOf(schemas.Rect{X: 10, Y: 20, Width: 300, Height: 200})
	b := OffsetOf(schemas.Rect{X: 7, Y: -2, Width: 50, Height: 50})

	chained := b.Point(a.Point(p))
	combined := a.Then(b).Point(p)
	assert.Equal(t, combined, chained, "two chained offsets must equal one combined offset")
	assert.Equal(t, schemas.Point{X: 20, Y: 22}, combined)

	r := schemas.Rect{X: 1, Y: 1, Width: 5, Height: 5}
	assert.Equal(t, a.Then(b).Rect(r), b.Rect(a.Rect(r)))
	assert.Equal(t, r, a.Inverse().Rect(a.Rect(r)))
}

func TestRemainderVertices_NoHoles(t *testing.T) {
	base := schemas.Rect{X: 0, Y: 0, Width: 100, Height: 40}
	pts := RemainderVertices(base, nil, schemas.Rect{X: 0, Y: 0, Width: 1000, Height: 1000})
	require.Len(t, pts, 4)
	assert.Equal(t, schemas.Point{X: 0.5, Y: 0.5}, pts[0])
	assert.Equal(t, schemas.Point{X: 99.5, Y: 39.5}, pts[3])
}

func TestRemainderVertices_HoleSplitsRegion(t *testing.T) {
	base := schemas.Rect{X: 0, Y: 0, Width: 100, Height: 40}
	hole := schemas.Rect{X: 40, Y: 0, Width: 20, Height: 40}
	viewport := schemas.Rect{X: 0, Y: 0, Width: 800, Height: 600}

	pts := RemainderVertices(base, []schemas.Rect{hole}, viewport)
	require.Len(t, pts, 8)
	for _, p := range pts {
		assert.True(t, base.Contains(p), "vertex %v must lie inside the base rect", p)
		assert.False(t, hole.Contains(p), "vertex %v must lie outside the hole", p)
	}
}

func TestRemainderVertices_ClippedByViewport(t *testing.T) {
	base := schemas.Rect{X: -50, Y: 10, Width: 200, Height: 100}
	viewport := schemas.Rect{X: 0, Y: 0, Width: 120, Height: 60}
	holes := []schemas.Rect{{X: 20, Y: 20, Width: 30, Height: 30}, {X: 100, Y: 0, Width: 100, Height: 30}}

	pts := RemainderVertices(base, holes, viewport)
	require.NotEmpty(t, pts)
	visible := base.Intersect(viewport)
	for _, p := range pts {
		assert.True(t, visible.Contains(p), "vertex %v escaped element ∩ viewport %v", p, visible)
		for _, h := range holes {
			assert.False(t, h.Contains(p), "vertex %v lies inside hole %v", p, h)
		}
	}
}

func TestRemainderVertices_FullyCovered(t *testing.T) {
	base := schemas.Rect{X: 0, Y: 0, Width: 10, Height: 10}
	pts := RemainderVertices(base, []schemas.Rect{{X: -1, Y: -1, Width: 20, Height: 20}}, base)
	assert.Empty(t, pts)

	assert.Nil(t, RemainderVertices(base, nil, schemas.Rect{X: 50, Y: 50, Width: 5, Height: 5}))
}

func TestFractionPoint(t *testing.T) {
	r := schemas.Rect{X: 0, Y: 0, Width: 60, Height: 30}
	p := FractionPoint(r, 1.0/6, 1.0/6)
	assert.InDelta(t, 10, p.X, 1e-9)
	assert.InDelta(t, 5, p.Y, 1e-9)
	assert.Equal(t, r.Center(), FractionPoint(r, 3.0/6, 3.0/6))
	assert.True(t, ClosedContains(r, schemas.Point{X: 60, Y: 30}))
	assert.False(t, r.Contains(schemas.Point{X: 60, Y: 30}))
}
