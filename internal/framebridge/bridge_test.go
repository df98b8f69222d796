// internal/framebridge/bridge_test.go
package framebridge

import (
	"context"
	"html"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
)

func nestedPage(t *testing.T) *dom.Page {
	t.Helper()
	inner := `<html><body><div id="t" style="left:5px;top:5px;width:10px;height:10px">x</div></body></html>`
	mid := `<html><body><iframe id="inner" style="left:20px;top:30px;width:200px;height:100px" srcdoc="` +
		html.EscapeString(inner) + `"></iframe></body></html>`
	top := `<html><body>
<iframe id="outer" style="left:100px;top:50px;width:400px;height:300px" srcdoc="` + html.EscapeString(mid) + `"></iframe>
<div id="overlay" style="left:110px;top:60px;width:50px;height:50px;z-index:5"></div>
</body></html>`
	page, err := dom.ParseHTMLString(top, dom.ParseOptions{Viewport: schemas.Rect{Width: 250, Height: 120}})
	require.NoError(t, err)
	return page
}

func startTree(t *testing.T, page *dom.Page, opts Options) *Tree {
	t.Helper()
	tree := NewTree(zaptest.NewLogger(t), func() (*dom.Document, error) { return page.Root, nil }, opts)
	tree.Start(context.Background())
	t.Cleanup(func() { require.NoError(t, tree.Close()) })
	return tree
}

func TestRootRect_NestedOffsets(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := nestedPage(t)
	tree := startTree(t, page, Options{})

	inner := tree.Node([]string{"#outer", "#inner"})
	doc, err := inner.Document()
	require.NoError(t, err)
	target, err := doc.Query("#t")
	require.NoError(t, err)
	require.NotNil(t, target)

	got, err := inner.RootRect(context.Background(), target.Rect())
	require.NoError(t, err)
	assert.Equal(t, schemas.Rect{X: 125, Y: 85, Width: 10, Height: 10}, got)

	root, err := tree.Root().RootRect(context.Background(), target.Rect())
	require.NoError(t, err)
	assert.Equal(t, target.Rect(), root, "the top level answers locally")
	require.NoError(t, tree.Close())
}

func TestIdentityAndViewport(t *testing.T) {
	defer goleak.VerifyNone(t)
	tree := startTree(t, nestedPage(t), Options{})
	inner := tree.Node([]string{"#outer", "#inner"})
	assert.Same(t, inner, tree.Node([]string{"#outer", "#inner"}), "nodes are reused")

	path, err := inner.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"#outer", "#inner"}, path)

	vp, err := inner.RootViewport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schemas.Rect{X: 0, Y: 0, Width: 130, Height: 40}, vp,
		"the top-level viewport clips the inner frame, shifted back to local coordinates")
	require.NoError(t, tree.Close())
}

func TestCheckCoverage(t *testing.T) {
	defer goleak.VerifyNone(t)
	tree := startTree(t, nestedPage(t), Options{})
	inner := tree.Node([]string{"#outer", "#inner"})

	covering, err := inner.CheckCoverage(context.Background(), schemas.Point{X: 5, Y: 5})
	require.NoError(t, err)
	require.NotNil(t, covering)
	assert.Equal(t, "overlay", covering.ID)

	covering, err = inner.CheckCoverage(context.Background(), schemas.Point{X: 100, Y: 30})
	require.NoError(t, err)
	assert.Nil(t, covering)

	covering, err = tree.Root().CheckCoverage(context.Background(), schemas.Point{X: 1, Y: 1})
	require.NoError(t, err)
	assert.Nil(t, covering)
	require.NoError(t, tree.Close())
}

func TestFrameNotFound(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := nestedPage(t)
	tree := startTree(t, page, Options{})
	inner := tree.Node([]string{"#outer", "#inner"})
	mid := tree.Node([]string{"#outer"})

	midDoc, err := mid.Document()
	require.NoError(t, err)
	frame, err := midDoc.Query("#inner")
	require.NoError(t, err)
	midDoc.Remove(frame)

	_, err = inner.CheckCoverage(context.Background(), schemas.Point{X: 1, Y: 1})
	assert.ErrorIs(t, err, ErrFrameNotFound)

	_, err = inner.RootViewport(context.Background())
	assert.ErrorIs(t, err, ErrFrameNotFound)

	ghost := tree.Node([]string{"#nope"})
	_, err = ghost.Identity(context.Background())
	assert.ErrorIs(t, err, ErrFrameNotFound)
	require.NoError(t, tree.Close())
}

func TestLocatorUpdateReachesTopLevel(t *testing.T) {
	defer goleak.VerifyNone(t)
	tree := startTree(t, nestedPage(t), Options{})
	got := make(chan LocatorUpdate, 1)
	tree.OnLocatorUpdate(func(u LocatorUpdate) { got <- u })

	tree.Node([]string{"#outer", "#inner"}).PublishLocator(context.Background(), "step-1", 2, "#t")

	select {
	case u := <-got:
		assert.Equal(t, []string{"#outer", "#inner"}, u.FramesPath)
		assert.Equal(t, "step-1", u.StepID)
		assert.Equal(t, 2, u.Index)
		assert.Equal(t, "#t", u.Locator)
	case <-time.After(time.Second):
		t.Fatal("locator update never arrived")
	}
	require.NoError(t, tree.Close())
}

func TestRelayTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	page := nestedPage(t)
	tree := NewTree(zaptest.NewLogger(t), func() (*dom.Document, error) { return page.Root, nil },
		Options{RelayTimeout: 20 * time.Millisecond})

	// Loops are not running, so nobody answers.
	_, err := tree.Node([]string{"#outer"}).Identity(context.Background())
	assert.ErrorIs(t, err, ErrRelayTimeout)
	require.NoError(t, tree.Close())

	_, err = tree.Node([]string{"#outer"}).Identity(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
