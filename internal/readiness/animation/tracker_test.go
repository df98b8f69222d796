// internal/readiness/animation/tracker_test.go
package animation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T, src string) (*Tracker, *dom.Document, *fakeClock) {
	t.Helper()
	page, err := dom.ParseHTMLString(src, dom.ParseOptions{})
	require.NoError(t, err)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := NewTracker(zaptest.NewLogger(t))
	tr.now = clock.Now
	t.Cleanup(tr.Reset)
	return tr, page.Root, clock
}

func mustQuery(t *testing.T, doc *dom.Document, loc string) *dom.Element {
	t.Helper()
	el, err := doc.Query(loc)
	require.NoError(t, err)
	require.NotNil(t, el, loc)
	return el
}

const page = `<html><body>
<div id="outer"><span id="child">x</span></div>
<div id="spinner" style="animation: spin 1s linear infinite"></div>
</body></html>`

func TestTracker_AncestorAnimationAffectsChild(t *testing.T) {
	tr, doc, clock := setup(t, page)
	outer := mustQuery(t, doc, "#outer")
	child := mustQuery(t, doc, "#child")

	tr.Start(Event{Key: outer.Key(), ID: "a1", Name: "slide", Deadline: clock.Now().Add(time.Second)})
	assert.True(t, tr.InActiveTree(child))
	assert.False(t, tr.OnlyInfinite(child))

	clock.Advance(time.Second)
	assert.False(t, tr.InActiveTree(child), "deadline passed, end inferred")
}

func TestTracker_EndTriggersHook(t *testing.T) {
	tr, doc, _ := setup(t, page)
	outer := mustQuery(t, doc, "#outer")

	var reasons []string
	tr.OnEnd(func(r string) { reasons = append(reasons, r) })

	tr.Start(Event{Key: outer.Key(), ID: "a1"})
	tr.End(outer.Key(), "a1")
	tr.End(outer.Key(), "a1")
	tr.TransitionStart(outer.Key(), time.Minute)
	assert.True(t, tr.IsTransitioning(outer))
	tr.TransitionEnd(outer.Key())

	assert.Equal(t, []string{"animationend", "transitionend"}, reasons)
	assert.Empty(t, tr.Active())
}

func TestTracker_InferredEndTriggersHook(t *testing.T) {
	pg, err := dom.ParseHTMLString(page, dom.ParseOptions{})
	require.NoError(t, err)
	tr := NewTracker(zaptest.NewLogger(t))
	t.Cleanup(tr.Reset)
	outer := mustQuery(t, pg.Root, "#outer")
	child := mustQuery(t, pg.Root, "#child")

	ended := make(chan string, 4)
	tr.OnEnd(func(r string) { ended <- r })
	tr.Start(Event{Key: outer.Key(), ID: "a1", Deadline: time.Now().Add(20 * time.Millisecond)})
	tr.TransitionStart(child.Key(), 40*time.Millisecond)

	var reasons []string
	for len(reasons) < 2 {
		select {
		case r := <-ended:
			reasons = append(reasons, r)
		case <-time.After(2 * time.Second):
			t.Fatalf("inferred ends not reported, got %v", reasons)
		}
	}
	assert.ElementsMatch(t, []string{"animationend", "transitionend"}, reasons)
	assert.False(t, tr.InActiveTree(outer))
	assert.False(t, tr.IsTransitioning(child))
}

func TestTracker_PurgeOnQueryTriggersHook(t *testing.T) {
	tr, doc, clock := setup(t, page)
	outer := mustQuery(t, doc, "#outer")

	var reasons []string
	tr.OnEnd(func(r string) { reasons = append(reasons, r) })
	tr.Start(Event{Key: outer.Key(), ID: "a1", Deadline: clock.Now().Add(time.Hour)})
	assert.True(t, tr.InActiveTree(outer))

	clock.Advance(2 * time.Hour)
	assert.False(t, tr.InActiveTree(outer))
	assert.Equal(t, []string{"animationend"}, reasons)
}

func TestTracker_ScanStylesInfiniteOnly(t *testing.T) {
	tr, doc, _ := setup(t, page)
	spinner := mustQuery(t, doc, "#spinner")
	child := mustQuery(t, doc, "#child")

	tr.ScanStyles(doc)
	assert.True(t, tr.InInfiniteTree(spinner))
	assert.False(t, tr.InActiveTree(spinner))
	assert.True(t, tr.OnlyInfinite(spinner))
	assert.False(t, tr.InInfiniteTree(child))
}

func TestTracker_OnMutations(t *testing.T) {
	tr, doc, clock := setup(t, page)
	outer := mustQuery(t, doc, "#outer")
	spinner := mustQuery(t, doc, "#spinner")
	tr.ScanStyles(doc)
	before := doc.KeySet()

	// Removal purges, zero duration purges, a delayed insert is pre-registered.
	body := mustQuery(t, doc, "body")
	added, err := doc.Insert(body, `<div id="late" style="animation: fade 500ms ease 200ms"></div>`)
	require.NoError(t, err)
	require.Len(t, added, 1)
	tr.Start(Event{Key: outer.Key(), ID: "a1", Deadline: clock.Now().Add(time.Hour)})
	outer.SetStyle("animation-duration", "0s")
	doc.Remove(spinner)

	tr.OnMutations(dom.Diff(before, doc), doc)

	late := added[0]
	assert.True(t, tr.InActiveTree(late))
	assert.False(t, tr.InActiveTree(outer))
	assert.Len(t, tr.Active(), 1)

	clock.Advance(700 * time.Millisecond)
	assert.False(t, tr.InActiveTree(late), "delay + duration elapsed")

	tr.Start(Event{Key: outer.Key(), ID: "b"})
	tr.Reset()
	assert.Empty(t, tr.Active())
}

func TestIterationCount(t *testing.T) {
	assert.True(t, math.IsInf(IterationCount("infinite"), 1))
	assert.Equal(t, 2.5, IterationCount("2.5"))
	assert.Equal(t, 1.0, IterationCount("bogus"))

	start := time.Unix(0, 0)
	assert.Equal(t, start.Add(3500*time.Millisecond), InferDeadline(start, 500*time.Millisecond, time.Second, 3))
}
