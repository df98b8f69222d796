// internal/browser/chrome/chrome_test.go
package chrome

import (
	"testing"
	"time"

	cdpanim "github.com/chromedp/cdproto/animation"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/domsnapshot"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
	"github.com/xkilldash9x/replay-cli/internal/config"
	"github.com/xkilldash9x/replay-cli/internal/netidle"
	"github.com/xkilldash9x/replay-cli/internal/readiness/animation"
	"github.com/xkilldash9x/replay-cli/internal/readiness/scheduler"
)

// strtab builds a snapshot string table.
type strtab struct {
	strs []string
	idx  map[string]domsnapshot.StringIndex
}

func (s *strtab) at(v string) domsnapshot.StringIndex {
	if s.idx == nil {
		s.idx = map[string]domsnapshot.StringIndex{}
	}
	if i, ok := s.idx[v]; ok {
		return i
	}
	i := domsnapshot.StringIndex(len(s.strs))
	s.strs = append(s.strs, v)
	s.idx[v] = i
	return i
}

// ref is at for the plain int64 entries of an ArrayOfStrings.
func (s *strtab) ref(v string) int64 { return int64(s.at(v)) }

func (s *strtab) styles(display string) domsnapshot.ArrayOfStrings {
	out := make(domsnapshot.ArrayOfStrings, len(dom.TrackedStyles))
	for k, prop := range dom.TrackedStyles {
		v := ""
		switch prop {
		case "display":
			v = display
		case "visibility":
			v = "visible"
		case "opacity":
			v = "1"
		}
		out[k] = s.ref(v)
	}
	return out
}

// twoDocumentSnapshot models:
//
//	#document
//	  html (1)
//	    body (2)
//	      button#go (3, clickable) "Go"
//	      div hidden (5, no layout)
//	      iframe#f (6) -> document 1
//	document 1:
//	  #document
//	    html (10)
//	      input#name (11)
func twoDocumentSnapshot() Snapshot {
	var s strtab
	top := &domsnapshot.DocumentSnapshot{
		DocumentURL:   s.at("https://example.test/"),
		FrameID:       s.at("frame-main"),
		ScrollOffsetY: 100,
		Nodes: &domsnapshot.NodeTreeSnapshot{
			ParentIndex:   []int64{-1, 0, 1, 2, 3, 2, 2},
			NodeType:      []int64{9, 1, 1, 1, 3, 1, 1},
			NodeName:      []domsnapshot.StringIndex{s.at("#document"), s.at("HTML"), s.at("BODY"), s.at("BUTTON"), s.at("#text"), s.at("DIV"), s.at("IFRAME")},
			NodeValue:     []domsnapshot.StringIndex{-1, -1, -1, -1, s.at("Go"), -1, -1},
			BackendNodeID: []cdp.BackendNodeID{100, 1, 2, 3, 4, 5, 6},
			Attributes: []domsnapshot.ArrayOfStrings{
				{}, {}, {},
				{s.ref("id"), s.ref("go")},
				{},
				{s.ref("class"), s.ref("ghost")},
				{s.ref("id"), s.ref("f")},
			},
			IsClickable:          &domsnapshot.RareBooleanData{Index: []int64{3}},
			ContentDocumentIndex: &domsnapshot.RareIntegerData{Index: []int64{6}, Value: []int64{1}},
		},
		Layout: &domsnapshot.LayoutTreeSnapshot{
			NodeIndex:   []int64{1, 2, 3, 4, 6},
			Styles:      []domsnapshot.ArrayOfStrings{s.styles("block"), s.styles("block"), s.styles("inline-block"), s.styles("inline"), s.styles("inline")},
			Bounds:      []domsnapshot.Rectangle{{0, 0, 800, 2000}, {0, 0, 800, 2000}, {10, 150, 80, 30}, {12, 152, 20, 10}, {0, 300, 400, 200}},
			PaintOrders: []int64{1, 2, 3, 4, 5},
		},
	}
	frame := &domsnapshot.DocumentSnapshot{
		DocumentURL: s.at("https://example.test/frame"),
		FrameID:     s.at("frame-child"),
		Nodes: &domsnapshot.NodeTreeSnapshot{
			ParentIndex:   []int64{-1, 0, 1},
			NodeType:      []int64{9, 1, 1},
			NodeName:      []domsnapshot.StringIndex{s.at("#document"), s.at("HTML"), s.at("INPUT")},
			NodeValue:     []domsnapshot.StringIndex{-1, -1, -1},
			BackendNodeID: []cdp.BackendNodeID{101, 10, 11},
			Attributes:    []domsnapshot.ArrayOfStrings{{}, {}, {s.ref("id"), s.ref("name")}},
		},
		Layout: &domsnapshot.LayoutTreeSnapshot{
			NodeIndex:   []int64{1, 2},
			Styles:      []domsnapshot.ArrayOfStrings{s.styles("block"), s.styles("inline-block")},
			Bounds:      []domsnapshot.Rectangle{{0, 0, 400, 200}, {5, 5, 100, 20}},
			PaintOrders: []int64{1, 2},
		},
	}
	return Snapshot{Documents: []*domsnapshot.DocumentSnapshot{top, frame}, Strings: s.strs}
}

func TestBuildPage(t *testing.T) {
	page, err := BuildPage(twoDocumentSnapshot(), PageState{
		Viewport:   schemas.Rect{Width: 800, Height: 600},
		ReadyState: dom.ReadyInteractive,
		Focused:    11,
	})
	require.NoError(t, err)
	root := page.Root

	assert.Equal(t, "https://example.test/", root.URL())
	assert.Equal(t, "frame-main", root.ContextID())
	assert.Equal(t, dom.ReadyInteractive, root.ReadyState())

	btn, err := root.Query("#go")
	require.NoError(t, err)
	require.NotNil(t, btn)
	assert.Equal(t, dom.NodeKey(3), btn.Key(), "keys are backend node ids")
	assert.Equal(t, schemas.Rect{X: 10, Y: 50, Width: 80, Height: 30}, btn.Rect(), "rects are shifted by the scroll offset")
	assert.True(t, btn.Clickable())
	assert.Equal(t, "Go", btn.Text())
	assert.True(t, btn.IsRendered())

	ghost, err := root.Query("//div[@class='ghost']")
	require.NoError(t, err)
	require.NotNil(t, ghost)
	assert.False(t, ghost.IsRenderedSelf(), "elements without a layout object have no box")

	child, err := page.Frame([]string{"#f"})
	require.NoError(t, err)
	assert.Equal(t, schemas.Rect{Width: 400, Height: 200}, child.Viewport())
	assert.Equal(t, "frame-child", child.ContextID())

	input, err := child.Query("#name")
	require.NoError(t, err)
	require.NotNil(t, input)
	assert.Same(t, input, child.ActiveElement(), "the focused element is active in its own document")
	frameEl, err := root.Query("#f")
	require.NoError(t, err)
	assert.Same(t, frameEl, root.ActiveElement(), "ancestor documents see the embedding frame as active")
}

func TestBuildPage_Errors(t *testing.T) {
	_, err := BuildPage(Snapshot{}, PageState{})
	assert.Error(t, err)

	snap := twoDocumentSnapshot()
	snap.Documents = snap.Documents[:1]
	_, err = BuildPage(snap, PageState{})
	assert.ErrorContains(t, err, "missing document 1")
}

func TestAnimationEvent(t *testing.T) {
	now := time.Unix(1000, 0)

	ev, transition, ok := animationEvent(&cdpanim.Animation{
		ID:           "a1",
		Name:         "spin",
		Type:         cdpanim.TypeCSSAnimation,
		PlaybackRate: 1,
		Source:       &cdpanim.Effect{BackendNodeID: 7, Delay: 100, Duration: 200, Iterations: 3},
	}, now)
	require.True(t, ok)
	assert.False(t, transition)
	assert.Equal(t, dom.NodeKey(7), ev.Key)
	assert.False(t, ev.Infinite)
	assert.Equal(t, now.Add(700*time.Millisecond), ev.Deadline)

	ev, _, ok = animationEvent(&cdpanim.Animation{
		ID:     "a2",
		Type:   cdpanim.TypeCSSAnimation,
		Source: &cdpanim.Effect{BackendNodeID: 7, Duration: 200, Iterations: 1e12},
	}, now)
	require.True(t, ok)
	assert.True(t, ev.Infinite)
	assert.True(t, ev.Deadline.IsZero())

	ev, transition, ok = animationEvent(&cdpanim.Animation{
		ID:           "t1",
		Type:         cdpanim.TypeCSSTransition,
		PlaybackRate: 2,
		Source:       &cdpanim.Effect{BackendNodeID: 8, Duration: 400},
	}, now)
	require.True(t, ok)
	assert.True(t, transition)
	assert.Equal(t, now.Add(200*time.Millisecond), ev.Deadline, "playback rate scales the duration")

	_, _, ok = animationEvent(&cdpanim.Animation{ID: "detached", Source: &cdpanim.Effect{}}, now)
	assert.False(t, ok)
}

func TestFeed_Dispatch(t *testing.T) {
	logger := zaptest.NewLogger(t)
	monitor := netidle.NewMonitor(logger)
	monitor.BeginRun("tab")
	tracker := animation.NewTracker(logger)

	f := newFeed("tab", logger, monitor)
	var reasons []scheduler.Reason
	f.attach(Signals{Trigger: func(r scheduler.Reason) { reasons = append(reasons, r) }, Tracker: tracker})

	f.handle(&network.EventRequestWillBeSent{RequestID: "r1", Request: &network.Request{URL: "https://example.test/app.js"}})
	n, _ := monitor.PendingRequests("tab")
	assert.Equal(t, 1, n)
	f.handle(&network.EventLoadingFinished{RequestID: "r1"})
	n, _ = monitor.PendingRequests("tab")
	assert.Zero(t, n)

	f.handle(&cdpanim.EventAnimationStarted{Animation: &cdpanim.Animation{
		ID: "a1", Type: cdpanim.TypeCSSAnimation, Source: &cdpanim.Effect{BackendNodeID: 3, Duration: 60000, Iterations: 1},
	}})
	assert.Len(t, tracker.Active(), 1)
	f.handle(&cdpanim.EventAnimationCanceled{ID: "a1"})
	assert.Empty(t, tracker.Active())

	f.handle(&page.EventDomContentEventFired{})
	f.handle(&page.EventLoadEventFired{})
	assert.Equal(t, []scheduler.Reason{scheduler.ReasonDOMContentLoaded, scheduler.ReasonLoad}, reasons)

	f.handle(&network.EventRequestWillBeSent{RequestID: "r2", Request: &network.Request{URL: "data:image/png;base64,AAAA"}})
	n, _ = monitor.PendingRequests("tab")
	assert.Zero(t, n, "data urls never count as pending")
}

func TestAllocatorOptions(t *testing.T) {
	base := AllocatorOptions(config.BrowserConfig{Viewport: config.ViewportConfig{Width: 1280, Height: 800}})
	withExtras := AllocatorOptions(config.BrowserConfig{
		Headless: true,
		ExecPath: "/usr/bin/chromium",
		Args:     []string{"--disable-dev-shm-usage", "lang=en-US"},
		Viewport: config.ViewportConfig{Width: 1280, Height: 800},
	})
	assert.Len(t, withExtras, len(base)+4)
}
