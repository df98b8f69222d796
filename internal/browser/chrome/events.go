// internal/browser/chrome/events.go
package chrome

import (
	"math"
	"sync"
	"time"

	cdpanim "github.com/chromedp/cdproto/animation"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
	"github.com/xkilldash9x/replay-cli/internal/netidle"
	"github.com/xkilldash9x/replay-cli/internal/readiness/animation"
	"github.com/xkilldash9x/replay-cli/internal/readiness/scheduler"
)

// infiniteIterations is the cutoff above which an iteration count is treated
// as infinite; the protocol cannot carry an IEEE infinity.
const infiniteIterations = 1e9

// Signals receives the readiness signals derived from browser events.
type Signals struct {
	Trigger func(scheduler.Reason)
	Tracker *animation.Tracker
}

// feed dispatches CDP events of one tab. Handlers run on the chromedp event
// goroutine and must not issue commands.
type feed struct {
	tabID   string
	logger  *zap.Logger
	monitor *netidle.Monitor

	mu      sync.Mutex
	signals Signals
	// owners maps an animation id to the element it runs on, for cancellation.
	owners map[string]dom.NodeKey
	now    func() time.Time
}

func newFeed(tabID string, logger *zap.Logger, monitor *netidle.Monitor) *feed {
	return &feed{
		tabID:   tabID,
		logger:  logger,
		monitor: monitor,
		owners:  make(map[string]dom.NodeKey),
		now:     time.Now,
	}
}

func (f *feed) attach(s Signals) {
	f.mu.Lock()
	f.signals = s
	f.owners = make(map[string]dom.NodeKey)
	f.mu.Unlock()
}

func (f *feed) current() Signals {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signals
}

func (f *feed) trigger(r scheduler.Reason) {
	if s := f.current(); s.Trigger != nil {
		s.Trigger(r)
	}
}

func (f *feed) handle(ev interface{}) {
	switch e := ev.(type) {
	// -- Network --
	case *network.EventRequestWillBeSent:
		if e.Request != nil {
			f.monitor.RequestStarted(f.tabID, string(e.RequestID), e.Request.URL)
		}
	case *network.EventLoadingFinished:
		f.monitor.RequestFinished(f.tabID, string(e.RequestID))
	case *network.EventLoadingFailed:
		f.monitor.RequestFinished(f.tabID, string(e.RequestID))

	// -- Animations --
	case *cdpanim.EventAnimationStarted:
		f.animationStarted(e.Animation)
	case *cdpanim.EventAnimationCanceled:
		f.animationCanceled(e.ID)

	// -- Document --
	case *cdpdom.EventDocumentUpdated,
		*cdpdom.EventChildNodeInserted,
		*cdpdom.EventChildNodeRemoved,
		*cdpdom.EventAttributeModified,
		*cdpdom.EventAttributeRemoved:
		f.trigger(scheduler.ReasonMutation)

	// -- Page lifecycle --
	case *page.EventDomContentEventFired:
		f.trigger(scheduler.ReasonDOMContentLoaded)
	case *page.EventLoadEventFired:
		f.trigger(scheduler.ReasonLoad)
	case *page.EventFrameResized:
		f.trigger(scheduler.ReasonResize)
	}
}

func (f *feed) animationStarted(a *cdpanim.Animation) {
	s := f.current()
	if s.Tracker == nil {
		return
	}
	now := f.now()
	ev, transition, ok := animationEvent(a, now)
	if !ok {
		return
	}
	if transition {
		s.Tracker.TransitionStart(ev.Key, ev.Deadline.Sub(now))
		return
	}
	f.mu.Lock()
	f.owners[ev.ID] = ev.Key
	f.mu.Unlock()
	s.Tracker.Start(ev)
}

func (f *feed) animationCanceled(id string) {
	f.mu.Lock()
	key, ok := f.owners[id]
	delete(f.owners, id)
	tracker := f.signals.Tracker
	f.mu.Unlock()
	if ok && tracker != nil {
		tracker.Cancel(key, id)
	}
}

// animationEvent converts a protocol animation into a tracker event. The
// second result reports a CSS transition. Deadlines are inferred from delay,
// duration and iteration count since the protocol has no end event.
func animationEvent(a *cdpanim.Animation, now time.Time) (animation.Event, bool, bool) {
	if a == nil || a.Source == nil || a.Source.BackendNodeID == 0 {
		return animation.Event{}, false, false
	}
	src := a.Source
	ev := animation.Event{
		Key:  dom.NodeKey(src.BackendNodeID),
		ID:   a.ID,
		Name: a.Name,
	}
	delay := ms(src.Delay)
	duration := ms(src.Duration)
	rate := a.PlaybackRate
	if rate > 0 && rate != 1 {
		duration = time.Duration(float64(duration) / rate)
	}

	iterations := src.Iterations
	if math.IsInf(iterations, 1) || iterations >= infiniteIterations {
		ev.Infinite = true
	} else {
		if iterations <= 0 {
			iterations = 1
		}
		ev.Deadline = animation.InferDeadline(now, delay, duration, iterations)
	}
	transition := a.Type == cdpanim.TypeCSSTransition
	if transition && ev.Infinite {
		return animation.Event{}, false, false
	}
	return ev, transition, true
}

func ms(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}
