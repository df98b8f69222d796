// internal/readiness/animation/tracker.go
package animation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
)

// Event describes an observed or inferred animation start.
type Event struct {
	Key dom.NodeKey
	// ID distinguishes concurrent animations on the same element.
	ID   string
	Name string
	// Infinite marks an infinite iteration count.
	Infinite bool
	// Deadline is when the animation is expected to end. Zero means the end
	// is only known from an explicit end or cancel signal.
	Deadline time.Time
}

// Record is one tracked animation.
type Record struct {
	Event
	Started time.Time
}

// Tracker maintains the active, infinite-only and transitioning sets for one
// browsing context. It is owned by a single resolver/scheduler pair and reset
// between runs.
type Tracker struct {
	logger *zap.Logger
	now    func() time.Time

	mu            sync.Mutex
	active        map[dom.NodeKey]map[string]Record
	transitioning map[dom.NodeKey]time.Time
	onEnd         func(reason string)

	// wake fires at wakeAt, the earliest inferred deadline, so an end that no
	// event reports still reaches the hook.
	wake   *time.Timer
	wakeAt time.Time
}

// NewTracker creates an empty tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		logger:        logger.Named("animation_tracker"),
		now:           time.Now,
		active:        make(map[dom.NodeKey]map[string]Record),
		transitioning: make(map[dom.NodeKey]time.Time),
	}
}

// OnEnd registers a hook invoked (outside the lock) whenever an animation or
// transition ends. The recheck scheduler uses it as a trigger.
func (t *Tracker) OnEnd(fn func(reason string)) {
	t.mu.Lock()
	t.onEnd = fn
	t.armLocked()
	t.mu.Unlock()
}

// -- Signals --

// Start records an animation start. A repeated start for the same id refreshes it.
func (t *Tracker) Start(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	recs, ok := t.active[ev.Key]
	if !ok {
		recs = make(map[string]Record)
		t.active[ev.Key] = recs
	}
	recs[ev.ID] = Record{Event: ev, Started: t.now()}
	t.armLocked()
	t.logger.Debug("Animation started",
		zap.Int64("node", int64(ev.Key)),
		zap.String("id", ev.ID),
		zap.String("name", ev.Name),
		zap.Bool("infinite", ev.Infinite))
}

// End records an animation end.
func (t *Tracker) End(key dom.NodeKey, id string) {
	t.mu.Lock()
	removed := t.removeLocked(key, id)
	hook := t.onEnd
	t.mu.Unlock()
	if removed && hook != nil {
		hook("animationend")
	}
}

// Cancel records an animation cancellation. It is treated as an end.
func (t *Tracker) Cancel(key dom.NodeKey, id string) {
	t.End(key, id)
}

func (t *Tracker) removeLocked(key dom.NodeKey, id string) bool {
	recs, ok := t.active[key]
	if !ok {
		return false
	}
	if _, ok := recs[id]; !ok {
		return false
	}
	delete(recs, id)
	if len(recs) == 0 {
		delete(t.active, key)
	}
	return true
}

// TransitionStart marks the element as transitioning for d.
func (t *Tracker) TransitionStart(key dom.NodeKey, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	deadline := t.now().Add(d)
	if cur, ok := t.transitioning[key]; !ok || deadline.After(cur) {
		t.transitioning[key] = deadline
	}
	t.armLocked()
}

// TransitionEnd clears the transition state of the element.
func (t *Tracker) TransitionEnd(key dom.NodeKey) {
	t.mu.Lock()
	_, ok := t.transitioning[key]
	delete(t.transitioning, key)
	hook := t.onEnd
	t.mu.Unlock()
	if ok && hook != nil {
		hook("transitionend")
	}
}

// -- Inference --

// OnMutations reconciles the tracker with a mutation batch:
//  1. entries for removed elements are purged;
//  2. entries for elements that now report zero animation and transition
//     duration are purged;
//  3. inserted elements with a nonzero animation-delay are pre-registered so a
//     late start signal cannot slip past a readiness check.
func (t *Tracker) OnMutations(batch dom.MutationBatch, doc *dom.Document) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, k := range batch.Removed {
		delete(t.active, k)
		delete(t.transitioning, k)
	}

	for k := range t.active {
		el := doc.ElementByKey(k)
		if el == nil {
			continue
		}
		if zeroDuration(el, "animation-duration") && zeroDuration(el, "transition-duration") {
			delete(t.active, k)
			delete(t.transitioning, k)
		}
	}
	for k := range t.transitioning {
		if el := doc.ElementByKey(k); el != nil && zeroDuration(el, "transition-duration") {
			delete(t.transitioning, k)
		}
	}

	for _, el := range batch.Added {
		ev, ok := declared(el, now)
		if !ok {
			continue
		}
		if delay, _ := dom.ParseDuration(el.Style("animation-delay")); delay <= 0 {
			continue
		}
		recs, ok := t.active[ev.Key]
		if !ok {
			recs = make(map[string]Record)
			t.active[ev.Key] = recs
		}
		if _, exists := recs[ev.ID]; !exists {
			recs[ev.ID] = Record{Event: ev, Started: now}
			t.logger.Debug("Pre-registered delayed animation", zap.Int64("node", int64(ev.Key)), zap.String("name", ev.Name))
		}
	}
	t.armLocked()
}

// ScanStyles registers every element of doc that declares a running CSS
// animation or transition. Snapshots without an event feed rely on this.
func (t *Tracker) ScanStyles(doc *dom.Document) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, el := range doc.Elements() {
		if ev, ok := declared(el, now); ok {
			recs, ok := t.active[ev.Key]
			if !ok {
				recs = make(map[string]Record)
				t.active[ev.Key] = recs
			}
			if _, exists := recs[ev.ID]; !exists {
				recs[ev.ID] = Record{Event: ev, Started: now}
			}
		}
		if d, ok := dom.ParseDuration(el.Style("transition-duration")); ok && d > 0 {
			if _, exists := t.transitioning[el.Key()]; !exists {
				delay, _ := dom.ParseDuration(el.Style("transition-delay"))
				t.transitioning[el.Key()] = now.Add(delay + d)
			}
		}
	}
	t.armLocked()
}

// declared derives a start event from an element's animation styles.
func declared(el *dom.Element, now time.Time) (Event, bool) {
	name := el.Style("animation-name")
	dur, _ := dom.ParseDuration(el.Style("animation-duration"))
	if name == "" || name == "none" || dur <= 0 {
		return Event{}, false
	}
	delay, _ := dom.ParseDuration(el.Style("animation-delay"))
	ev := Event{Key: el.Key(), ID: fmt.Sprintf("css:%s", name), Name: name}
	iterations := IterationCount(el.Style("animation-iteration-count"))
	if math.IsInf(iterations, 1) {
		ev.Infinite = true
	} else {
		ev.Deadline = InferDeadline(now, delay, dur, iterations)
	}
	return ev, true
}

// IterationCount parses an animation-iteration-count value; "infinite" maps
// to +Inf and unparsable values to 1.
func IterationCount(v string) float64 {
	v = strings.TrimSpace(strings.Split(v, ",")[0])
	if v == "infinite" {
		return math.Inf(1)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 1
	}
	return f
}

// InferDeadline computes when a finite animation is expected to end.
func InferDeadline(start time.Time, delay, duration time.Duration, iterations float64) time.Time {
	return start.Add(delay + time.Duration(float64(duration)*iterations))
}

func zeroDuration(el *dom.Element, prop string) bool {
	d, ok := dom.ParseDuration(el.Style(prop))
	return !ok || d <= 0
}

// -- Queries --

// purgeLocked drops entries whose inferred deadline has passed and returns
// the end reasons to report for them.
func (t *Tracker) purgeLocked(now time.Time) []string {
	var ended []string
	animEnded := false
	for k, recs := range t.active {
		for id, r := range recs {
			if !r.Deadline.IsZero() && !now.Before(r.Deadline) {
				delete(recs, id)
				animEnded = true
			}
		}
		if len(recs) == 0 {
			delete(t.active, k)
		}
	}
	if animEnded {
		ended = append(ended, "animationend")
	}
	transEnded := false
	for k, deadline := range t.transitioning {
		if !now.Before(deadline) {
			delete(t.transitioning, k)
			transEnded = true
		}
	}
	if transEnded {
		ended = append(ended, "transitionend")
	}
	return ended
}

// purge expires entries and reports their ends outside the lock.
func (t *Tracker) purge() {
	t.mu.Lock()
	ended := t.purgeLocked(t.now())
	hook := t.onEnd
	t.mu.Unlock()
	notify(hook, ended)
}

func notify(hook func(reason string), ended []string) {
	if hook == nil {
		return
	}
	for _, reason := range ended {
		hook(reason)
	}
}

// nextDeadlineLocked returns the earliest pending inferred deadline, or zero.
func (t *Tracker) nextDeadlineLocked() time.Time {
	var next time.Time
	for _, recs := range t.active {
		for _, r := range recs {
			if !r.Deadline.IsZero() && (next.IsZero() || r.Deadline.Before(next)) {
				next = r.Deadline
			}
		}
	}
	for _, deadline := range t.transitioning {
		if next.IsZero() || deadline.Before(next) {
			next = deadline
		}
	}
	return next
}

// armLocked schedules an expiry check at the earliest deadline. Nothing is
// armed while no hook is registered.
func (t *Tracker) armLocked() {
	if t.onEnd == nil {
		return
	}
	next := t.nextDeadlineLocked()
	if next.IsZero() || (!t.wakeAt.IsZero() && !next.Before(t.wakeAt)) {
		return
	}
	if t.wake != nil {
		t.wake.Stop()
	}
	t.wakeAt = next
	t.wake = time.AfterFunc(next.Sub(t.now()), t.expire)
}

func (t *Tracker) expire() {
	t.mu.Lock()
	t.wake, t.wakeAt = nil, time.Time{}
	ended := t.purgeLocked(t.now())
	t.armLocked()
	hook := t.onEnd
	t.mu.Unlock()
	notify(hook, ended)
}

// scan walks el and its ancestors, reporting whether any carries a finite or
// an infinite animation.
func (t *Tracker) scan(el *dom.Element) (finite, infinite bool) {
	chain := el.Ancestors()
	t.purge()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range chain {
		for _, r := range t.active[a.Key()] {
			if r.Infinite {
				infinite = true
			} else {
				finite = true
			}
		}
	}
	return finite, infinite
}

// InActiveTree reports whether el or an ancestor runs a finite animation.
func (t *Tracker) InActiveTree(el *dom.Element) bool {
	finite, _ := t.scan(el)
	return finite
}

// InInfiniteTree reports whether el or an ancestor runs an infinite animation.
func (t *Tracker) InInfiniteTree(el *dom.Element) bool {
	_, infinite := t.scan(el)
	return infinite
}

// IsTransitioning reports whether el or an ancestor is mid-transition.
func (t *Tracker) IsTransitioning(el *dom.Element) bool {
	chain := el.Ancestors()
	t.purge()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range chain {
		if _, ok := t.transitioning[a.Key()]; ok {
			return true
		}
	}
	return false
}

// OnlyInfinite reports whether the only animations affecting el are infinite.
func (t *Tracker) OnlyInfinite(el *dom.Element) bool {
	finite, infinite := t.scan(el)
	return infinite && !finite && !t.IsTransitioning(el)
}

// Active returns a copy of every tracked animation, for diagnostics.
func (t *Tracker) Active() []Record {
	t.purge()
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Record
	for _, recs := range t.active {
		for _, r := range recs {
			out = append(out, r)
		}
	}
	return out
}

// Reset clears all state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = make(map[dom.NodeKey]map[string]Record)
	t.transitioning = make(map[dom.NodeKey]time.Time)
	if t.wake != nil {
		t.wake.Stop()
	}
	t.wake, t.wakeAt = nil, time.Time{}
}
