// internal/replay/static.go
package replay

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/chrome"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
	"github.com/xkilldash9x/replay-cli/internal/netidle"
	"github.com/xkilldash9x/replay-cli/internal/readiness/interaction"
	"github.com/xkilldash9x/replay-cli/internal/readiness/resolver"
	"github.com/xkilldash9x/replay-cli/internal/readiness/scheduler"
)

// listenerAttr declares the listeners bound to an element of a static
// snapshot, as a comma separated list of event types.
const listenerAttr = "data-listeners"

var staticClickEvents = map[string]bool{
	"click":       true,
	"mousedown":   true,
	"mouseup":     true,
	"pointerdown": true,
	"pointerup":   true,
}

// StaticBackend serves a parsed HTML snapshot. The page is mutated in place:
// scrolling shifts element boxes, focus clicks move the active element and
// Mutate applies arbitrary changes while a step is being resolved.
type StaticBackend struct {
	id      string
	logger  *zap.Logger
	monitor *netidle.Monitor

	// view excludes Mutate while a resolution attempt reads the page.
	view sync.RWMutex

	mu      sync.Mutex
	page    *dom.Page
	signals chrome.Signals
}

// NewStaticBackend wraps an already built page.
func NewStaticBackend(page *dom.Page, logger *zap.Logger) *StaticBackend {
	return &StaticBackend{
		id:      uuid.New().String(),
		logger:  logger.Named("static_backend"),
		monitor: netidle.NewMonitor(logger),
		page:    page,
	}
}

// LoadStaticBackend parses an HTML snapshot into a backend.
func LoadStaticBackend(r io.Reader, opts dom.ParseOptions, logger *zap.Logger) (*StaticBackend, error) {
	page, err := dom.ParseHTML(r, opts)
	if err != nil {
		return nil, err
	}
	return NewStaticBackend(page, logger), nil
}

func (b *StaticBackend) TabID() string { return b.id }

func (b *StaticBackend) Network() *netidle.Monitor { return b.monitor }

// Snapshot returns the live page. Successive snapshots share elements.
func (b *StaticBackend) Snapshot(ctx context.Context) (*dom.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page, nil
}

func (b *StaticBackend) Listen(s chrome.Signals) {
	b.mu.Lock()
	b.signals = s
	b.mu.Unlock()
}

func (b *StaticBackend) trigger(r scheduler.Reason) {
	b.mu.Lock()
	s := b.signals
	b.mu.Unlock()
	if s.Trigger != nil {
		s.Trigger(r)
	}
}

// LockView holds off mutations until the returned func is called.
func (b *StaticBackend) LockView() func() {
	b.view.RLock()
	return b.view.RUnlock
}

// Mutate applies fn to the page and signals a DOM mutation.
func (b *StaticBackend) Mutate(fn func(p *dom.Page) error) error {
	b.view.Lock()
	b.mu.Lock()
	page := b.page
	b.mu.Unlock()
	err := fn(page)
	b.view.Unlock()
	if err != nil {
		return err
	}
	b.trigger(scheduler.ReasonMutation)
	return nil
}

// ScrollIntoView scrolls the element's document so that the interaction
// point, or the whole element, lies inside the viewport. Fixed-position
// elements and the html and body boxes stay put.
func (b *StaticBackend) ScrollIntoView(ctx context.Context, el *dom.Element, opts resolver.ScrollOptions) (bool, error) {
	if !el.IsRenderedSelf() {
		if opts.IgnoreVisibility {
			return false, nil
		}
		return false, fmt.Errorf("element %s has no layout box", el.Describe())
	}
	target := el.Rect()
	if p, ok := interaction.Fixed(target, opts.Position); ok {
		target = schemas.Rect{X: p.X, Y: p.Y, Width: 1, Height: 1}
	}
	doc := el.Document()
	vp := doc.Viewport()
	dx := scrollDelta(target.X, target.Right(), vp.X, vp.Right())
	dy := scrollDelta(target.Y, target.Bottom(), vp.Y, vp.Bottom())
	if dx == 0 && dy == 0 {
		return true, nil
	}

	for _, e := range doc.Elements() {
		switch e.Tag() {
		case "html", "body":
			continue
		}
		if e.Style("position") == "fixed" {
			continue
		}
		e.SetRect(e.Rect().Translate(dx, dy))
	}

	b.logger.Debug("Scrolled static document",
		zap.String("element", el.Describe().String()), zap.Float64("dx", dx), zap.Float64("dy", dy))
	b.trigger(scheduler.ReasonWheel)
	return true, nil
}

// scrollDelta is the offset that brings [lo,hi] inside [vlo,vhi], aligning to
// the start edge when the span does not fit.
func scrollDelta(lo, hi, vlo, vhi float64) float64 {
	switch {
	case lo < vlo || hi-lo > vhi-vlo:
		return vlo - lo
	case hi > vhi:
		return vhi - hi
	}
	return 0
}

// TriggerFocus moves focus onto el in its document and onto the embedding
// frames in every ancestor document.
func (b *StaticBackend) TriggerFocus(ctx context.Context, el *dom.Element, at schemas.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	root := b.page.Root
	b.mu.Unlock()
	if !focusChain(root, el) {
		return fmt.Errorf("element %s is not part of the page", el.Describe())
	}
	b.logger.Debug("Focused static element",
		zap.String("element", el.Describe().String()), zap.Float64("x", at.X), zap.Float64("y", at.Y))
	return nil
}

func focusChain(doc *dom.Document, el *dom.Element) bool {
	if el.Document() == doc {
		doc.SetActiveElement(el)
		return true
	}
	for _, frame := range doc.Elements() {
		content := frame.ContentDocument()
		if content == nil {
			continue
		}
		if focusChain(content, el) {
			doc.SetActiveElement(frame)
			return true
		}
	}
	return false
}

// HasClickListener reads the element's declared listener list.
func (b *StaticBackend) HasClickListener(ctx context.Context, el *dom.Element) (bool, error) {
	v, ok := el.Attr(listenerAttr)
	if !ok {
		return false, nil
	}
	for _, ev := range strings.Split(v, ",") {
		if staticClickEvents[strings.TrimSpace(strings.ToLower(ev))] {
			return true, nil
		}
	}
	return false, nil
}
