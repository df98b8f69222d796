// internal/browser/chrome/actions.go
package chrome

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/domdebugger"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
	"github.com/xkilldash9x/replay-cli/internal/readiness/interaction"
	"github.com/xkilldash9x/replay-cli/internal/readiness/resolver"
)

// clickEvents are the listener types that make an element a click target.
var clickEvents = map[string]bool{
	"click":       true,
	"mousedown":   true,
	"mouseup":     true,
	"pointerdown": true,
	"pointerup":   true,
}

func backendID(el *dom.Element) cdp.BackendNodeID { return cdp.BackendNodeID(el.Key()) }

// scrollRect is the part of el that scroll-into-view should reveal: the fixed
// interaction point when one is configured, else the whole element.
func scrollRect(el *dom.Element, pos schemas.PositionSpec) *cdpdom.Rect {
	r := el.Rect()
	p, ok := interaction.Fixed(r, pos)
	if !ok {
		return nil
	}
	return &cdpdom.Rect{X: p.X - r.X, Y: p.Y - r.Y, Width: 1, Height: 1}
}

// ScrollIntoView scrolls el into view if needed. Elements without a box
// cannot be scrolled to and report false.
func (t *Tab) ScrollIntoView(ctx context.Context, el *dom.Element, opts resolver.ScrollOptions) (bool, error) {
	if !el.IsRenderedSelf() {
		if opts.IgnoreVisibility {
			return false, nil
		}
		return false, fmt.Errorf("element %s has no layout box", el.Describe())
	}
	p := cdpdom.ScrollIntoViewIfNeeded().WithBackendNodeID(backendID(el))
	if r := scrollRect(el, opts.Position); r != nil {
		p = p.WithRect(r)
	}
	if err := t.run(ctx, p); err != nil {
		return false, fmt.Errorf("scroll into view: %w", err)
	}
	return true, nil
}

// TriggerFocus clicks at the given top-level point to move focus onto el.
func (t *Tab) TriggerFocus(ctx context.Context, el *dom.Element, at schemas.Point) error {
	t.logger.Debug("Dispatching focus click",
		zap.String("element", el.Describe().String()), zap.Float64("x", at.X), zap.Float64("y", at.Y))
	return t.run(ctx,
		input.DispatchMouseEvent(input.MouseMoved, at.X, at.Y),
		input.DispatchMouseEvent(input.MousePressed, at.X, at.Y).WithButton(input.Left).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, at.X, at.Y).WithButton(input.Left).WithClickCount(1),
	)
}

// HasClickListener inspects the listeners bound directly to el.
func (t *Tab) HasClickListener(ctx context.Context, el *dom.Element) (bool, error) {
	var found bool
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := cdpdom.ResolveNode().WithBackendNodeID(backendID(el)).Do(ctx)
		if err != nil {
			return err
		}
		if obj == nil || obj.ObjectID == "" {
			return nil
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()
		listeners, err := domdebugger.GetEventListeners(obj.ObjectID).Do(ctx)
		if err != nil {
			return err
		}
		for _, l := range listeners {
			if l != nil && clickEvents[l.Type] {
				found = true
				return nil
			}
		}
		return nil
	}))
	if err != nil {
		return false, fmt.Errorf("listener lookup: %w", err)
	}
	return found, nil
}
