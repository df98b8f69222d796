// internal/browser/dom/query.go
package dom

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

// ErrInvalidLocator is returned when a locator cannot be compiled.
var ErrInvalidLocator = errors.New("invalid locator")

// Page is a snapshot of a tab: the root browsing context and, through frame
// elements, every nested one.
type Page struct {
	Root *Document
}

// Frame resolves a frames path (frame locators from the root down) to the
// document of the innermost frame.
func (p *Page) Frame(path []string) (*Document, error) {
	doc := p.Root
	for i, loc := range path {
		el, err := doc.Query(loc)
		if err != nil {
			return nil, fmt.Errorf("frames path entry %d: %w", i, err)
		}
		if el == nil || el.ContentDocument() == nil {
			return nil, fmt.Errorf("frames path entry %d (%s): %w", i, loc, ErrFrameNotFound)
		}
		doc = el.ContentDocument()
	}
	return doc, nil
}

// IsXPath reports whether a locator uses XPath syntax. An explicit `xpath=`
// or `css=` prefix overrides detection.
func IsXPath(locator string) bool {
	switch {
	case strings.HasPrefix(locator, "xpath="):
		return true
	case strings.HasPrefix(locator, "css="):
		return false
	}
	return strings.HasPrefix(locator, "/") || strings.HasPrefix(locator, "(")
}

func stripPrefix(locator string) string {
	if rest, ok := strings.CutPrefix(locator, "xpath="); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(locator, "css="); ok {
		return rest
	}
	return locator
}

// QueryAll returns every element matching the locator, in document order.
func (d *Document) QueryAll(locator string) ([]*Element, error) {
	expr := strings.TrimSpace(stripPrefix(locator))
	if expr == "" {
		return nil, fmt.Errorf("%w: empty locator", ErrInvalidLocator)
	}

	var nodes []*html.Node
	if IsXPath(locator) {
		found, err := htmlquery.QueryAll(d.root, expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidLocator, expr, err)
		}
		nodes = found
	} else {
		sel, err := cascadia.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidLocator, expr, err)
		}
		nodes = sel.MatchAll(d.root)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		if el, ok := d.elements[n]; ok {
			out = append(out, el)
		}
	}
	return out, nil
}

// Query returns the first element matching the locator, or nil when nothing matches.
// Not finding an element is not an error.
func (d *Document) Query(locator string) (*Element, error) {
	els, err := d.QueryAll(locator)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

// -- Hit Testing --

// ElementFromPoint returns the topmost hit-testable element at p, mirroring
// document.elementFromPoint. Points outside the viewport hit nothing.
func (d *Document) ElementFromPoint(p schemas.Point) *Element {
	if !d.Viewport().Contains(p) {
		return nil
	}
	var best *Element
	var bestOrder int64
	for _, el := range d.Elements() {
		if !el.Rect().Contains(p) || !el.IsHitTestable() {
			continue
		}
		if order := el.PaintOrder(); best == nil || order > bestOrder {
			best, bestOrder = el, order
		}
	}
	return best
}

// XPathOf returns a positional XPath for el, usable as a frames path entry.
func XPathOf(el *Element) string {
	var parts []string
	for n := el.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		idx := 1
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode && s.Data == n.Data {
				idx++
			}
		}
		parts = append([]string{fmt.Sprintf("%s[%d]", n.Data, idx)}, parts...)
	}
	return "/" + strings.Join(parts, "/")
}
