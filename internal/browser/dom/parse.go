// internal/browser/dom/parse.go
package dom

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

// paintLayer separates stacking levels in the synthetic paint order of parsed
// documents; within a level, later elements paint on top.
const paintLayer = int64(1_000_000)

// ParseOptions configures how a static HTML snapshot is turned into a Page.
type ParseOptions struct {
	URL      string
	Viewport schemas.Rect
}

// ParseHTML builds a Page from a static HTML snapshot.
//
// Parsed documents carry no layout engine: an element's border box is read
// from its inline `left`, `top`, `width` and `height` declarations, taken as
// absolute viewport coordinates. The html and body elements default to the
// full viewport. Frames are declared with `srcdoc` and become nested documents
// whose viewport is the frame's box.
func ParseHTML(r io.Reader, opts ParseOptions) (*Page, error) {
	if opts.Viewport.IsEmpty() {
		opts.Viewport = schemas.Rect{Width: 1280, Height: 800}
	}
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html snapshot: %w", err)
	}
	doc := NewDocument(root, opts.URL, opts.Viewport)
	doc.SetContextID("main")
	if err := doc.attachTree(root, 0); err != nil {
		return nil, err
	}
	return &Page{Root: doc}, nil
}

// ParseHTMLString is a convenience wrapper over ParseHTML.
func ParseHTMLString(src string, opts ParseOptions) (*Page, error) {
	return ParseHTML(strings.NewReader(src), opts)
}

func (d *Document) attachTree(n *html.Node, parentZ int64) error {
	z := parentZ
	if n.Type == html.ElementNode {
		layout := d.inlineLayout(n)
		if v, ok := layout.Style["z-index"]; ok {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				z = parsed
			}
		}
		d.mu.Lock()
		layout.PaintOrder = z*paintLayer + int64(d.keys.peek())
		el := d.attachLocked(n, layout)
		d.mu.Unlock()

		if strings.EqualFold(n.Data, "iframe") || strings.EqualFold(n.Data, "frame") {
			if src, ok := attr(n, "srcdoc"); ok {
				r := layout.Rect
				child, err := html.Parse(strings.NewReader(src))
				if err != nil {
					return fmt.Errorf("failed to parse srcdoc frame: %w", err)
				}
				cd := NewDocument(child, "about:srcdoc", schemas.Rect{Width: r.Width, Height: r.Height})
				cd.SetContextID(fmt.Sprintf("%s/%d", d.ctxID, el.Key()))
				cd.ShareKeys(d)
				if err := cd.attachTree(child, 0); err != nil {
					return err
				}
				d.SetContentDocument(el, cd)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := d.attachTree(c, z); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) inlineLayout(n *html.Node) Layout {
	style := map[string]string{}
	if s, ok := attr(n, "style"); ok {
		style = ParseInlineStyle(s)
	}
	var r schemas.Rect
	tag := strings.ToLower(n.Data)
	if tag == "html" || tag == "body" {
		r = d.viewport
	}
	if v, ok := ParsePx(style["left"]); ok {
		r.X = v
	}
	if v, ok := ParsePx(style["top"]); ok {
		r.Y = v
	}
	if v, ok := ParsePx(style["width"]); ok {
		r.Width = v
	}
	if v, ok := ParsePx(style["height"]); ok {
		r.Height = v
	}
	return Layout{Rect: r, Style: style}
}

// Insert parses fragment and appends the resulting nodes to parent, returning
// the newly attached elements in document order.
func (d *Document) Insert(parent *Element, fragment string) ([]*Element, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent.node)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}
	before := make(map[*html.Node]bool)
	d.mu.RLock()
	for n := range d.elements {
		before[n] = true
	}
	d.mu.RUnlock()

	parentZ := parent.PaintOrder() / paintLayer
	for _, n := range nodes {
		d.mu.Lock()
		parent.node.AppendChild(n)
		d.mu.Unlock()
		if err := d.attachTree(n, parentZ); err != nil {
			return nil, err
		}
	}

	var added []*Element
	for _, el := range d.Elements() {
		if !before[el.node] {
			added = append(added, el)
		}
	}
	return added, nil
}
