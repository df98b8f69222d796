// internal/browser/dom/document.go
package dom

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/replay-cli/api/schemas"
)

// -- Core Structures --

// ReadyState values mirror document.readyState.
const (
	ReadyLoading     = "loading"
	ReadyInteractive = "interactive"
	ReadyComplete    = "complete"
)

// ErrFrameNotFound indicates that a frames path entry no longer resolves to a
// live frame element with a content document.
var ErrFrameNotFound = errors.New("frame does not exist")

// NodeKey identifies an element across successive snapshots of the same
// browsing context. Snapshots captured over CDP use the backend node id;
// documents parsed from HTML use a per-document counter.
type NodeKey int64

// Layout is the rendering information attached to an element.
type Layout struct {
	Key  NodeKey
	Rect schemas.Rect
	// Style holds computed (or inline, for parsed documents) style values.
	Style map[string]string
	// PaintOrder ranks elements for hit testing; higher paints on top.
	PaintOrder int64
	// Clickable is the backend's own click-affordance signal (bound listener
	// or native activation behaviour), when it has one.
	Clickable bool
}

// ReadyStateWaiter blocks until the document's ready state reaches state or ctx ends.
type ReadyStateWaiter func(ctx context.Context, state string) error

// Document is a snapshot of one browsing context: its node tree, layout,
// focus and load state. Mutators exist so that static documents can evolve
// between attempts; CDP-backed documents are replaced wholesale instead.
type Document struct {
	mu sync.RWMutex

	root     *html.Node
	elements map[*html.Node]*Element
	byKey    map[NodeKey]*Element
	keys     *keySpace
	url      string
	viewport schemas.Rect
	ctxID    string

	readyState string
	active     *Element
	readyWait  ReadyStateWaiter
	waiters    []chan struct{}
}

// keySpace hands out element keys. Documents of one page share a key space so
// that keys stay unique across frames.
type keySpace struct {
	mu   sync.Mutex
	next NodeKey
}

// claim returns k, or the next free key when k is zero.
func (s *keySpace) claim(k NodeKey) NodeKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k == 0 {
		k = s.next
	}
	if k >= s.next {
		s.next = k + 1
	}
	return k
}

func (s *keySpace) peek() NodeKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// ShareKeys makes d draw element keys from the same space as parent. It must
// be called before any element is attached to d.
func (d *Document) ShareKeys(parent *Document) {
	d.mu.Lock()
	d.keys = parent.keys
	d.mu.Unlock()
}

// Element wraps one element node of a Document.
type Element struct {
	node    *html.Node
	doc     *Document
	layout  Layout
	content *Document
}

// NewDocument creates an empty document around an already parsed node tree.
// Layout for each element is attached afterwards with Attach.
func NewDocument(root *html.Node, url string, viewport schemas.Rect) *Document {
	return &Document{
		root:       root,
		elements:   make(map[*html.Node]*Element),
		byKey:      make(map[NodeKey]*Element),
		keys:       &keySpace{next: 1},
		url:        url,
		viewport:   viewport,
		readyState: ReadyComplete,
	}
}

// Attach registers n as an element of the document with the given layout.
// A zero layout key is replaced with the next free per-document key.
func (d *Document) Attach(n *html.Node, layout Layout) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attachLocked(n, layout)
}

func (d *Document) attachLocked(n *html.Node, layout Layout) *Element {
	layout.Key = d.keys.claim(layout.Key)
	if layout.Style == nil {
		layout.Style = map[string]string{}
	}
	el := &Element{node: n, doc: d, layout: layout}
	d.elements[n] = el
	d.byKey[layout.Key] = el
	return el
}

// SetContentDocument links a frame element to the document it embeds.
func (d *Document) SetContentDocument(frame *Element, content *Document) {
	d.mu.Lock()
	defer d.mu.Unlock()
	frame.content = content
}

// ContextID names the browsing context the document belongs to. It is stable
// across snapshots of the same context (the CDP frame id, or the frame chain
// for parsed documents).
func (d *Document) ContextID() string { return d.ctxID }

// SetContextID assigns the browsing context name.
func (d *Document) SetContextID(id string) { d.ctxID = id }

// URL returns the document URL, if known.
func (d *Document) URL() string { return d.url }

// Root returns the underlying document node.
func (d *Document) Root() *html.Node { return d.root }

// Viewport returns the visible area of the browsing context in its own coordinates.
func (d *Document) Viewport() schemas.Rect {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.viewport
}

// SetViewport resizes the browsing context.
func (d *Document) SetViewport(r schemas.Rect) {
	d.mu.Lock()
	d.viewport = r
	d.mu.Unlock()
}

// ReadyState returns the current document.readyState.
func (d *Document) ReadyState() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.readyState
}

// SetReadyState updates the ready state and wakes any waiters.
func (d *Document) SetReadyState(state string) {
	d.mu.Lock()
	d.readyState = state
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// SetReadyStateWaiter installs a backend-specific waiter used instead of the
// in-memory notification when the document mirrors a live page.
func (d *Document) SetReadyStateWaiter(w ReadyStateWaiter) {
	d.mu.Lock()
	d.readyWait = w
	d.mu.Unlock()
}

// WaitReadyState blocks until the ready state equals state or ctx ends.
func (d *Document) WaitReadyState(ctx context.Context, state string) error {
	for {
		d.mu.Lock()
		if d.readyState == state {
			d.mu.Unlock()
			return nil
		}
		if d.readyWait != nil {
			w := d.readyWait
			d.mu.Unlock()
			return w(ctx, state)
		}
		ch := make(chan struct{})
		d.waiters = append(d.waiters, ch)
		d.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ActiveElement returns the focused element, or nil if focus is on the body/window.
func (d *Document) ActiveElement() *Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// SetActiveElement moves focus to el (nil clears focus).
func (d *Document) SetActiveElement(el *Element) {
	d.mu.Lock()
	d.active = el
	d.mu.Unlock()
}

// ElementByKey looks up an element by its snapshot key.
func (d *Document) ElementByKey(k NodeKey) *Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byKey[k]
}

// Elements returns every connected element in document order.
func (d *Document) Elements() []*Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.elementsLocked()
}

func (d *Document) elementsLocked() []*Element {
	var out []*Element
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if el, ok := d.elements[n]; ok {
			out = append(out, el)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

// Keys returns the keys of every connected element, sorted.
func (d *Document) Keys() []NodeKey {
	els := d.Elements()
	keys := make([]NodeKey, 0, len(els))
	for _, el := range els {
		keys = append(keys, el.Key())
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Remove detaches el and its subtree from the document.
func (d *Document) Remove(el *Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el.node.Parent != nil {
		el.node.Parent.RemoveChild(el.node)
	}
	var drop func(n *html.Node)
	drop = func(n *html.Node) {
		if e, ok := d.elements[n]; ok {
			delete(d.elements, n)
			delete(d.byKey, e.layout.Key)
			if d.active == e {
				d.active = nil
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			drop(c)
		}
	}
	drop(el.node)
}

// -- Element Accessors --

// Key returns the element's identity key.
func (e *Element) Key() NodeKey { return e.layout.Key }

// Document returns the owning document.
func (e *Element) Document() *Document { return e.doc }

// Node returns the underlying html node.
func (e *Element) Node() *html.Node { return e.node }

// Tag returns the lower-case tag name.
func (e *Element) Tag() string { return strings.ToLower(e.node.Data) }

// Attr returns the value of the named attribute and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return attr(e.node, name)
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets (or adds) an attribute.
func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for i, a := range e.node.Attr {
		if strings.EqualFold(a.Key, name) {
			e.node.Attr[i].Val = value
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes an attribute if present.
func (e *Element) RemoveAttr(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	kept := e.node.Attr[:0]
	for _, a := range e.node.Attr {
		if !strings.EqualFold(a.Key, name) {
			kept = append(kept, a)
		}
	}
	e.node.Attr = kept
}

// Rect returns the element's border box in its document's viewport coordinates.
func (e *Element) Rect() schemas.Rect {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.layout.Rect
}

// SetRect moves or resizes the element.
func (e *Element) SetRect(r schemas.Rect) {
	e.doc.mu.Lock()
	e.layout.Rect = r
	e.doc.mu.Unlock()
}

// PaintOrder returns the hit-testing rank of the element.
func (e *Element) PaintOrder() int64 {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.layout.PaintOrder
}

// Clickable reports the backend's own click-affordance signal.
func (e *Element) Clickable() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.layout.Clickable
}

// Style returns the computed value of a CSS property, applying inheritance for
// inherited properties and the initial value when nothing is set.
func (e *Element) Style(prop string) string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.styleLocked(prop)
}

func (e *Element) styleLocked(prop string) string {
	if v, ok := e.layout.Style[prop]; ok && v != "" && v != "inherit" {
		return v
	}
	if inherited[prop] {
		if p := e.parentLocked(); p != nil {
			return p.styleLocked(prop)
		}
	}
	return initialValue(e.node, prop)
}

// SetStyle overrides a computed style value.
func (e *Element) SetStyle(prop, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.layout.Style[prop] = value
}

// Parent returns the parent element, or nil for the document element.
func (e *Element) Parent() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.parentLocked()
}

func (e *Element) parentLocked() *Element {
	for n := e.node.Parent; n != nil; n = n.Parent {
		if p, ok := e.doc.elements[n]; ok {
			return p
		}
	}
	return nil
}

// Ancestors returns the element followed by each of its ancestors, innermost first.
func (e *Element) Ancestors() []*Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var out []*Element
	for cur := e; cur != nil; cur = cur.parentLocked() {
		out = append(out, cur)
	}
	return out
}

// Descendants returns every element below e in document order.
func (e *Element) Descendants() []*Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var out []*Element
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if el, ok := e.doc.elements[c]; ok {
				out = append(out, el)
			}
			walk(c)
		}
	}
	walk(e.node)
	return out
}

// Contains reports whether other is e or one of its descendants.
func (e *Element) Contains(other *Element) bool {
	if other == nil || other.doc != e.doc {
		return false
	}
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for n := other.node; n != nil; n = n.Parent {
		if n == e.node {
			return true
		}
	}
	return false
}

// IsConnected reports whether the element is still part of its document.
func (e *Element) IsConnected() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	_, ok := e.doc.elements[e.node]
	if !ok {
		return false
	}
	for n := e.node; n != nil; n = n.Parent {
		if n == e.doc.root {
			return true
		}
	}
	return false
}

// ContentDocument returns the document embedded by a frame element.
func (e *Element) ContentDocument() *Document {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.content
}

// Text returns the concatenated text content of the element.
func (e *Element) Text() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.node)
	return strings.TrimSpace(b.String())
}

// Describe returns a detached descriptor for diagnostics.
func (e *Element) Describe() *schemas.ElementDescriptor {
	if e == nil {
		return nil
	}
	d := &schemas.ElementDescriptor{Tag: e.Tag(), Locator: e.XPath()}
	if id, ok := e.Attr("id"); ok {
		d.ID = id
	}
	if cls, ok := e.Attr("class"); ok {
		d.Classes = strings.Fields(cls)
	}
	return d
}
