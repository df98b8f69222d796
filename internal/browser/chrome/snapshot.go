// internal/browser/chrome/snapshot.go
package chrome

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/domsnapshot"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
)

// Node types as reported by DOMSnapshot.
const (
	nodeElement  = 1
	nodeText     = 3
	nodeDocument = 9
	nodeFragment = 11
)

// Snapshot is the raw result of DOMSnapshot.captureSnapshot. Documents[0] is
// the top-level document; nested frame documents follow.
type Snapshot struct {
	Documents []*domsnapshot.DocumentSnapshot
	Strings   []string
}

// PageState is the page-level information the snapshot does not carry.
type PageState struct {
	Viewport   schemas.Rect
	ReadyState string
	// Focused is the backend node id of the deepest focused element, or zero.
	Focused cdp.BackendNodeID
}

// BuildPage converts a captured snapshot into a dom.Page. Element keys are
// backend node ids; rects are translated into each document's viewport
// coordinates; elements without a layout object are marked display:none.
func BuildPage(snap Snapshot, state PageState) (*dom.Page, error) {
	if len(snap.Documents) == 0 {
		return nil, fmt.Errorf("snapshot contains no documents")
	}
	b := &builder{
		snap:    snap,
		built:   make(map[int]*dom.Document),
		byKey:   make(map[dom.NodeKey]*dom.Element),
		parents: make(map[*dom.Document]*dom.Element),
	}
	root, err := b.document(0, state.Viewport, nil)
	if err != nil {
		return nil, err
	}
	if state.ReadyState != "" {
		root.SetReadyState(state.ReadyState)
	}
	if state.Focused != 0 {
		b.focus(dom.NodeKey(state.Focused))
	}
	return &dom.Page{Root: root}, nil
}

type builder struct {
	snap  Snapshot
	built map[int]*dom.Document
	byKey map[dom.NodeKey]*dom.Element
	// parents maps a nested document to the frame element embedding it.
	parents map[*dom.Document]*dom.Element
}

func (b *builder) str(i domsnapshot.StringIndex) string {
	if i < 0 || int(i) >= len(b.snap.Strings) {
		return ""
	}
	return b.snap.Strings[i]
}

type layoutEntry struct {
	rect  schemas.Rect
	style map[string]string
	paint int64
}

func (b *builder) layouts(ds *domsnapshot.DocumentSnapshot) map[int]layoutEntry {
	out := make(map[int]layoutEntry)
	lt := ds.Layout
	if lt == nil {
		return out
	}
	for j, ni := range lt.NodeIndex {
		idx := int(ni)
		if _, seen := out[idx]; seen {
			// Later entries are text fragments or pseudo boxes of the same node.
			continue
		}
		var e layoutEntry
		if j < len(lt.Bounds) && len(lt.Bounds[j]) == 4 {
			r := lt.Bounds[j]
			e.rect = schemas.Rect{X: r[0] - ds.ScrollOffsetX, Y: r[1] - ds.ScrollOffsetY, Width: r[2], Height: r[3]}
		}
		e.style = make(map[string]string, len(dom.TrackedStyles))
		if j < len(lt.Styles) {
			for k, si := range lt.Styles[j] {
				if k < len(dom.TrackedStyles) {
					e.style[dom.TrackedStyles[k]] = b.str(domsnapshot.StringIndex(si))
				}
			}
		}
		if j < len(lt.PaintOrders) {
			e.paint = lt.PaintOrders[j]
		}
		out[idx] = e
	}
	return out
}

func rareSet(r *domsnapshot.RareBooleanData) map[int]bool {
	out := make(map[int]bool)
	if r == nil {
		return out
	}
	for _, i := range r.Index {
		out[int(i)] = true
	}
	return out
}

func rareInts(r *domsnapshot.RareIntegerData) map[int]int {
	out := make(map[int]int)
	if r == nil {
		return out
	}
	for k, i := range r.Index {
		if k < len(r.Value) {
			out[int(i)] = int(r.Value[k])
		}
	}
	return out
}

func (b *builder) document(idx int, viewport schemas.Rect, parent *dom.Document) (*dom.Document, error) {
	if d, ok := b.built[idx]; ok {
		return d, nil
	}
	if idx < 0 || idx >= len(b.snap.Documents) {
		return nil, fmt.Errorf("snapshot references missing document %d", idx)
	}
	ds := b.snap.Documents[idx]
	nt := ds.Nodes
	if nt == nil || len(nt.ParentIndex) == 0 {
		return nil, fmt.Errorf("snapshot document %d has no nodes", idx)
	}

	// 1. Materialize the node tree. Shadow roots and other fragments are
	// transparent: their children hang off the host.
	nodes := make([]*html.Node, len(nt.ParentIndex))
	for i := range nodes {
		nodes[i] = b.node(nt, i)
	}
	var root *html.Node
	for i, n := range nodes {
		if n == nil {
			continue
		}
		p := int(nt.ParentIndex[i])
		for p >= 0 && nodes[p] == nil {
			p = int(nt.ParentIndex[p])
		}
		if p < 0 {
			if root == nil && n.Type == html.DocumentNode {
				root = n
			}
			continue
		}
		nodes[p].AppendChild(n)
	}
	if root == nil {
		return nil, fmt.Errorf("snapshot document %d has no document node", idx)
	}

	doc := dom.NewDocument(root, b.str(ds.DocumentURL), viewport)
	doc.SetContextID(b.str(ds.FrameID))
	if parent != nil {
		doc.ShareKeys(parent)
	}
	b.built[idx] = doc

	// 2. Attach layout to every element.
	layouts := b.layouts(ds)
	clickable := rareSet(nt.IsClickable)
	elements := make(map[int]*dom.Element)
	for i, n := range nodes {
		if n == nil || n.Type != html.ElementNode {
			continue
		}
		layout := dom.Layout{Clickable: clickable[i]}
		if i < len(nt.BackendNodeID) {
			layout.Key = dom.NodeKey(nt.BackendNodeID[i])
		}
		if e, ok := layouts[i]; ok {
			layout.Rect, layout.Style, layout.PaintOrder = e.rect, e.style, e.paint
		} else {
			layout.Style = map[string]string{"display": "none"}
		}
		el := doc.Attach(n, layout)
		elements[i] = el
		b.byKey[el.Key()] = el
	}

	// 3. Recurse into frames.
	for i, childIdx := range rareInts(nt.ContentDocumentIndex) {
		frame, ok := elements[i]
		if !ok {
			continue
		}
		r := frame.Rect()
		child, err := b.document(childIdx, schemas.Rect{Width: r.Width, Height: r.Height}, doc)
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", frame.Describe(), err)
		}
		doc.SetContentDocument(frame, child)
		b.parents[child] = frame
	}
	return doc, nil
}

func (b *builder) node(nt *domsnapshot.NodeTreeSnapshot, i int) *html.Node {
	if i >= len(nt.NodeType) {
		return nil
	}
	switch nt.NodeType[i] {
	case nodeDocument:
		return &html.Node{Type: html.DocumentNode}
	case nodeText:
		if i >= len(nt.NodeValue) {
			return nil
		}
		return &html.Node{Type: html.TextNode, Data: b.str(nt.NodeValue[i])}
	case nodeElement:
		name := strings.ToLower(b.str(nt.NodeName[i]))
		n := &html.Node{Type: html.ElementNode, Data: name, DataAtom: atom.Lookup([]byte(name))}
		if i < len(nt.Attributes) {
			attrs := nt.Attributes[i]
			for k := 0; k+1 < len(attrs); k += 2 {
				n.Attr = append(n.Attr, html.Attribute{Key: b.str(domsnapshot.StringIndex(attrs[k])), Val: b.str(domsnapshot.StringIndex(attrs[k+1]))})
			}
		}
		return n
	case nodeFragment:
		return nil
	}
	return nil
}

// focus marks the element with key k as active in its document and the
// embedding frame as active in every ancestor document.
func (b *builder) focus(k dom.NodeKey) {
	el, ok := b.byKey[k]
	if !ok {
		return
	}
	for el != nil {
		doc := el.Document()
		doc.SetActiveElement(el)
		el = b.parents[doc]
	}
}
