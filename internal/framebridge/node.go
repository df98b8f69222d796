// internal/framebridge/node.go
package framebridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
	"github.com/xkilldash9x/replay-cli/internal/browser/geometry"
)

// DocumentFunc returns the current document of a browsing context.
type DocumentFunc func() (*dom.Document, error)

// Node is the relay endpoint of one browsing context. Its loop processes
// relayed messages sequentially; requests it originates wait on correlation
// records keyed by request id.
type Node struct {
	tree   *Tree
	parent *Node
	doc    DocumentFunc
	inbox  chan envelope
	logger *zap.Logger

	mu            sync.Mutex
	children      map[string]*Node
	childLocators map[*Node]string
	pending       map[string]chan *response
}

func newNode(t *Tree, parent *Node, doc DocumentFunc, name string) *Node {
	return &Node{
		tree:          t,
		parent:        parent,
		doc:           doc,
		inbox:         make(chan envelope, t.opts.InboxSize),
		logger:        t.logger.With(zap.String("context", name)),
		children:      make(map[string]*Node),
		childLocators: make(map[*Node]string),
		pending:       make(map[string]chan *response),
	}
}

// Document returns the node's current document.
func (n *Node) Document() (*dom.Document, error) { return n.doc() }

// IsRoot reports whether the node is the top-level context.
func (n *Node) IsRoot() bool { return n.parent == nil }

func (n *Node) child(loc string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.children[loc]
}

func (n *Node) locatorOf(c *Node) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	loc, ok := n.childLocators[c]
	return loc, ok
}

// frame resolves a child frame locator in the node's own document.
func (n *Node) frame(loc string) (*dom.Element, error) {
	doc, err := n.doc()
	if err != nil {
		return nil, err
	}
	el, err := doc.Query(loc)
	if err != nil {
		return nil, fmt.Errorf("frame %q: %w", loc, err)
	}
	if el == nil || el.ContentDocument() == nil {
		return nil, fmt.Errorf("frame %q: %w", loc, ErrFrameNotFound)
	}
	return el, nil
}

// -- Loop --

func (n *Node) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-n.inbox:
			switch {
			case env.req != nil:
				n.handleRequest(ctx, env.from, env.req)
			case env.resp != nil:
				n.routeDown(ctx, env.resp)
			}
		}
	}
}

func (n *Node) post(ctx context.Context, target *Node, env envelope) bool {
	select {
	case target.inbox <- env:
		return true
	case <-ctx.Done():
		return false
	}
}

// handleRequest processes a request relayed by child from:
//  1. find the frame element that embeds from and bail out if it is gone;
//  2. shift point and rect by the frame's origin and prepend its locator;
//  3. apply the hop's own check (coverage hit test, viewport clip);
//  4. answer at the top level, or relay to the parent.
func (n *Node) handleRequest(ctx context.Context, from *Node, req *request) {
	loc, ok := n.locatorOf(from)
	var frame *dom.Element
	var err error
	if !ok {
		err = fmt.Errorf("unregistered child context: %w", ErrFrameNotFound)
	} else {
		frame, err = n.frame(loc)
	}
	if err != nil {
		if req.Kind == KindLocatorUpdate {
			n.logger.Warn("Dropping locator update, frame chain broken", zap.Error(err))
			return
		}
		resp := req.reply()
		resp.Err = err
		n.logger.Debug("Frame hop failed", zap.Stringer("kind", req.Kind), zap.Error(err))
		n.post(ctx, from, envelope{resp: resp})
		return
	}

	frameRect := frame.Rect()
	off := geometry.OffsetOf(frameRect)
	up := req.relayed(loc, off.Point(req.Point), off.Rect(req.Rect))

	switch up.Kind {
	case KindCoverage:
		if hit := frame.Document().ElementFromPoint(up.Point); hit != frame {
			resp := up.reply()
			resp.Covering = hit.Describe()
			if resp.Covering == nil {
				// Outside this context's viewport: nothing to click through.
				resp.Covering = &schemas.ElementDescriptor{Tag: "viewport"}
			}
			n.routeDown(ctx, resp)
			return
		}
	case KindViewport:
		up.Rect = up.Rect.Intersect(frameRect)
	}

	if n.parent == nil {
		n.answer(ctx, up)
		return
	}
	n.post(ctx, n.parent, envelope{from: n, req: up})
}

// answer computes the final response at the top level.
func (n *Node) answer(ctx context.Context, req *request) {
	resp := req.reply()
	switch req.Kind {
	case KindRect:
		resp.Rect = req.Rect
	case KindViewport:
		doc, err := n.doc()
		if err != nil {
			resp.Err = err
			break
		}
		resp.Rect = req.Rect.Intersect(doc.Viewport())
	case KindCoverage:
		// Every hop already confirmed the frame chain is uncovered.
	case KindIdentity:
		resp.Identity = append([]string(nil), req.Path...)
	case KindLocatorUpdate:
		if req.Update != nil {
			u := *req.Update
			u.FramesPath = append([]string(nil), req.Path...)
			n.tree.publish(u)
		}
		return
	}
	n.routeDown(ctx, resp)
}

// routeDown delivers a response one hop towards its requester, shifting
// viewport rects back into the child's coordinates.
func (n *Node) routeDown(ctx context.Context, resp *response) {
	if len(resp.Path) == 0 {
		n.resolve(resp)
		return
	}
	loc := resp.Path[0]
	c := n.child(loc)
	if c == nil {
		n.logger.Warn("Dropping response for unknown child frame", zap.String("locator", loc))
		return
	}
	next := *resp
	next.Path = resp.Path[1:]
	if resp.Kind == KindViewport && resp.Err == nil {
		frame, err := n.frame(loc)
		if err != nil {
			next.Err = err
		} else {
			next.Rect = geometry.OffsetOf(frame.Rect()).Inverse().Rect(resp.Rect)
		}
	}
	n.post(ctx, c, envelope{resp: &next})
}

func (n *Node) resolve(resp *response) {
	n.mu.Lock()
	ch, ok := n.pending[resp.ID]
	delete(n.pending, resp.ID)
	n.mu.Unlock()
	if !ok {
		// The requester gave up already.
		return
	}
	ch <- resp
}

// -- Requests --

func (n *Node) request(ctx context.Context, req *request) (*response, error) {
	req.ID = uuid.New().String()
	ch := make(chan *response, 1)
	n.mu.Lock()
	n.pending[req.ID] = ch
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		delete(n.pending, req.ID)
		n.mu.Unlock()
	}()

	timeout := n.tree.opts.RelayTimeout
	if timeout <= 0 {
		timeout = DefaultRelayTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case n.parent.inbox <- envelope{from: n, req: req}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.tree.done():
		return nil, ErrClosed
	case <-timer.C:
		return nil, fmt.Errorf("%s request: %w", req.Kind, ErrRelayTimeout)
	}

	select {
	case resp := <-ch:
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.tree.done():
		return nil, ErrClosed
	case <-timer.C:
		return nil, fmt.Errorf("%s request: %w", req.Kind, ErrRelayTimeout)
	}
}

// RootRect translates a rect from local to top-level coordinates.
func (n *Node) RootRect(ctx context.Context, r schemas.Rect) (schemas.Rect, error) {
	if n.IsRoot() {
		return r, nil
	}
	resp, err := n.request(ctx, &request{Kind: KindRect, Rect: r})
	if err != nil {
		return schemas.Rect{}, err
	}
	return resp.Rect, nil
}

// RootViewport returns the part of the top-level viewport visible through
// the frame chain, in local coordinates.
func (n *Node) RootViewport(ctx context.Context) (schemas.Rect, error) {
	doc, err := n.doc()
	if err != nil {
		return schemas.Rect{}, err
	}
	if n.IsRoot() {
		return doc.Viewport(), nil
	}
	resp, err := n.request(ctx, &request{Kind: KindViewport, Rect: doc.Viewport()})
	if err != nil {
		return schemas.Rect{}, err
	}
	return resp.Rect, nil
}

// CheckCoverage reports the ancestor-context element covering local point p,
// or nil when p reaches the top level uncovered.
func (n *Node) CheckCoverage(ctx context.Context, p schemas.Point) (*schemas.ElementDescriptor, error) {
	if n.IsRoot() {
		return nil, nil
	}
	resp, err := n.request(ctx, &request{Kind: KindCoverage, Point: p})
	if err != nil {
		return nil, err
	}
	return resp.Covering, nil
}

// Identity returns the frames path of this context as seen from the top level.
func (n *Node) Identity(ctx context.Context) ([]string, error) {
	if n.IsRoot() {
		return nil, nil
	}
	resp, err := n.request(ctx, &request{Kind: KindIdentity})
	if err != nil {
		return nil, err
	}
	return resp.Identity, nil
}

// PublishLocator sends a fire-and-forget locator update towards the top level.
func (n *Node) PublishLocator(ctx context.Context, stepID string, index int, locator string) {
	u := &LocatorUpdate{StepID: stepID, Index: index, Locator: locator}
	if n.IsRoot() {
		n.tree.publish(*u)
		return
	}
	req := &request{ID: uuid.New().String(), Kind: KindLocatorUpdate, Update: u}
	select {
	case n.parent.inbox <- envelope{from: n, req: req}:
	case <-ctx.Done():
	case <-n.tree.done():
	}
}
