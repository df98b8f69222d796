// internal/framebridge/tree.go
package framebridge

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
)

// DefaultRelayTimeout bounds a request when no timeout is configured.
const DefaultRelayTimeout = 2 * time.Second

// Options tune the bridge.
type Options struct {
	RelayTimeout time.Duration
	InboxSize    int
}

// Tree owns the relay nodes of one tab. Nodes for nested contexts are created
// on demand from a frames path; every node loop runs under one errgroup.
type Tree struct {
	logger *zap.Logger
	opts   Options
	root   *Node

	mu       sync.Mutex
	nodes    []*Node
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	started  bool
	closed   chan struct{}
	closeMu  sync.Once
	onUpdate func(LocatorUpdate)
}

// NewTree creates a bridge whose top-level context reads its document from rootDoc.
func NewTree(logger *zap.Logger, rootDoc DocumentFunc, opts Options) *Tree {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 16
	}
	if opts.RelayTimeout <= 0 {
		opts.RelayTimeout = DefaultRelayTimeout
	}
	t := &Tree{
		logger: logger.Named("frame_bridge"),
		opts:   opts,
		closed: make(chan struct{}),
	}
	t.root = newNode(t, nil, rootDoc, "top")
	t.nodes = append(t.nodes, t.root)
	return t
}

// Root returns the top-level node.
func (t *Tree) Root() *Node { return t.root }

// OnLocatorUpdate installs the top-level hook for published locators.
func (t *Tree) OnLocatorUpdate(fn func(LocatorUpdate)) {
	t.mu.Lock()
	t.onUpdate = fn
	t.mu.Unlock()
}

func (t *Tree) publish(u LocatorUpdate) {
	t.mu.Lock()
	fn := t.onUpdate
	t.mu.Unlock()
	t.logger.Debug("Locator update reached top level",
		zap.Strings("frames_path", u.FramesPath), zap.String("step", u.StepID), zap.String("locator", u.Locator))
	if fn != nil {
		fn(u)
	}
}

func (t *Tree) done() <-chan struct{} { return t.closed }

// Start launches every node loop.
func (t *Tree) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.group, t.ctx = errgroup.WithContext(t.ctx)
	for _, n := range t.nodes {
		t.group.Go(func() error { return n.run(t.ctx) })
	}
}

// Node returns the node for a frames path, creating intermediate nodes as
// needed. An empty path is the top-level node.
func (t *Tree) Node(path []string) *Node {
	cur := t.root
	for _, loc := range path {
		next := cur.child(loc)
		if next == nil {
			next = t.attach(cur, loc)
		}
		cur = next
	}
	return cur
}

func (t *Tree) attach(parent *Node, loc string) *Node {
	parent.mu.Lock()
	if existing, ok := parent.children[loc]; ok {
		parent.mu.Unlock()
		return existing
	}
	doc := func() (*dom.Document, error) {
		frame, err := parent.frame(loc)
		if err != nil {
			return nil, err
		}
		return frame.ContentDocument(), nil
	}
	n := newNode(t, parent, doc, loc)
	parent.children[loc] = n
	parent.childLocators[n] = loc
	parent.mu.Unlock()

	t.mu.Lock()
	t.nodes = append(t.nodes, n)
	if t.started {
		ctx := t.ctx
		t.group.Go(func() error { return n.run(ctx) })
	}
	t.mu.Unlock()
	t.logger.Debug("Attached frame context", zap.String("path", pathString(n)))
	return n
}

// Close stops every node loop and waits for them to exit.
func (t *Tree) Close() error {
	t.closeMu.Do(func() { close(t.closed) })
	t.mu.Lock()
	cancel, group := t.cancel, t.group
	t.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return group.Wait()
}

func pathString(n *Node) string {
	var parts []string
	for cur := n; cur != nil && cur.parent != nil; cur = cur.parent {
		loc, _ := cur.parent.locatorOf(cur)
		parts = append([]string{loc}, parts...)
	}
	if len(parts) == 0 {
		return "top"
	}
	return strings.Join(parts, " > ")
}
