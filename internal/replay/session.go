// internal/replay/session.go
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/chrome"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
	"github.com/xkilldash9x/replay-cli/internal/config"
	"github.com/xkilldash9x/replay-cli/internal/framebridge"
	"github.com/xkilldash9x/replay-cli/internal/listeners"
	"github.com/xkilldash9x/replay-cli/internal/readiness/animation"
	"github.com/xkilldash9x/replay-cli/internal/readiness/interaction"
	"github.com/xkilldash9x/replay-cli/internal/readiness/resolver"
	"github.com/xkilldash9x/replay-cli/internal/readiness/scheduler"
)

// ErrSessionClosed is returned when a step is run on a closed session.
var ErrSessionClosed = errors.New("replay session closed")

// viewLocker is implemented by backends whose snapshots are mutated in place.
type viewLocker interface {
	LockView() func()
}

// browsingContext is the resolver state of one frames path.
type browsingContext struct {
	node     *framebridge.Node
	resolver *resolver.Resolver
	registry *resolver.Registry
}

// Session holds the per-run state of a replay against one backend: element
// identities, tracked animations, cached listener answers, the frame bridge
// and, in watch mode, the recheck scheduler.
type Session struct {
	id      string
	logger  *zap.Logger
	cfg     config.ReplayConfig
	backend Backend

	tracker *animation.Tracker
	probe   *listeners.Probe
	points  *interaction.Resolver
	tree    *framebridge.Tree
	diag    *Diagnostics
	// scanStyles registers declared CSS animations on first sight, for
	// backends that have no animation event feed.
	scanStyles bool

	stop atomic.Bool

	mu        sync.Mutex
	ctx       context.Context
	page      *dom.Page
	seen      map[string]dom.KeySet
	contexts  map[string]*browsingContext
	published map[string]schemas.PublishedLocator
	sched     *scheduler.Scheduler
	watch     *watchRun
	closed    bool
}

// NewSession prepares a session and starts the frame bridge. The session
// stays bound to ctx until Close.
func NewSession(ctx context.Context, backend Backend, cfg config.Interface, logger *zap.Logger) (*Session, error) {
	rc := cfg.Replay()
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid replay configuration: %w", err)
	}
	id := uuid.New().String()
	sessionLogger := logger.With(zap.String("run_id", id), zap.String("tab", backend.TabID()))

	s := &Session{
		id:        id,
		logger:    sessionLogger.Named("replay"),
		cfg:       rc,
		backend:   backend,
		tracker:   animation.NewTracker(sessionLogger),
		diag:      NewDiagnostics(sessionLogger),
		ctx:       ctx,
		seen:      make(map[string]dom.KeySet),
		contexts:  make(map[string]*browsingContext),
		published: make(map[string]schemas.PublishedLocator),
	}
	if _, ok := backend.(*StaticBackend); ok {
		s.scanStyles = true
	}
	s.probe = listeners.NewProbe(sessionLogger, backend.HasClickListener, listeners.Options{
		Size: rc.ListenerCacheSize,
		TTL:  rc.ListenerCacheTTL,
	})
	s.points = interaction.NewResolver(sessionLogger, s.probe)

	fc := cfg.Frames()
	s.tree = framebridge.NewTree(sessionLogger, s.rootDocument, framebridge.Options{
		RelayTimeout: fc.RelayTimeout,
		InboxSize:    fc.InboxSize,
	})
	s.tree.OnLocatorUpdate(s.recordPublished)
	s.tree.Start(ctx)

	s.tracker.OnEnd(func(reason string) { s.trigger(scheduler.Reason(reason)) })
	backend.Listen(chrome.Signals{Trigger: s.trigger, Tracker: s.tracker})
	backend.Network().BeginRun(backend.TabID())

	s.logger.Info("Replay session started", zap.String("mode", string(rc.Mode)))
	return s, nil
}

// ID returns the run id.
func (s *Session) ID() string { return s.id }

func (s *Session) rootDocument() (*dom.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, errors.New("no snapshot captured yet")
	}
	return s.page.Root, nil
}

func (s *Session) recordPublished(u framebridge.LocatorUpdate) {
	s.mu.Lock()
	s.published[u.StepID] = schemas.PublishedLocator{
		FramesPath: u.FramesPath,
		Index:      u.Index,
		Locator:    u.Locator,
	}
	s.mu.Unlock()
}

func (s *Session) publishedFor(stepID string) *schemas.PublishedLocator {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.published[stepID]; ok {
		return &p
	}
	return nil
}

func (s *Session) trigger(r scheduler.Reason) {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()
	if sched != nil {
		sched.Trigger(r)
	}
}

// context returns the resolver state for a frames path, creating it on first use.
func (s *Session) context(path []string) *browsingContext {
	key := strings.Join(path, "\x00")
	s.mu.Lock()
	defer s.mu.Unlock()
	if bc, ok := s.contexts[key]; ok {
		return bc
	}
	node := s.tree.Node(path)
	bc := &browsingContext{node: node, registry: resolver.NewRegistry()}
	deps := resolver.Dependencies{
		Registry:             bc.registry,
		Tracker:              s.tracker,
		Points:               s.points,
		Network:              s.backend.Network(),
		Scroller:             s.backend,
		Focus:                s.backend,
		DocumentCompleteWait: s.cfg.DocumentCompleteWait,
		NetworkIdleThreshold: s.cfg.NetworkIdleThreshold,
	}
	if !node.IsRoot() {
		deps.Focus = &frameFocus{node: node, backend: s.backend}
		deps.Publisher = node
	}
	bc.resolver = resolver.New(s.logger, deps)
	s.contexts[key] = bc
	return bc
}

// refresh captures a snapshot and reconciles the tracker and the listener
// cache with the changes since the previous one.
func (s *Session) refresh(ctx context.Context) (*dom.Page, error) {
	page, err := s.backend.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()

	for _, doc := range documents(page.Root) {
		id := doc.ContextID()
		s.mu.Lock()
		prev, known := s.seen[id]
		s.mu.Unlock()

		if !known {
			if s.scanStyles {
				s.tracker.ScanStyles(doc)
			}
		} else if batch := dom.Diff(prev, doc); !batch.Empty() {
			s.tracker.OnMutations(batch, doc)
			keys := append([]dom.NodeKey(nil), batch.Removed...)
			for _, el := range batch.Added {
				keys = append(keys, el.Key())
			}
			s.probe.Invalidate(doc, keys...)
		}

		set := doc.KeySet()
		s.mu.Lock()
		s.seen[id] = set
		s.mu.Unlock()
	}
	return page, nil
}

// documents lists doc and every document nested in it.
func documents(doc *dom.Document) []*dom.Document {
	out := []*dom.Document{doc}
	for _, el := range doc.Elements() {
		if content := el.ContentDocument(); content != nil {
			out = append(out, documents(content)...)
		}
	}
	return out
}

// frameFocus translates a focus point from a nested context into top-level
// coordinates before handing it to the backend.
type frameFocus struct {
	node    *framebridge.Node
	backend resolver.FocusTrigger
}

func (f *frameFocus) TriggerFocus(ctx context.Context, el *dom.Element, at schemas.Point) error {
	r, err := f.node.RootRect(ctx, schemas.Rect{X: at.X, Y: at.Y})
	if err != nil {
		return fmt.Errorf("translate focus point: %w", err)
	}
	return f.backend.TriggerFocus(ctx, el, schemas.Point{X: r.X, Y: r.Y})
}

// Stop makes the step in progress give up at its next opportunity.
func (s *Session) Stop() {
	s.stop.Store(true)
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()
	if sched != nil {
		sched.Clear()
	}
}

// Reset forgets everything learned during the previous run.
func (s *Session) Reset() {
	s.stopScheduler()
	s.mu.Lock()
	s.page = nil
	s.seen = make(map[string]dom.KeySet)
	s.published = make(map[string]schemas.PublishedLocator)
	for _, bc := range s.contexts {
		bc.registry.Reset()
	}
	s.mu.Unlock()

	s.tracker.Reset()
	s.probe.Reset()
	s.stop.Store(false)
	s.backend.Network().BeginRun(s.backend.TabID())
	s.logger.Debug("Replay session reset")
}

func (s *Session) stopScheduler() {
	s.mu.Lock()
	sched := s.sched
	s.sched = nil
	s.mu.Unlock()
	if sched != nil {
		sched.Stop()
		sched.Wait()
	}
}

// Close stops the scheduler and the frame bridge and detaches from the backend.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.stop.Store(true)
	s.stopScheduler()
	s.backend.Listen(chrome.Signals{})
	s.backend.Network().EndRun(s.backend.TabID())
	err := s.tree.Close()
	s.tracker.Reset()
	s.probe.Reset()
	s.logger.Info("Replay session closed")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("frame bridge shutdown: %w", err)
	}
	return nil
}
