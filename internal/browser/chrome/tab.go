// internal/browser/chrome/tab.go
package chrome

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	cdpanim "github.com/chromedp/cdproto/animation"
	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/domsnapshot"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
	"github.com/xkilldash9x/replay-cli/internal/config"
	"github.com/xkilldash9x/replay-cli/internal/netidle"
)

// readyPollInterval spaces document.readyState polls while a step waits for
// DOCUMENT_COMPLETE.
const readyPollInterval = 100 * time.Millisecond

// AllocatorOptions builds the exec allocator options from the browser configuration.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("enable-automation", true),
		chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	// Args accept both boolean switches and key=value flags, with or
	// without the leading dashes.
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if key, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}

// Tab is one live browser tab driven over CDP.
type Tab struct {
	id     string
	cfg    config.BrowserConfig
	logger *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	monitor *netidle.Monitor
	feed    *feed

	closeOnce sync.Once
}

// Launch starts a browser, opens a tab and enables the domains the readiness
// engine listens to.
func Launch(ctx context.Context, cfg config.BrowserConfig, monitor *netidle.Monitor, logger *zap.Logger) (*Tab, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg)...)
	sugar := logger.Named("chromedp").Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	t := &Tab{
		id:          uuid.New().String(),
		cfg:         cfg,
		logger:      logger.Named("chrome_tab"),
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		monitor:     monitor,
	}
	t.feed = newFeed(t.id, t.logger, monitor)
	chromedp.ListenTarget(tabCtx, t.feed.handle)

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		page.Enable(),
		cdpdom.Enable(),
		cdpanim.Enable(),
	); err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to start browser tab: %w", err)
	}
	t.logger.Info("Browser tab ready", zap.String("tab", t.id), zap.Bool("headless", cfg.Headless))
	return t, nil
}

// TabID returns the tab's identifier.
func (t *Tab) TabID() string { return t.id }

// Listen installs the readiness signal sink. A new sink replaces the old one.
func (t *Tab) Listen(s Signals) { t.feed.attach(s) }

// Network returns the pending-request monitor fed by this tab.
func (t *Tab) Network() *netidle.Monitor { return t.monitor }

// run executes actions on the tab, cancelled early when ctx ends.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, t.cfg.NavigationTimeout)
	defer cancel()
	if err := t.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	// Mutation events only flow for nodes the client has seen.
	if err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdpdom.GetDocument().WithDepth(-1).Do(ctx)
		return err
	})); err != nil {
		t.logger.Debug("Could not request the document tree", zap.Error(err))
	}
	return nil
}

type pageInfo struct {
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
	State  string  `json:"state"`
}

const pageInfoScript = `(() => ({w: window.innerWidth, h: window.innerHeight, state: document.readyState}))()`

// deepestActiveElement returns the focused element, descending into
// same-origin frames.
const deepestActiveElement = `(() => {
	let a = document.activeElement;
	while (a && a.contentDocument && a.contentDocument.activeElement) {
		a = a.contentDocument.activeElement;
	}
	return a;
})()`

// Snapshot captures the tab's documents and converts them into a dom.Page.
func (t *Tab) Snapshot(ctx context.Context) (*dom.Page, error) {
	var (
		snap  Snapshot
		info  pageInfo
		state PageState
	)
	err := t.run(ctx,
		chromedp.Evaluate(pageInfoScript, &info),
		chromedp.ActionFunc(func(ctx context.Context) error {
			docs, strs, err := domsnapshot.CaptureSnapshot(dom.TrackedStyles).
				WithIncludePaintOrder(true).
				Do(ctx)
			if err != nil {
				return err
			}
			snap = Snapshot{Documents: docs, Strings: strs}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			state.Focused = t.focusedNode(ctx)
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to capture dom snapshot: %w", err)
	}
	state.Viewport = schemas.Rect{Width: info.Width, Height: info.Height}
	state.ReadyState = info.State

	p, err := BuildPage(snap, state)
	if err != nil {
		return nil, err
	}
	p.Root.SetReadyStateWaiter(t.waitReadyState)
	return p, nil
}

func (t *Tab) focusedNode(ctx context.Context) cdp.BackendNodeID {
	obj, exc, err := runtime.Evaluate(deepestActiveElement).Do(ctx)
	if err != nil || exc != nil || obj == nil || obj.ObjectID == "" {
		return 0
	}
	defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()
	node, err := cdpdom.DescribeNode().WithObjectID(obj.ObjectID).Do(ctx)
	if err != nil || node == nil {
		return 0
	}
	return node.BackendNodeID
}

// waitReadyState polls document.readyState until it equals state.
func (t *Tab) waitReadyState(ctx context.Context, state string) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		var cur string
		if err := t.run(ctx, chromedp.Evaluate(`document.readyState`, &cur)); err != nil {
			return err
		}
		if cur == state {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close shuts the tab and the browser down.
func (t *Tab) Close() error {
	t.closeOnce.Do(func() {
		t.monitor.EndRun(t.id)
		t.cancel()
		t.allocCancel()
		t.logger.Debug("Browser tab closed", zap.String("tab", t.id))
	})
	return nil
}
