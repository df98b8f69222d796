// internal/netidle/monitor.go
package netidle

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ChangeFunc is called whenever the pending count of a tab changes.
type ChangeFunc func(tabID string, pending int)

type tab struct {
	recording bool
	inflight  map[string]struct{}
}

// Monitor counts in-flight requests per tab. Counts are only reported for
// tabs whose test run is active, so a tab that was never started reads as
// "unknown" rather than idle.
type Monitor struct {
	logger *zap.Logger

	mu       sync.RWMutex
	tabs     map[string]*tab
	onChange ChangeFunc
}

// NewMonitor returns an empty monitor.
func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		logger: logger.Named("netidle"),
		tabs:   make(map[string]*tab),
	}
}

// OnChange installs a hook fired after every count change, outside the lock.
func (m *Monitor) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// BeginRun starts counting for a tab and forgets anything seen before.
func (m *Monitor) BeginRun(tabID string) {
	m.mu.Lock()
	m.tabs[tabID] = &tab{recording: true, inflight: make(map[string]struct{})}
	m.mu.Unlock()
	m.logger.Debug("Network tracking started", zap.String("tab", tabID))
}

// EndRun stops counting for a tab.
func (m *Monitor) EndRun(tabID string) {
	m.mu.Lock()
	delete(m.tabs, tabID)
	m.mu.Unlock()
	m.logger.Debug("Network tracking stopped", zap.String("tab", tabID))
}

// RequestStarted records a new in-flight request. Inline data and blob URLs
// never hit the network and are skipped.
func (m *Monitor) RequestStarted(tabID, requestID, url string) {
	if strings.HasPrefix(url, "data:") || strings.HasPrefix(url, "blob:") {
		return
	}
	m.mu.Lock()
	t, ok := m.tabs[tabID]
	if !ok || !t.recording {
		m.mu.Unlock()
		return
	}
	if _, dup := t.inflight[requestID]; dup {
		m.mu.Unlock()
		return
	}
	t.inflight[requestID] = struct{}{}
	n, fn := len(t.inflight), m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(tabID, n)
	}
}

// RequestFinished records completion, failure or cancellation of a request.
// Unknown ids are ignored.
func (m *Monitor) RequestFinished(tabID, requestID string) {
	m.mu.Lock()
	t, ok := m.tabs[tabID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if _, known := t.inflight[requestID]; !known {
		m.mu.Unlock()
		return
	}
	delete(t.inflight, requestID)
	n, fn := len(t.inflight), m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(tabID, n)
	}
}

// PendingRequests returns the number of in-flight requests for a tab. The
// second value is false when the tab is not being tracked.
func (m *Monitor) PendingRequests(tabID string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tabs[tabID]
	if !ok {
		return 0, false
	}
	return len(t.inflight), true
}
