// internal/listeners/probe.go
package listeners

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
)

// LookupFunc asks the backend whether el has a click listener bound to it.
type LookupFunc func(ctx context.Context, el *dom.Element) (bool, error)

// Options size the session cache.
type Options struct {
	Size int
	TTL  time.Duration
}

// Probe answers click-listener queries for the interaction point resolver.
// Listener introspection is a round trip to the browser, and the smart point
// search asks about the same descendants on every attempt, so answers are
// kept for a short TTL.
type Probe struct {
	logger *zap.Logger
	lookup LookupFunc
	cache  *expirable.LRU[string, bool]
}

// NewProbe wraps lookup with a session cache.
func NewProbe(logger *zap.Logger, lookup LookupFunc, opts Options) *Probe {
	if opts.Size <= 0 {
		opts.Size = 512
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Second
	}
	return &Probe{
		logger: logger.Named("listeners"),
		lookup: lookup,
		cache:  expirable.NewLRU[string, bool](opts.Size, nil, opts.TTL),
	}
}

func cacheKey(doc *dom.Document, k dom.NodeKey) string {
	return fmt.Sprintf("%s:%d", doc.ContextID(), k)
}

// HasClickListener reports whether el has a bound click listener. Lookup
// failures are returned uncached.
func (p *Probe) HasClickListener(ctx context.Context, el *dom.Element) (bool, error) {
	if el == nil || p.lookup == nil {
		return false, nil
	}
	key := cacheKey(el.Document(), el.Key())
	if v, ok := p.cache.Get(key); ok {
		return v, nil
	}
	v, err := p.lookup(ctx, el)
	if err != nil {
		p.logger.Debug("Listener lookup failed", zap.String("element", el.Describe().String()), zap.Error(err))
		return false, err
	}
	p.cache.Add(key, v)
	return v, nil
}

// Invalidate drops cached answers for keys of doc, typically after a mutation batch.
func (p *Probe) Invalidate(doc *dom.Document, keys ...dom.NodeKey) {
	for _, k := range keys {
		p.cache.Remove(cacheKey(doc, k))
	}
}

// Reset clears the cache between runs.
func (p *Probe) Reset() { p.cache.Purge() }

// Len returns the number of cached answers.
func (p *Probe) Len() int { return p.cache.Len() }
