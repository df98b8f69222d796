// internal/readiness/resolver/registry.go
package resolver

import (
	"sync"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
)

// Transition describes what happened to a locator's element between attempts.
type Transition int

const (
	// Appeared is the first sighting of an element for the locator.
	Appeared Transition = iota
	// Survived means the same element was found again.
	Survived
	// Replaced means a different element now matches the locator.
	Replaced
	// Removed means the locator no longer matches anything.
	Removed
	// Absent means the locator has never matched.
	Absent
)

func (t Transition) String() string {
	switch t {
	case Appeared:
		return "appeared"
	case Survived:
		return "survived"
	case Replaced:
		return "replaced"
	case Removed:
		return "removed"
	default:
		return "absent"
	}
}

type entry struct {
	key      dom.NodeKey
	rect     schemas.Rect
	prev     *schemas.Rect
	attempts int
}

// Registry is the element-identity registry of one browsing context. It
// remembers which element each locator resolved to and the step selectors
// adopted by best-match resolution. It is reset wholesale between runs.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	adopted map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		adopted: make(map[string]int),
	}
}

// Observe records the element locator resolved to on this attempt (nil when
// nothing matched) and reports the transition since the previous attempt.
func (r *Registry) Observe(locator string, el *dom.Element) Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, known := r.entries[locator]
	if el == nil {
		if !known {
			return Absent
		}
		delete(r.entries, locator)
		return Removed
	}
	rect := el.Rect()
	if !known {
		r.entries[locator] = &entry{key: el.Key(), rect: rect, attempts: 1}
		return Appeared
	}
	if e.key != el.Key() {
		*e = entry{key: el.Key(), rect: rect, attempts: 1}
		return Replaced
	}
	prev := e.rect
	e.prev = &prev
	e.rect = rect
	e.attempts++
	return Survived
}

// PreviousRect returns the rect the locator's element had on the attempt
// before the latest Observe, if it survived.
func (r *Registry) PreviousRect(locator string) (schemas.Rect, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[locator]
	if !ok || e.prev == nil {
		return schemas.Rect{}, false
	}
	return *e.prev, true
}

// Attempts returns how many consecutive attempts found the same element.
func (r *Registry) Attempts(locator string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[locator]; ok {
		return e.attempts
	}
	return 0
}

// Adopt records the selector index chosen by best-match for a step.
func (r *Registry) Adopt(stepID string, index int) {
	r.mu.Lock()
	r.adopted[stepID] = index
	r.mu.Unlock()
}

// Adopted returns the selector index previously adopted for a step.
func (r *Registry) Adopted(stepID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.adopted[stepID]
	return i, ok
}

// Reset forgets everything.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*entry)
	r.adopted = make(map[string]int)
}
