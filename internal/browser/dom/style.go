// internal/browser/dom/style.go
package dom

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// TrackedStyles lists the computed properties the readiness engine reads.
// CDP snapshots request exactly these.
var TrackedStyles = []string{
	"display",
	"visibility",
	"opacity",
	"pointer-events",
	"z-index",
	"cursor",
	"animation-name",
	"animation-duration",
	"animation-delay",
	"animation-iteration-count",
	"transition-duration",
	"transition-delay",
}

// inherited marks properties whose computed value flows from the parent.
var inherited = map[string]bool{
	"visibility":     true,
	"pointer-events": true,
	"cursor":         true,
}

// hiddenTags are never rendered.
var hiddenTags = map[string]bool{
	"head": true, "script": true, "style": true, "title": true, "meta": true,
	"link": true, "template": true, "noscript": true, "base": true,
}

// inlineTags default to an inline formatting context.
var inlineTags = map[string]bool{
	"a": true, "span": true, "b": true, "i": true, "em": true, "strong": true,
	"label": true, "img": true, "input": true, "button": true, "select": true,
	"textarea": true, "code": true, "small": true, "svg": true,
}

func initialValue(n *html.Node, prop string) string {
	switch prop {
	case "display":
		tag := strings.ToLower(n.Data)
		if hiddenTags[tag] {
			return "none"
		}
		if _, ok := attr(n, "hidden"); ok {
			return "none"
		}
		if inlineTags[tag] {
			return "inline"
		}
		return "block"
	case "visibility":
		return "visible"
	case "opacity":
		return "1"
	case "pointer-events", "z-index", "cursor":
		return "auto"
	case "animation-name":
		return "none"
	case "animation-duration", "animation-delay", "transition-duration", "transition-delay":
		return "0s"
	case "animation-iteration-count":
		return "1"
	}
	return ""
}

// ParseInlineStyle parses a style attribute into a property map. Later
// declarations win; `!important` markers are dropped.
func ParseInlineStyle(s string) map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(s, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important"))
		if prop == "" || val == "" {
			continue
		}
		out[prop] = val
	}
	expandShorthands(out)
	return out
}

// expandShorthands fills the animation/transition longhands the engine reads
// from their shorthand forms, e.g. `animation: spin 1s infinite`.
func expandShorthands(styles map[string]string) {
	if v, ok := styles["animation"]; ok {
		first := strings.Split(v, ",")[0]
		var durations []string
		for _, tok := range strings.Fields(first) {
			switch {
			case tok == "infinite" || isNumber(tok):
				setDefault(styles, "animation-iteration-count", tok)
			case isDuration(tok):
				durations = append(durations, tok)
			case !isKeyword(tok):
				setDefault(styles, "animation-name", tok)
			}
		}
		if len(durations) > 0 {
			setDefault(styles, "animation-duration", durations[0])
		}
		if len(durations) > 1 {
			setDefault(styles, "animation-delay", durations[1])
		}
	}
	if v, ok := styles["transition"]; ok {
		var durations []string
		for _, tok := range strings.Fields(strings.Split(v, ",")[0]) {
			if isDuration(tok) {
				durations = append(durations, tok)
			}
		}
		if len(durations) > 0 {
			setDefault(styles, "transition-duration", durations[0])
		}
		if len(durations) > 1 {
			setDefault(styles, "transition-delay", durations[1])
		}
	}
}

func setDefault(m map[string]string, k, v string) {
	if _, ok := m[k]; !ok {
		m[k] = v
	}
}

func isKeyword(tok string) bool {
	switch tok {
	case "linear", "ease", "ease-in", "ease-out", "ease-in-out", "step-start", "step-end",
		"normal", "reverse", "alternate", "alternate-reverse", "forwards", "backwards",
		"both", "none", "running", "paused":
		return true
	}
	return strings.HasPrefix(tok, "cubic-bezier(") || strings.HasPrefix(tok, "steps(")
}

func isNumber(tok string) bool {
	_, err := strconv.ParseFloat(tok, 64)
	return err == nil
}

func isDuration(tok string) bool {
	_, ok := ParseDuration(tok)
	return ok
}

// ParseDuration parses a CSS time value ("200ms", "1.5s"). For comma lists
// only the first entry is considered.
func ParseDuration(v string) (time.Duration, bool) {
	v = strings.TrimSpace(strings.Split(v, ",")[0])
	switch {
	case strings.HasSuffix(v, "ms"):
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "ms"), 64)
		if err != nil {
			return 0, false
		}
		return time.Duration(f * float64(time.Millisecond)), true
	case strings.HasSuffix(v, "s"):
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "s"), 64)
		if err != nil {
			return 0, false
		}
		return time.Duration(f * float64(time.Second)), true
	}
	return 0, false
}

// ParsePx parses a CSS pixel length; unitless numbers are accepted.
func ParsePx(v string) (float64, bool) {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// -- Rendering Predicates --

// IsRenderedSelf reports whether the element itself is displayed, opaque and
// not hidden. Ancestors are not considered.
func (e *Element) IsRenderedSelf() bool {
	if e.Style("display") == "none" {
		return false
	}
	if e.Style("visibility") == "hidden" || e.Style("visibility") == "collapse" {
		return false
	}
	if op, err := strconv.ParseFloat(e.Style("opacity"), 64); err == nil && op <= 0 {
		return false
	}
	return true
}

// IsRendered reports whether the element and every ancestor are rendered.
func (e *Element) IsRendered() bool {
	for _, a := range e.Ancestors() {
		if !a.IsRenderedSelf() {
			return false
		}
	}
	return true
}

// IsHitTestable reports whether the element can be the target of a pointer hit.
// Unlike IsRendered, zero opacity does not exclude an element.
func (e *Element) IsHitTestable() bool {
	if e.Style("visibility") != "visible" || e.Style("pointer-events") == "none" {
		return false
	}
	for _, a := range e.Ancestors() {
		if a.Style("display") == "none" {
			return false
		}
	}
	return !e.Rect().IsEmpty()
}

// IsDisabled reports whether the element itself carries a disabled state.
func (e *Element) IsDisabled() bool {
	if _, ok := e.Attr("disabled"); ok {
		return true
	}
	if v, ok := e.Attr("aria-disabled"); ok && strings.EqualFold(v, "true") {
		return true
	}
	return false
}
