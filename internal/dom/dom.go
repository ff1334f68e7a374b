// Package dom models the snapshots of UI state that the host feeds into
// the pipeline. The pipeline never touches a live document; it sees only
// these value types, which keeps every tracker unit-testable.
package dom

import "strings"

// Marker attributes recognized on elements. Opt-out always wins over opt-in.
const (
	AttrTrack       = "data-track"
	AttrTrackIgnore = "data-track-ignore"
)

// Element is a snapshot of a UI element and its ancestry at interaction
// time. Parent points toward the document root.
type Element struct {
	Tag    string            `json:"tag"`
	ID     string            `json:"id,omitempty"`
	Class  string            `json:"class,omitempty"`
	Text   string            `json:"text,omitempty"`
	Href   string            `json:"href,omitempty"`
	Role   string            `json:"role,omitempty"`
	Attrs  map[string]string `json:"attrs,omitempty"`
	Parent *Element          `json:"parent,omitempty"`
}

// HasAttr reports whether the element itself carries the named attribute.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attrs[name]
	return ok
}

// Closest walks from the element toward the root and returns the first
// element satisfying pred, or nil.
func (e *Element) Closest(pred func(*Element) bool) *Element {
	for el := e; el != nil; el = el.Parent {
		if pred(el) {
			return el
		}
	}
	return nil
}

// clickableTags are elements tracked without any opt-in marker.
var clickableTags = map[string]bool{
	"button":   true,
	"a":        true,
	"input":    true,
	"select":   true,
	"textarea": true,
}

// FindTrackable resolves the element whose interaction should be recorded
// for a click landing on target. Resolution order:
//  1. any ancestor carrying the opt-out marker disqualifies the click
//  2. the target itself if it is a natively clickable tag
//  3. the closest ancestor carrying the opt-in marker
//  4. the closest button, anchor, or role="button" ancestor
//
// Returns nil when nothing should be tracked.
func FindTrackable(target *Element) *Element {
	if target == nil {
		return nil
	}

	if target.Closest(func(el *Element) bool { return el.HasAttr(AttrTrackIgnore) }) != nil {
		return nil
	}

	if clickableTags[strings.ToLower(target.Tag)] {
		return target
	}

	if el := target.Closest(func(el *Element) bool { return el.HasAttr(AttrTrack) }); el != nil {
		return el
	}

	return target.Closest(func(el *Element) bool {
		tag := strings.ToLower(el.Tag)
		return tag == "button" || tag == "a" || el.Role == "button"
	})
}

// Field is a single named form control and its value at capture time. The
// value never leaves the normalizer; only a presence marker is recorded.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Form is a snapshot of a form and its controls. Hosts resolve the
// enclosing form themselves when emitting focus and submit signals.
type Form struct {
	ID     string  `json:"id,omitempty"`
	Class  string  `json:"class,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}
