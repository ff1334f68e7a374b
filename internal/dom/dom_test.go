package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindTrackable_NilTarget(t *testing.T) {
	assert.Nil(t, FindTrackable(nil))
}

func TestFindTrackable_ClickableTags(t *testing.T) {
	for _, tag := range []string{"button", "a", "input", "select", "textarea", "BUTTON", "A"} {
		el := &Element{Tag: tag}
		assert.Equal(t, el, FindTrackable(el), "tag %s", tag)
	}
}

func TestFindTrackable_PlainElement(t *testing.T) {
	el := &Element{Tag: "div"}
	assert.Nil(t, FindTrackable(el))
}

func TestFindTrackable_OptOutWins(t *testing.T) {
	// Opt-out on the element itself
	el := &Element{Tag: "button", Attrs: map[string]string{AttrTrackIgnore: ""}}
	assert.Nil(t, FindTrackable(el))

	// Opt-out on an ancestor beats a clickable target
	el = &Element{
		Tag:    "button",
		Parent: &Element{Tag: "div", Attrs: map[string]string{AttrTrackIgnore: ""}},
	}
	assert.Nil(t, FindTrackable(el))

	// Opt-out beats opt-in anywhere in the chain
	el = &Element{
		Tag:   "span",
		Attrs: map[string]string{AttrTrack: ""},
		Parent: &Element{
			Tag:   "section",
			Attrs: map[string]string{AttrTrackIgnore: ""},
		},
	}
	assert.Nil(t, FindTrackable(el))
}

func TestFindTrackable_OptInAncestor(t *testing.T) {
	card := &Element{Tag: "div", ID: "plan-card", Attrs: map[string]string{AttrTrack: ""}}
	target := &Element{Tag: "span", Parent: card}
	assert.Equal(t, card, FindTrackable(target))
}

func TestFindTrackable_ClickableAncestor(t *testing.T) {
	btn := &Element{Tag: "button", ID: "submit"}
	icon := &Element{Tag: "svg", Parent: btn}
	assert.Equal(t, btn, FindTrackable(icon))

	anchor := &Element{Tag: "a", Href: "/planos"}
	text := &Element{Tag: "span", Parent: anchor}
	assert.Equal(t, anchor, FindTrackable(text))

	roleBtn := &Element{Tag: "div", Role: "button"}
	inner := &Element{Tag: "span", Parent: roleBtn}
	assert.Equal(t, roleBtn, FindTrackable(inner))
}

func TestFindTrackable_TargetBeforeAncestorOptIn(t *testing.T) {
	// A clickable target wins over an opted-in ancestor
	card := &Element{Tag: "div", Attrs: map[string]string{AttrTrack: ""}}
	input := &Element{Tag: "input", Parent: card}
	assert.Equal(t, input, FindTrackable(input))
}

func TestClosest(t *testing.T) {
	root := &Element{Tag: "body"}
	mid := &Element{Tag: "form", ID: "f1", Parent: root}
	leaf := &Element{Tag: "input", Parent: mid}

	found := leaf.Closest(func(e *Element) bool { return e.Tag == "form" })
	assert.Equal(t, mid, found)

	assert.Nil(t, leaf.Closest(func(e *Element) bool { return e.Tag == "table" }))

	// The starting element itself is considered
	self := leaf.Closest(func(e *Element) bool { return e.Tag == "input" })
	assert.Equal(t, leaf, self)
}
