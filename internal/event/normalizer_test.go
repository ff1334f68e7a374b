package event

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorcardos0/aquiplanos-tracking/internal/dom"
)

func testNormalizer() *Normalizer {
	ambient := NewContext()
	ambient.SetPage(PageInfo{
		URL:   "https://www.aquiplanos.com.br/planos",
		Path:  "/planos",
		Title: "Planos",
	})
	ambient.SetClient(Client{UserAgent: "test-agent", Language: "pt-BR"})
	return NewNormalizer(ambient, NewSession(NewMemorySessionStore()))
}

func TestNormalizer_Event_Snapshots(t *testing.T) {
	n := testNormalizer()
	ev := n.Event(context.Background(), TypeCustom, "quiz_answer", Options{
		Category: "quiz",
		Label:    "q1",
		Value:    3,
	})

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, TypeCustom, ev.Type)
	assert.Equal(t, "quiz_answer", ev.Name)
	assert.Equal(t, "quiz", ev.Category)
	assert.Equal(t, "q1", ev.Label)
	assert.Equal(t, float64(3), ev.Value)
	assert.Greater(t, ev.Timestamp, int64(0))
	assert.Equal(t, "/planos", ev.Page.Path)
	assert.Equal(t, "test-agent", ev.User.UserAgent)
	assert.True(t, strings.HasPrefix(ev.User.SessionID, "session-"))
	assert.NotNil(t, ev.Properties)
	assert.NotNil(t, ev.Metadata)
}

func TestNormalizer_Event_TimestampsNonDecreasing(t *testing.T) {
	n := testNormalizer()
	var last int64
	for i := 0; i < 1000; i++ {
		ev := n.Event(context.Background(), TypeCustom, "tick", Options{})
		assert.GreaterOrEqual(t, ev.Timestamp, last)
		last = ev.Timestamp
	}
}

func TestNormalizer_Event_SessionStable(t *testing.T) {
	n := testNormalizer()
	a := n.Event(context.Background(), TypeCustom, "a", Options{})
	b := n.Event(context.Background(), TypeCustom, "b", Options{})
	assert.Equal(t, a.User.SessionID, b.User.SessionID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNormalizer_Click_Button(t *testing.T) {
	n := testNormalizer()
	ev := n.Click(context.Background(), &dom.Element{
		Tag:   "BUTTON",
		ID:    "cta-hero",
		Class: "btn btn-primary",
		Text:  "  Contratar agora  ",
	}, Options{Category: "interaction"})

	assert.Equal(t, TypeClick, ev.Type)
	assert.Equal(t, "button_click", ev.Name)
	assert.Equal(t, "Contratar agora", ev.Label)
	assert.Equal(t, "button", ev.Metadata["element_tag"])
	assert.Equal(t, "cta-hero", ev.Metadata["element_id"])
	assert.Equal(t, "btn btn-primary", ev.Metadata["element_class"])
	assert.Equal(t, "Contratar agora", ev.Metadata["element_text"])
}

func TestNormalizer_Click_LabelFallbacks(t *testing.T) {
	n := testNormalizer()

	ev := n.Click(context.Background(), &dom.Element{Tag: "button", ID: "buy"}, Options{})
	assert.Equal(t, "buy", ev.Label)

	ev = n.Click(context.Background(), &dom.Element{Tag: "button"}, Options{})
	assert.Equal(t, "unknown", ev.Label)
}

func TestNormalizer_Click_TextTruncated(t *testing.T) {
	n := testNormalizer()
	long := strings.Repeat("x", 250)
	ev := n.Click(context.Background(), &dom.Element{Tag: "button", Text: long}, Options{})
	assert.Len(t, ev.Label, 100)
}

func TestNormalizer_Click_ExternalLink(t *testing.T) {
	n := testNormalizer()
	ev := n.Click(context.Background(), &dom.Element{
		Tag:  "a",
		Href: "https://wa.me/5511999999999",
		Text: "WhatsApp",
	}, Options{Category: "interaction"})

	assert.Equal(t, TypeExternalLink, ev.Type)
	assert.Equal(t, "external_link_click", ev.Name)
	assert.Equal(t, "https://wa.me/5511999999999", ev.Label)
	assert.Equal(t, "wa.me", ev.Metadata["link_domain"])
	assert.Equal(t, "https://wa.me/5511999999999", ev.Metadata["element_href"])
}

func TestNormalizer_Click_InternalLink(t *testing.T) {
	n := testNormalizer()

	// Relative hrefs resolve against the page and stay internal
	ev := n.Click(context.Background(), &dom.Element{Tag: "a", Href: "/contato", Text: "Contato"}, Options{})
	assert.Equal(t, TypeClick, ev.Type)

	// Absolute same-host hrefs stay internal too
	ev = n.Click(context.Background(), &dom.Element{
		Tag: "a", Href: "https://www.aquiplanos.com.br/sobre", Text: "Sobre",
	}, Options{})
	assert.Equal(t, TypeClick, ev.Type)
}

func TestNormalizer_Click_MalformedPageURL(t *testing.T) {
	ambient := NewContext()
	ambient.SetPage(PageInfo{URL: "::not-a-url::", Path: "/x"})
	n := NewNormalizer(ambient, NewSession(NewMemorySessionStore()))

	// With no usable base URL every anchor is treated as same-origin
	ev := n.Click(context.Background(), &dom.Element{
		Tag: "a", Href: "https://example.com/away", Text: "away",
	}, Options{})
	assert.Equal(t, TypeClick, ev.Type)
}

func TestNormalizer_Form_PresenceMarkers(t *testing.T) {
	n := testNormalizer()
	form := &dom.Form{
		ID:    "lead-form",
		Class: "contact",
		Fields: []dom.Field{
			{Name: "name", Value: "Maria"},
			{Name: "email", Value: ""},
			{Name: "password", Value: "hunter2"},
			{Name: "Credit_Card_Number", Value: ""},
			{Name: "card-cvv", Value: "123"},
		},
	}

	ev := n.Form(context.Background(), form, TypeFormSubmit, Options{Category: "conversion", Value: 1})

	require.Equal(t, TypeFormSubmit, ev.Type)
	assert.Equal(t, "form_submit_event", ev.Name)
	assert.Equal(t, "lead-form", ev.Label)
	assert.Equal(t, float64(1), ev.Value)

	fields, ok := ev.Metadata["form_fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "[filled]", fields["name"])
	assert.Equal(t, "[empty]", fields["email"])
	assert.Equal(t, "[hidden]", fields["password"])
	assert.Equal(t, "[hidden]", fields["Credit_Card_Number"])
	assert.Equal(t, "[hidden]", fields["card-cvv"])
	assert.Equal(t, "lead-form", ev.Metadata["form_id"])
	assert.Equal(t, "lead-form", ev.Metadata["element_id"])
	assert.Equal(t, "contact", ev.Metadata["element_class"])
}

func TestNormalizer_Form_SensitiveAlwaysHidden(t *testing.T) {
	n := testNormalizer()
	// Empty sensitive fields must still be [hidden], never [empty]
	form := &dom.Form{Fields: []dom.Field{{Name: "password", Value: ""}}}
	ev := n.Form(context.Background(), form, TypeFormStart, Options{})
	fields := ev.Metadata["form_fields"].(map[string]interface{})
	assert.Equal(t, "[hidden]", fields["password"])
}

func TestNormalizer_Form_AnonymousLabel(t *testing.T) {
	n := testNormalizer()
	ev := n.Form(context.Background(), &dom.Form{}, TypeFormStart, Options{})
	assert.Equal(t, "form", ev.Label)
	assert.Equal(t, "form_start_event", ev.Name)
	_, hasID := ev.Metadata["form_id"]
	assert.False(t, hasID)
}

func TestNormalizer_Scroll(t *testing.T) {
	n := testNormalizer()
	ev := n.Scroll(context.Background(), 75, Options{Category: "engagement"})
	assert.Equal(t, TypeScroll, ev.Type)
	assert.Equal(t, "scroll_depth", ev.Name)
	assert.Equal(t, "75%", ev.Label)
	assert.Equal(t, float64(75), ev.Value)
	assert.Equal(t, 75, ev.Metadata["scroll_depth"])
}

func TestNormalizer_Time(t *testing.T) {
	n := testNormalizer()
	ev := n.Time(context.Background(), 30, Options{Category: "engagement"})
	assert.Equal(t, TypeTimeOnPage, ev.Type)
	assert.Equal(t, "time_on_page", ev.Name)
	assert.Equal(t, "30s", ev.Label)
	assert.Equal(t, float64(30), ev.Value)
	assert.Equal(t, 30, ev.Metadata["time_on_page"])
}

func TestNormalizer_PageView(t *testing.T) {
	n := testNormalizer()
	ev := n.PageView(context.Background(), PageInfo{}, Options{})
	assert.Equal(t, TypePageView, ev.Type)
	assert.Equal(t, "page_view", ev.Name)
	assert.Equal(t, "/planos", ev.Label)
	assert.Equal(t, "/planos", ev.Page.Path)
}

func TestNormalizer_PageView_Override(t *testing.T) {
	n := testNormalizer()
	ev := n.PageView(context.Background(), PageInfo{Path: "/contato", Title: "Contato"}, Options{})
	assert.Equal(t, "/contato", ev.Page.Path)
	assert.Equal(t, "Contato", ev.Page.Title)
	assert.Equal(t, "/contato", ev.Label)
	assert.Equal(t, "https://www.aquiplanos.com.br/planos", ev.Page.URL, "override replaces only path and title")
}

func TestIsSensitiveField(t *testing.T) {
	sensitive := []string{"password", "user_password", "PASSWORD", "credit_card", "card_number", "cvv", "ssn", "social-ssn-field"}
	for _, name := range sensitive {
		assert.True(t, isSensitiveField(name), "expected %q sensitive", name)
	}
	safe := []string{"email", "name", "phone", "message", "address"}
	for _, name := range safe {
		assert.False(t, isSensitiveField(name), "expected %q safe", name)
	}
}
