package event

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/igorcardos0/aquiplanos-tracking/internal/dom"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
)

// maxLabelLen bounds the visible-text label derived from clicked elements.
const maxLabelLen = 100

// sensitiveFieldMarkers flag form fields whose values must never be
// recorded, matched case-insensitively as substrings of the field name.
var sensitiveFieldMarkers = []string{"password", "credit", "card", "cvv", "ssn"}

// Options carries the optional classification fields callers may attach
// to a normalized event.
type Options struct {
	Category   string
	Label      string
	Value      float64
	Properties map[string]interface{}
	Metadata   Metadata
}

// Normalizer builds canonical events from raw signals, snapshotting the
// ambient page and session state at call time.
type Normalizer struct {
	ctx     *Context
	session *Session
}

// NewNormalizer creates a normalizer over the given ambient context and
// session.
func NewNormalizer(ambient *Context, session *Session) *Normalizer {
	return &Normalizer{ctx: ambient, session: session}
}

// Event builds a canonical event of the given type and name.
func (n *Normalizer) Event(ctx context.Context, typ Type, name string, opts Options) TrackingEvent {
	props := opts.Properties
	if props == nil {
		props = map[string]interface{}{}
	}
	md := opts.Metadata
	if md == nil {
		md = Metadata{}
	}

	cl := n.ctx.Client()
	return TrackingEvent{
		ID:         NewEventID(),
		Type:       typ,
		Name:       name,
		Category:   opts.Category,
		Label:      opts.Label,
		Value:      opts.Value,
		Properties: props,
		Timestamp:  time.Now().UnixMilli(),
		Page:       n.ctx.Page(),
		User: UserInfo{
			SessionID:      n.session.ID(ctx),
			UserAgent:      cl.UserAgent,
			Language:       cl.Language,
			ScreenWidth:    cl.ScreenWidth,
			ScreenHeight:   cl.ScreenHeight,
			ViewportWidth:  cl.ViewportWidth,
			ViewportHeight: cl.ViewportHeight,
			Timezone:       cl.Timezone,
		},
		Metadata: md,
	}
}

// Click builds a click event from an element snapshot. Anchors resolving
// to a host other than the current page's host are reclassified as
// external_link events labeled with the destination URL. Malformed URLs
// are treated as same-origin.
func (n *Normalizer) Click(ctx context.Context, el *dom.Element, opts Options) TrackingEvent {
	md := Metadata{
		"element_tag": strings.ToLower(el.Tag),
	}
	if el.ID != "" {
		md["element_id"] = el.ID
	}
	if el.Class != "" {
		md["element_class"] = el.Class
	}
	text := truncate(strings.TrimSpace(el.Text), maxLabelLen)
	if text != "" {
		md["element_text"] = text
	}

	if strings.EqualFold(el.Tag, "a") && el.Href != "" {
		md["element_href"] = el.Href
		if host, external := n.externalHost(el.Href); external {
			md["link_domain"] = host
			opts.Label = el.Href
			opts.Metadata = md
			return n.Event(ctx, TypeExternalLink, "external_link_click", opts)
		}
	}

	label := text
	if label == "" {
		label = el.ID
	}
	if label == "" {
		label = "unknown"
	}
	opts.Label = label
	opts.Metadata = md
	return n.Event(ctx, TypeClick, "button_click", opts)
}

// externalHost resolves href against the current page URL and reports the
// destination host and whether it differs from the page's host.
func (n *Normalizer) externalHost(href string) (string, bool) {
	base, err := url.Parse(n.ctx.Page().URL)
	if err != nil || base.Hostname() == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	host := resolved.Hostname()
	if host == "" || host == base.Hostname() {
		return "", false
	}
	return host, true
}

// Form builds a form lifecycle event. Field values are reduced to presence
// markers; fields matching the sensitive-name heuristic are always
// recorded as [hidden] regardless of content.
func (n *Normalizer) Form(ctx context.Context, form *dom.Form, typ Type, opts Options) TrackingEvent {
	if typ != TypeFormStart && typ != TypeFormSubmit {
		logger.Warn("normalizer: unexpected form event type", "type", string(typ))
		typ = TypeFormSubmit
	}

	fields := map[string]interface{}{}
	for _, f := range form.Fields {
		if isSensitiveField(f.Name) {
			fields[f.Name] = "[hidden]"
		} else if len(f.Value) > 0 {
			fields[f.Name] = "[filled]"
		} else {
			fields[f.Name] = "[empty]"
		}
	}

	md := Metadata{
		"form_fields": fields,
	}
	if form.ID != "" {
		md["form_id"] = form.ID
		md["element_id"] = form.ID
	}
	if form.Class != "" {
		md["element_class"] = form.Class
	}

	label := form.ID
	if label == "" {
		label = "form"
	}
	opts.Label = label
	opts.Metadata = md
	return n.Event(ctx, typ, string(typ)+"_event", opts)
}

// Scroll builds a scroll-depth event for a reached threshold percentage.
func (n *Normalizer) Scroll(ctx context.Context, depth int, opts Options) TrackingEvent {
	opts.Label = fmt.Sprintf("%d%%", depth)
	opts.Value = float64(depth)
	opts.Metadata = Metadata{"scroll_depth": depth}
	return n.Event(ctx, TypeScroll, "scroll_depth", opts)
}

// Time builds a time-on-page event for a reached threshold in seconds.
func (n *Normalizer) Time(ctx context.Context, seconds int, opts Options) TrackingEvent {
	opts.Label = fmt.Sprintf("%ds", seconds)
	opts.Value = float64(seconds)
	opts.Metadata = Metadata{"time_on_page": seconds}
	return n.Event(ctx, TypeTimeOnPage, "time_on_page", opts)
}

// PageView builds a page view event labeled with the page path.
// Non-empty fields of override replace the ambient page snapshot, so a
// host can report a view for a path the ambient context has not caught
// up to yet.
func (n *Normalizer) PageView(ctx context.Context, override PageInfo, opts Options) TrackingEvent {
	page := n.ctx.Page()
	if override.Path != "" {
		page.Path = override.Path
	}
	if override.Title != "" {
		page.Title = override.Title
	}
	if opts.Label == "" {
		opts.Label = page.Path
	}
	ev := n.Event(ctx, TypePageView, "page_view", opts)
	ev.Page = page
	return ev
}

func isSensitiveField(name string) bool {
	name = strings.ToLower(name)
	for _, marker := range sensitiveFieldMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
