package adapters

import (
	"github.com/igorcardos0/aquiplanos-tracking/internal/config"
	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
)

// gaEventNames maps canonical event types onto GA4 recommended events.
// External link clicks are reported as clicks with the outbound flag.
var gaEventNames = map[event.Type]string{
	event.TypePageView:     "page_view",
	event.TypeFormSubmit:   "form_submit",
	event.TypeFormStart:    "form_start",
	event.TypeClick:        "click",
	event.TypeScroll:       "scroll",
	event.TypeTimeOnPage:   "time_on_page",
	event.TypeExternalLink: "click",
	event.TypeDownload:     "file_download",
	event.TypeVideoPlay:    "video_start",
	event.TypeVideoDone:    "video_complete",
}

// GoogleAnalytics forwards events to the GA4 tag.
type GoogleAnalytics struct {
	call          Call
	enabled       bool
	measurementID string
}

// NewGoogleAnalytics creates the adapter over the given vendor call.
func NewGoogleAnalytics(call Call) *GoogleAnalytics {
	return &GoogleAnalytics{call: call}
}

func (g *GoogleAnalytics) Name() string    { return "googleAnalytics" }
func (g *GoogleAnalytics) Available() bool { return g.call != nil }

func (g *GoogleAnalytics) Init(cfg config.AdaptersConfig) {
	g.enabled = cfg.GoogleAnalytics.Enabled
	g.measurementID = cfg.GoogleAnalytics.MeasurementID
	if g.enabled && g.measurementID == "" {
		logger.Warn("adapters: google analytics measurement id not configured")
	}
}

func (g *GoogleAnalytics) Track(ev event.TrackingEvent) {
	if !g.enabled {
		return
	}

	name := gaEventNames[ev.Type]
	if name == "" {
		name = ev.Name
	}
	if name == "" {
		name = "custom_event"
	}

	category := ev.Category
	if category == "" {
		category = "general"
	}
	params := map[string]interface{}{
		"event_category": category,
		"event_label":    ev.Label,
	}
	if ev.Value != 0 {
		params["value"] = ev.Value
	}
	for k, v := range ev.Properties {
		params[k] = v
	}
	for _, key := range []string{"element_id", "element_text", "scroll_depth", "time_on_page", "link_domain"} {
		if v, ok := ev.Metadata[key]; ok {
			params[key] = v
		}
	}
	if ev.Type == event.TypeExternalLink {
		params["outbound"] = true
		if v, ok := ev.Metadata["element_href"]; ok {
			params["link_url"] = v
		}
	}
	dropEmpty(params)

	invoke(g.Name(), g.call, "event", name, params)
}

// Pageview reconfigures the tag with the new page path and title.
func (g *GoogleAnalytics) Pageview(page event.PageInfo) {
	if !g.enabled || g.measurementID == "" {
		return
	}
	invoke(g.Name(), g.call, "config", g.measurementID, map[string]interface{}{
		"page_path":  page.Path,
		"page_title": page.Title,
	})
}
