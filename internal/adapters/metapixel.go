package adapters

import (
	"github.com/igorcardos0/aquiplanos-tracking/internal/config"
	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
)

// metaEventNames maps canonical event types onto Meta Pixel's standard
// event vocabulary.
var metaEventNames = map[event.Type]string{
	event.TypePageView:     "PageView",
	event.TypeFormSubmit:   "Lead",
	event.TypeFormStart:    "InitiateCheckout",
	event.TypeClick:        "ViewContent",
	event.TypeScroll:       "Scroll",
	event.TypeTimeOnPage:   "TimeOnPage",
	event.TypeExternalLink: "OutboundClick",
	event.TypeDownload:     "Download",
	event.TypeVideoPlay:    "VideoPlay",
	event.TypeVideoDone:    "VideoComplete",
}

// MetaPixel forwards events to the Meta Pixel tag.
type MetaPixel struct {
	call    Call
	enabled bool
	pixelID string
}

// NewMetaPixel creates the adapter over the given vendor call. A nil call
// marks the vendor as unavailable.
func NewMetaPixel(call Call) *MetaPixel {
	return &MetaPixel{call: call}
}

func (m *MetaPixel) Name() string    { return "metaPixel" }
func (m *MetaPixel) Available() bool { return m.call != nil }

func (m *MetaPixel) Init(cfg config.AdaptersConfig) {
	m.enabled = cfg.MetaPixel.Enabled
	m.pixelID = cfg.MetaPixel.PixelID
	if m.enabled && m.pixelID == "" {
		logger.Warn("adapters: meta pixel id not configured")
	}
}

func (m *MetaPixel) Track(ev event.TrackingEvent) {
	if !m.enabled {
		return
	}

	name := metaEventNames[ev.Type]
	if name == "" {
		name = ev.Name
	}
	if name == "" {
		name = "CustomEvent"
	}

	params := map[string]interface{}{
		"content_name":     ev.Name,
		"content_category": ev.Category,
		"content_ids":      []string{ev.ID},
		"currency":         "BRL",
	}
	if ev.Value != 0 {
		params["value"] = ev.Value
	}
	for k, v := range ev.Properties {
		params[k] = v
	}
	if v, ok := ev.Metadata["element_text"]; ok {
		params["content_name"] = v
	}
	if v, ok := ev.Metadata["scroll_depth"]; ok {
		params["scroll_depth"] = v
	}
	if v, ok := ev.Metadata["time_on_page"]; ok {
		params["time_on_page"] = v
	}
	dropEmpty(params)

	invoke(m.Name(), m.call, "track", name, params)
}

// Pageview sends the vendor's dedicated PageView signal.
func (m *MetaPixel) Pageview(page event.PageInfo) {
	if !m.enabled {
		return
	}
	invoke(m.Name(), m.call, "track", "PageView", nil)
}
