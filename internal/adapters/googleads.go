package adapters

import (
	"github.com/igorcardos0/aquiplanos-tracking/internal/config"
	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
)

// conversionEvents is the allow-list of event types reported as paid-ads
// conversions. Everything else is ignored by this adapter.
var conversionEvents = map[string]bool{
	"form_submit": true,
	"purchase":    true,
	"signup":      true,
	"lead":        true,
}

// GoogleAds reports conversion events to Google Ads conversion tracking.
// Unlike the analytics adapters it deliberately drops non-conversion
// traffic.
type GoogleAds struct {
	call            Call
	enabled         bool
	conversionID    string
	conversionLabel string
}

// NewGoogleAds creates the adapter over the given vendor call.
func NewGoogleAds(call Call) *GoogleAds {
	return &GoogleAds{call: call}
}

func (g *GoogleAds) Name() string    { return "googleAds" }
func (g *GoogleAds) Available() bool { return g.call != nil }

func (g *GoogleAds) Init(cfg config.AdaptersConfig) {
	g.enabled = cfg.GoogleAds.Enabled
	g.conversionID = cfg.GoogleAds.ConversionID
	g.conversionLabel = cfg.GoogleAds.ConversionLabel
	if g.enabled && (g.conversionID == "" || g.conversionLabel == "") {
		logger.Warn("adapters: google ads conversion id or label not configured")
	}
}

func (g *GoogleAds) Track(ev event.TrackingEvent) {
	if !g.enabled {
		return
	}
	if !conversionEvents[string(ev.Type)] && ev.Category != "conversion" {
		return
	}
	if g.conversionID == "" || g.conversionLabel == "" {
		return
	}

	params := map[string]interface{}{
		"send_to":  g.conversionID + "/" + g.conversionLabel,
		"value":    ev.Value,
		"currency": "BRL",
	}
	if v, ok := ev.Properties["transaction_id"]; ok {
		params["transaction_id"] = v
	}
	dropEmpty(params)

	invoke(g.Name(), g.call, "event", "conversion", params)
}
