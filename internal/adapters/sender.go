package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/httpretry"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
)

// Server-side vendor calls. In the browser the vendor tags are ambient
// globals; here the equivalent public surfaces are the GA4 Measurement
// Protocol and the Meta Conversions API. Calls are fire-and-forget with a
// bounded timeout so adapter fan-out never blocks on vendor latency.

const (
	gaCollectURL    = "https://www.google-analytics.com/mp/collect"
	metaGraphURL    = "https://graph.facebook.com/v18.0"
	vendorCallLimit = 5 * time.Second
)

// NewMeasurementProtocolCall returns a Call that forwards gtag-style
// commands to the GA4 Measurement Protocol. "config" commands are
// reported as page_view events, matching tag behavior.
func NewMeasurementProtocolCall(client httpretry.Doer, measurementID, apiSecret string) Call {
	if measurementID == "" || apiSecret == "" {
		return nil
	}
	if client == nil {
		client = httpretry.New(nil, 2)
	}
	clientID := uuid.NewString()
	endpoint := fmt.Sprintf("%s?measurement_id=%s&api_secret=%s",
		gaCollectURL, url.QueryEscape(measurementID), url.QueryEscape(apiSecret))

	return func(command, name string, params map[string]interface{}) error {
		if command == "config" {
			name = "page_view"
		}
		body, err := json.Marshal(map[string]interface{}{
			"client_id": clientID,
			"events": []map[string]interface{}{
				{"name": name, "params": params},
			},
		})
		if err != nil {
			return fmt.Errorf("ga4 call: marshal: %w", err)
		}
		go post(client, "googleAnalytics", endpoint, body)
		return nil
	}
}

// NewConversionsAPICall returns a Call that forwards fbq-style commands
// to the Meta Conversions API.
func NewConversionsAPICall(client httpretry.Doer, pixelID, accessToken string) Call {
	if pixelID == "" || accessToken == "" {
		return nil
	}
	if client == nil {
		client = httpretry.New(nil, 2)
	}
	endpoint := fmt.Sprintf("%s/%s/events?access_token=%s",
		metaGraphURL, url.PathEscape(pixelID), url.QueryEscape(accessToken))

	return func(command, name string, params map[string]interface{}) error {
		body, err := json.Marshal(map[string]interface{}{
			"data": []map[string]interface{}{
				{
					"event_name":    name,
					"event_time":    time.Now().Unix(),
					"action_source": "website",
					"custom_data":   params,
				},
			},
		})
		if err != nil {
			return fmt.Errorf("meta call: marshal: %w", err)
		}
		go post(client, "metaPixel", endpoint, body)
		return nil
	}
}

// post delivers one vendor payload in the background. Failures are logged
// and dropped; vendor delivery is best-effort by design and never feeds
// back into the durable queue.
func post(client httpretry.Doer, vendor, endpoint string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), vendorCallLimit)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		logger.Warn("adapters: building vendor request failed", "adapter", vendor, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("adapters: vendor request failed", "adapter", vendor, "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		logger.Warn("adapters: vendor rejected payload", "adapter", vendor, "status", resp.StatusCode)
	}
}
