package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/igorcardos0/aquiplanos-tracking/internal/config"
	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
)

// ErrNotConfigured marks a collector client without endpoint or API key;
// delivery is skipped in that case rather than counted as a failure.
var ErrNotConfigured = errors.New("collector endpoint or api key not configured")

// APIResponse is the collector's per-batch result.
type APIResponse struct {
	Success   bool     `json:"success"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// batchRequest is the collector wire format.
type batchRequest struct {
	Events []event.TrackingEvent `json:"events"`
	APIKey string                `json:"api_key"`
}

// Client delivers event batches to the collection endpoint. It makes a
// single attempt per call with an explicit timeout; retry policy lives in
// the durable queue, not here.
type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
}

// NewClient builds a collector client from the API configuration.
func NewClient(cfg config.APIConfig) *Client {
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout()},
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
	}
}

// Send posts one batch. A non-2xx status, an undecodable body, or a
// success=false response all fail the whole batch.
func (c *Client) Send(ctx context.Context, events []event.TrackingEvent) (*APIResponse, error) {
	if c.endpoint == "" || c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(batchRequest{Events: events, APIKey: c.apiKey})
	if err != nil {
		return nil, fmt.Errorf("collector send: marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("collector send: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("collector send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("collector send: HTTP %d", resp.StatusCode)
	}

	var result APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("collector send: decode response: %w", err)
	}
	if !result.Success {
		msg := strings.Join(result.Errors, ", ")
		if msg == "" {
			msg = "unknown collector error"
		}
		return nil, fmt.Errorf("collector send: %s", msg)
	}
	return &result, nil
}
