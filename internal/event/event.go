// Package event defines the canonical tracking event model and the
// normalizers that build well-formed events from raw interaction signals.
package event

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Type classifies a tracking event. The set is closed; anything outside
// it is recorded as TypeCustom.
type Type string

const (
	TypePageView     Type = "page_view"
	TypeClick        Type = "click"
	TypeFormSubmit   Type = "form_submit"
	TypeFormStart    Type = "form_start"
	TypeScroll       Type = "scroll"
	TypeTimeOnPage   Type = "time_on_page"
	TypeExternalLink Type = "external_link"
	TypeDownload     Type = "download"
	TypeVideoPlay    Type = "video_play"
	TypeVideoDone    Type = "video_complete"
	TypeCustom       Type = "custom"
)

var validTypes = map[Type]bool{
	TypePageView: true, TypeClick: true, TypeFormSubmit: true,
	TypeFormStart: true, TypeScroll: true, TypeTimeOnPage: true,
	TypeExternalLink: true, TypeDownload: true, TypeVideoPlay: true,
	TypeVideoDone: true, TypeCustom: true,
}

// ParseType maps a free-form type string onto the closed enumeration,
// falling back to TypeCustom.
func ParseType(s string) Type {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if validTypes[t] {
		return t
	}
	return TypeCustom
}

// PageInfo is a snapshot of the page an event originated on, captured at
// normalization time and immutable afterwards.
type PageInfo struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	Title    string `json:"title"`
	Referrer string `json:"referrer,omitempty"`
	Search   string `json:"search,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

// UserInfo is the session-scoped client descriptor attached to every event.
type UserInfo struct {
	SessionID      string `json:"session_id"`
	UserAgent      string `json:"user_agent"`
	Language       string `json:"language,omitempty"`
	ScreenWidth    int    `json:"screen_width,omitempty"`
	ScreenHeight   int    `json:"screen_height,omitempty"`
	ViewportWidth  int    `json:"viewport_width,omitempty"`
	ViewportHeight int    `json:"viewport_height,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

// Metadata is the open contextual bag attached to an event. Values are
// sanitized before they get here; form-field values in particular never
// appear, only presence markers.
type Metadata map[string]interface{}

// TrackingEvent is the canonical unit of observability data. Once built
// it is immutable; retries resend the identical payload.
type TrackingEvent struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	Name       string                 `json:"name"`
	Category   string                 `json:"category,omitempty"`
	Label      string                 `json:"label,omitempty"`
	Value      float64                `json:"value,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Timestamp  int64                  `json:"timestamp"`
	Page       PageInfo               `json:"page"`
	User       UserInfo               `json:"user"`
	Metadata   Metadata               `json:"metadata,omitempty"`
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36[rand.Intn(len(base36))]
	}
	return string(b)
}

// NewEventID generates a unique, time-prefixed event identifier. The id
// doubles as the durable queue's dedup/delete key.
func NewEventID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), randSuffix(9))
}
