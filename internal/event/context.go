package event

import "sync"

// Client describes the browser/runtime the signals originate from. It is
// stable for the lifetime of a session.
type Client struct {
	UserAgent      string `json:"user_agent"`
	Language       string `json:"language,omitempty"`
	ScreenWidth    int    `json:"screen_width,omitempty"`
	ScreenHeight   int    `json:"screen_height,omitempty"`
	ViewportWidth  int    `json:"viewport_width,omitempty"`
	ViewportHeight int    `json:"viewport_height,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

// Context holds the ambient page and client state the normalizer snapshots
// into every event. The host updates it on navigation; all reads copy, so
// events stay immutable after creation.
type Context struct {
	mu     sync.RWMutex
	page   PageInfo
	client Client
}

// NewContext creates an empty ambient context.
func NewContext() *Context {
	return &Context{}
}

// SetPage replaces the current page snapshot.
func (c *Context) SetPage(p PageInfo) {
	c.mu.Lock()
	c.page = p
	c.mu.Unlock()
}

// SetClient replaces the client descriptor.
func (c *Context) SetClient(cl Client) {
	c.mu.Lock()
	c.client = cl
	c.mu.Unlock()
}

// Page returns a copy of the current page snapshot.
func (c *Context) Page() PageInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.page
}

// Client returns a copy of the client descriptor.
func (c *Context) Client() Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}
