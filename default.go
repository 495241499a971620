package lightbus

import "sync"

// Process-scoped default Client, per the design's §9 open question on the
// source's global bus instance: Lightbus never forces a singleton (every
// caller can build and hold its own *Client), but offers this accessor
// pair for code that wants the convenience of one process-wide handle.
var (
	defaultMu     sync.RWMutex
	defaultClient *Client
)

// SetDefault installs c as the process-scoped default client.
func SetDefault(c *Client) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultClient = c
}

// Default returns the process-scoped default client, or nil if none was
// installed via SetDefault.
func Default() *Client {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultClient
}
