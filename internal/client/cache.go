// Package client implements the consumer side of the asynchronous response
// flow: a small cache plus a resolver that polls the callback endpoint until
// a response arrives or the attempt budget runs out.
package client

import (
	"sync"
	"time"
)

// CachedResponse is a resolved piece of generated content held by a Cache.
// Source records how it was obtained: "immediate" for content returned inline
// by the proxy, "callback" for content fetched from the callback endpoint,
// and "fallback" for the synthesized notice rendered after a timeout.
type CachedResponse struct {
	SubmissionID string
	Content      string
	Timestamp    time.Time
	Source       string
}

// Cache stores at most one response per submission id. Implementations must
// be safe for concurrent use.
type Cache interface {
	Get(id string) (*CachedResponse, bool)
	Put(id string, resp CachedResponse)
}

// MemoryCache is the default in-process Cache. One key per submission id;
// a later Put overwrites an earlier one.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]CachedResponse
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]CachedResponse)}
}

// Get returns a copy of the cached response for id, if any.
func (c *MemoryCache) Get(id string) (*CachedResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	cp := e
	return &cp, true
}

// Put stores resp under id, replacing any previous entry.
func (c *MemoryCache) Put(id string, resp CachedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = resp
}
