// Package balance reads native and ERC-20 token balances over JSON-RPC.
package balance

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a cached balance is served before it is refetched.
const DefaultTTL = 30 * time.Second

// Cache stores raw balances keyed by chain, holder and token.
type Cache struct {
	mu      sync.RWMutex     `json:"-"`
	Entries map[string]Entry `json:"entries"`
}

// Entry is a single cached balance.
type Entry struct {
	ChainID   int       `json:"chain_id"`
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	Raw       string    `json:"raw"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCache creates an empty balance cache.
func NewCache() *Cache {
	return &Cache{Entries: make(map[string]Entry)}
}

// Key builds the cache key. Addresses are compared case-insensitively.
func Key(chainID int, address, token string) string {
	return strconv.Itoa(chainID) + ":" + strings.ToLower(address) + ":" + strings.ToLower(token)
}

// Get returns the cached entry, whether it exists, and its age.
func (c *Cache) Get(chainID int, address, token string) (*Entry, bool, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.Entries[Key(chainID, address, token)]
	if !ok {
		return nil, false, 0
	}
	return &entry, true, time.Since(entry.UpdatedAt)
}

// Fresh returns the cached raw balance when it is younger than ttl.
func (c *Cache) Fresh(chainID int, address, token string, ttl time.Duration) (string, bool) {
	entry, ok, age := c.Get(chainID, address, token)
	if !ok || age > ttl {
		return "", false
	}
	return entry.Raw, true
}

// Set stores a balance, stamping it with the current time.
func (c *Cache) Set(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.UpdatedAt = time.Now()
	c.Entries[Key(entry.ChainID, entry.Address, entry.Token)] = entry
}

// Delete removes a cache entry.
func (c *Cache) Delete(chainID int, address, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.Entries, Key(chainID, address, token))
}

// Clear removes all cache entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Entries = make(map[string]Entry)
}

// Size returns the number of cache entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.Entries)
}

// Prune removes entries older than maxAge and reports how many were dropped.
func (c *Cache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for key, entry := range c.Entries {
		if entry.UpdatedAt.Before(cutoff) {
			delete(c.Entries, key)
			removed++
		}
	}
	return removed
}
