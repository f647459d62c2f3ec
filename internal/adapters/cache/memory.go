// Package cache provides enrichment cache backends behind
// ports.EnrichmentCache: a zero-config in-memory store and a durable
// sqlite store that survives restarts.
package cache

import (
	"sync"
	"time"

	"github.com/seclens/vulnprio/internal/core/domain"
)

// MemoryCache is the in-process enrichment cache. Entries are created on
// first successful enrichment and updated in place on refresh; the core
// never evicts on its own.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*domain.CacheEntry
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*domain.CacheEntry)}
}

// Get returns a copy of the cached entry for cveID.
func (c *MemoryCache) Get(cveID string) (*domain.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cveID]
	if !ok {
		return nil, false
	}
	cp := *entry
	cp.FetchedAt = make(map[domain.Source]time.Time, len(entry.FetchedAt))
	for s, ts := range entry.FetchedAt {
		cp.FetchedAt[s] = ts
	}
	return &cp, true
}

// Put stores the enriched view. Per source, a fresher fetch timestamp
// always overwrites an older one; an older one never regresses a newer
// entry (last-writer-wins at source granularity).
func (c *MemoryCache) Put(cveID string, e domain.EnrichedVulnerability, fetchedAt map[domain.Source]time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[cveID]
	if !ok {
		entry = &domain.CacheEntry{FetchedAt: make(map[domain.Source]time.Time)}
		c.entries[cveID] = entry
	}

	entry.Enriched = e
	entry.UpdatedAt = time.Now()
	for s, ts := range fetchedAt {
		if ts.After(entry.FetchedAt[s]) {
			entry.FetchedAt[s] = ts
		}
	}
}

// Keys returns all cached identifiers.
func (c *MemoryCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of cached identifiers.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
