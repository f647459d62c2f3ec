package ports

import (
	"time"

	"github.com/seclens/vulnprio/internal/core/domain"
)

// EnrichmentCache stores the last-fetched enrichment state per CVE
// identifier. The orchestrator exclusively owns writes; entries are
// independent, so implementations need no cross-identifier locking.
type EnrichmentCache interface {
	// Get returns the cached entry, or false on a miss.
	Get(cveID string) (*domain.CacheEntry, bool)

	// Put stores the enriched view with the given per-source fetch
	// timestamps. Fresher data always overwrites older data for the same
	// source (last-writer-wins at source-field granularity).
	Put(cveID string, e domain.EnrichedVulnerability, fetchedAt map[domain.Source]time.Time)

	// Keys returns all cached identifiers, used by the refresh scheduler.
	Keys() []string

	Len() int
}
