package ports

import (
	"context"

	"github.com/seclens/vulnprio/internal/core/domain"
)

// DetailSource is the vulnerability detail catalog adapter (NVD).
//
// Fetch returns domain.ErrNotFound when the catalog does not know the
// identifier (a valid terminal outcome, distinct from transient failure)
// and *domain.SourceUnavailableError when the source cannot be reached
// after retries.
type DetailSource interface {
	Fetch(ctx context.Context, cveID string) (*domain.DetailRecord, error)
}

// ExploitSource is the exploit probability feed adapter (EPSS).
// A CVE not yet scored yields domain.ErrNotFound; the correlator treats
// that as probability 0, never as an error.
type ExploitSource interface {
	Fetch(ctx context.Context, cveID string) (*domain.ExploitRecord, error)

	// FetchBatch resolves many identifiers in one upstream round trip
	// where the feed supports it. Missing identifiers are simply absent
	// from the result map.
	FetchBatch(ctx context.Context, cveIDs []string) (map[string]domain.ExploitRecord, error)
}

// KEVSource is the known-exploited catalog adapter. Membership checks run
// against a periodically synced snapshot, so Fetch never returns
// ErrNotFound: absence from the catalog is a negative record.
type KEVSource interface {
	Fetch(ctx context.Context, cveID string) (*domain.KEVRecord, error)

	// Sync refreshes the catalog snapshot and returns its entry count.
	Sync(ctx context.Context) (int, error)

	Stats() domain.KEVCatalogStats
}
