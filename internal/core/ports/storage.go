package ports

import (
	"context"

	"github.com/seclens/vulnprio/internal/core/domain"
)

// VulnerabilityStore persists the long-lived projection of enriched
// vulnerabilities and their scores. Owned by the storage collaborator;
// the pipeline only upserts through it.
type VulnerabilityStore interface {
	UpsertVulnerability(ctx context.Context, rec domain.VulnerabilityRecord) error
	UpsertVulnerabilitiesBatch(ctx context.Context, recs []domain.VulnerabilityRecord) error

	// GetVulnerability returns (nil, nil) for an unknown identifier;
	// errors are reserved for storage failures.
	GetVulnerability(ctx context.Context, cveID string) (*domain.VulnerabilityRecord, error)
	ListVulnerabilities(ctx context.Context, filter domain.VulnerabilityFilter) ([]domain.VulnerabilityRecord, error)
	ListCVEIDs(ctx context.Context) ([]string, error)
	UpdateStatus(ctx context.Context, cveID string, status domain.VulnerabilityStatus, notes string) error
	Stats(ctx context.Context) (domain.VulnerabilityStats, error)
	Close() error
}
