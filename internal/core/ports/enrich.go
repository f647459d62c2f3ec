package ports

import (
	"context"

	"github.com/seclens/vulnprio/internal/core/domain"
)

// BulkResult is one entry of a bulk enrichment response. Exactly one of
// Result or Err is set; a failed identifier never aborts its siblings.
type BulkResult struct {
	Result *domain.RiskScoreResult `json:"result,omitempty"`
	Err    error                   `json:"-"`
}

// Enricher is the pipeline entry point used by the web layer, scan
// ingestion and the refresh scheduler.
type Enricher interface {
	// EnrichOne enriches and scores a single identifier. Concurrent
	// calls for the same identifier collapse into one in-flight fetch;
	// each caller's result is scored with its own asset context.
	EnrichOne(ctx context.Context, cveID string, actx domain.AssetContext) (domain.RiskScoreResult, error)

	// EnrichBulk fans out per identifier with bounded concurrency and
	// returns partial results keyed by the identifier as supplied.
	EnrichBulk(ctx context.Context, cveIDs []string, actx domain.AssetContext) map[string]BulkResult
}

// ChangeNotifier receives the per-cycle change-set emitted by the
// refresh scheduler. Downstream ticketing/chat integrations subscribe
// through this; the pipeline never calls them directly.
type ChangeNotifier interface {
	NotifyScoreChanges(changes []domain.ScoreChange)
}
