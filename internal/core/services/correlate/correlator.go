// Package correlate merges per-source fetch outcomes into the single
// authoritative enriched view for one CVE identifier.
package correlate

import (
	"errors"
	"time"

	"github.com/seclens/vulnprio/internal/core/domain"
)

// Outcomes carries the result-or-error of each adapter call. Sources are
// disjoint in what they provide, so the merge needs no conflict
// resolution and is independent of fetch order.
type Outcomes struct {
	Detail     *domain.DetailRecord
	DetailErr  error
	Exploit    *domain.ExploitRecord
	ExploitErr error
	KEV        *domain.KEVRecord
	KEVErr     error
}

// Merge builds the enriched view from the three source outcomes.
//
// A source's ErrNotFound is terminal, not a failure: the exploit feed
// falls back to probability 0, KEV to not-listed, and a detail miss
// marks the record detail-incomplete (scanners may reference CVEs not
// yet published). Transient failures mark the source degraded. Only a
// total outage of all three sources fails the merge; the pipeline never
// fabricates a record out of nothing.
func Merge(cveID string, o Outcomes, now time.Time) (domain.EnrichedVulnerability, error) {
	if domain.IsUnavailable(o.DetailErr) && domain.IsUnavailable(o.ExploitErr) && domain.IsUnavailable(o.KEVErr) {
		return domain.EnrichedVulnerability{}, domain.ErrAllSourcesUnavailable
	}

	e := domain.EnrichedVulnerability{
		CVEID:          cveID,
		LastEnrichedAt: now,
	}

	switch {
	case o.DetailErr == nil && o.Detail != nil:
		e.Detail = o.Detail
	case errors.Is(o.DetailErr, domain.ErrNotFound):
		e.DetailIncomplete = true
	case domain.IsUnavailable(o.DetailErr):
		// Detail data is missing but the catalog never disowned the
		// identifier: degraded only, not detail-incomplete.
		e.Degraded = append(e.Degraded, domain.SourceDetail)
	}

	switch {
	case o.ExploitErr == nil && o.Exploit != nil:
		e.Exploit = o.Exploit
	case errors.Is(o.ExploitErr, domain.ErrNotFound):
		// Not yet scored by the feed: probability defaults to 0.
	case domain.IsUnavailable(o.ExploitErr):
		e.Degraded = append(e.Degraded, domain.SourceExploit)
	}

	switch {
	case o.KEVErr == nil && o.KEV != nil:
		e.KEV = o.KEV
	case errors.Is(o.KEVErr, domain.ErrNotFound):
		// Absent from the catalog: membership defaults to false.
	case domain.IsUnavailable(o.KEVErr):
		e.Degraded = append(e.Degraded, domain.SourceKEV)
	}

	return e, nil
}
