package domain

import "time"

// DetailRecord is the normalized payload from the vulnerability detail
// catalog (NVD). CVSS data may be absent for CVEs that are reserved or
// awaiting analysis; HasCVSS distinguishes "score is 0" from "no score".
type DetailRecord struct {
	CVEID         string    `json:"cve_id"`
	Description   string    `json:"description"`
	CVSSScore     float64   `json:"cvss_v3_score"`
	CVSSVector    string    `json:"cvss_v3_vector,omitempty"`
	HasCVSS       bool      `json:"has_cvss"`
	CWEIDs        []string  `json:"cwe_ids,omitempty"`
	References    []string  `json:"references,omitempty"`
	PublishedDate time.Time `json:"published_date,omitzero"`
	LastModified  time.Time `json:"last_modified,omitzero"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// ExploitRecord is the normalized payload from the exploit probability
// feed (EPSS). Probability is in [0,1]; percentile is the rank of this
// CVE among all scored CVEs.
type ExploitRecord struct {
	CVEID       string    `json:"cve_id"`
	Probability float64   `json:"epss_score"`
	Percentile  float64   `json:"epss_percentile"`
	ScoreDate   string    `json:"score_date,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// KEVRecord is the normalized payload from the known-exploited catalog.
// Listed is the membership flag; the remaining fields are catalog
// metadata present only for listed CVEs.
type KEVRecord struct {
	CVEID             string    `json:"cve_id"`
	Listed            bool      `json:"listed"`
	VendorProject     string    `json:"vendor_project,omitempty"`
	Product           string    `json:"product,omitempty"`
	VulnerabilityName string    `json:"vulnerability_name,omitempty"`
	DateAdded         string    `json:"date_added,omitempty"`
	DueDate           string    `json:"due_date,omitempty"`
	RequiredAction    string    `json:"required_action,omitempty"`
	KnownRansomware   bool      `json:"known_ransomware_use"`
	FetchedAt         time.Time `json:"fetched_at"`
}

// EnrichedVulnerability is the merged per-CVE view across all sources.
// A field is present only if its source had data; missing exploit or KEV
// data falls back to probability 0 / not listed so that a score can
// always be computed from partial data.
type EnrichedVulnerability struct {
	CVEID   string         `json:"cve_id"`
	Detail  *DetailRecord  `json:"detail,omitempty"`
	Exploit *ExploitRecord `json:"exploit,omitempty"`
	KEV     *KEVRecord     `json:"kev,omitempty"`

	// DetailIncomplete is set when the detail catalog does not know the
	// identifier. Scanners sometimes reference CVEs before publication.
	DetailIncomplete bool `json:"detail_incomplete,omitempty"`

	// Degraded lists sources that were unavailable during enrichment and
	// whose data was substituted by a fallback or a stale cache entry.
	Degraded []Source `json:"degraded_sources,omitempty"`

	LastEnrichedAt time.Time `json:"last_enriched_at"`
}

// CVSSBaseScore returns the CVSS base score and whether one is present.
func (e *EnrichedVulnerability) CVSSBaseScore() (float64, bool) {
	if e.Detail == nil || !e.Detail.HasCVSS {
		return 0, false
	}
	return e.Detail.CVSSScore, true
}

// EPSSProbability returns the exploit probability, 0 when unscored.
func (e *EnrichedVulnerability) EPSSProbability() float64 {
	if e.Exploit == nil {
		return 0
	}
	return e.Exploit.Probability
}

// InKEV reports whether the CVE is on the known-exploited list.
func (e *EnrichedVulnerability) InKEV() bool {
	return e.KEV != nil && e.KEV.Listed
}

// IsDegraded reports whether any source fell back during enrichment.
func (e *EnrichedVulnerability) IsDegraded() bool {
	return len(e.Degraded) > 0
}

// SourceTTLs holds the freshness window per source.
type SourceTTLs struct {
	Detail  time.Duration
	Exploit time.Duration
	KEV     time.Duration
}

// DefaultSourceTTLs match the upstream update cadences: detail records
// are near-immutable once published, EPSS and KEV refresh daily.
func DefaultSourceTTLs() SourceTTLs {
	return SourceTTLs{
		Detail:  7 * 24 * time.Hour,
		Exploit: 24 * time.Hour,
		KEV:     24 * time.Hour,
	}
}

// TTL returns the freshness window for one source.
func (t SourceTTLs) TTL(s Source) time.Duration {
	switch s {
	case SourceDetail:
		return t.Detail
	case SourceExploit:
		return t.Exploit
	default:
		return t.KEV
	}
}

// CacheEntry is the cached enrichment state for one identifier, with the
// per-source fetch timestamps used for staleness decisions.
type CacheEntry struct {
	Enriched  EnrichedVulnerability
	FetchedAt map[Source]time.Time
	UpdatedAt time.Time
}

// StaleSources returns the sources whose cached data has exceeded its
// TTL at the given instant. Sources never fetched count as stale.
func (c *CacheEntry) StaleSources(now time.Time, ttls SourceTTLs) []Source {
	var stale []Source
	for _, s := range Sources {
		fetched, ok := c.FetchedAt[s]
		if !ok || now.Sub(fetched) > ttls.TTL(s) {
			stale = append(stale, s)
		}
	}
	return stale
}

// Fresh reports whether every source is within its freshness window.
func (c *CacheEntry) Fresh(now time.Time, ttls SourceTTLs) bool {
	return len(c.StaleSources(now, ttls)) == 0
}
