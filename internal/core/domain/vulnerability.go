package domain

import "time"

// VulnerabilityStatus tracks the remediation lifecycle of a stored
// vulnerability.
type VulnerabilityStatus string

const (
	StatusOpen         VulnerabilityStatus = "open"
	StatusAcknowledged VulnerabilityStatus = "acknowledged"
	StatusInProgress   VulnerabilityStatus = "in_progress"
	StatusResolved     VulnerabilityStatus = "resolved"
	StatusAcceptedRisk VulnerabilityStatus = "accepted_risk"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s VulnerabilityStatus) bool {
	switch s {
	case StatusOpen, StatusAcknowledged, StatusInProgress, StatusResolved, StatusAcceptedRisk:
		return true
	}
	return false
}

// VulnerabilityRecord is the persisted projection of an enriched
// vulnerability plus its latest risk score. The storage layer owns
// historical retention; this is only the current state.
type VulnerabilityRecord struct {
	CVEID            string              `json:"cve_id"`
	Description      string              `json:"description,omitempty"`
	CVSSScore        float64             `json:"cvss_v3_score"`
	CVSSVector       string              `json:"cvss_v3_vector,omitempty"`
	HasCVSS          bool                `json:"has_cvss"`
	EPSSScore        float64             `json:"epss_score"`
	EPSSPercentile   float64             `json:"epss_percentile"`
	InKEV            bool                `json:"in_kev"`
	KEVDueDate       string              `json:"kev_due_date,omitempty"`
	KnownRansomware  bool                `json:"known_ransomware_use"`
	RiskScore        float64             `json:"risk_score"`
	Severity         Severity            `json:"severity"`
	Components       ScoreComponents     `json:"components"`
	DetailIncomplete bool                `json:"detail_incomplete,omitempty"`
	Degraded         bool                `json:"degraded,omitempty"`
	Status           VulnerabilityStatus `json:"status"`
	Notes            string              `json:"notes,omitempty"`
	FirstSeen        time.Time           `json:"first_seen"`
	LastSeen         time.Time           `json:"last_seen"`
	LastEnrichedAt   time.Time           `json:"last_enriched_at"`
}

// NewVulnerabilityRecord projects an enrichment result into a record.
func NewVulnerabilityRecord(e EnrichedVulnerability, r RiskScoreResult, now time.Time) VulnerabilityRecord {
	rec := VulnerabilityRecord{
		CVEID:            e.CVEID,
		EPSSScore:        e.EPSSProbability(),
		InKEV:            e.InKEV(),
		RiskScore:        r.Score,
		Severity:         r.Severity,
		Components:       r.Components,
		DetailIncomplete: e.DetailIncomplete,
		Degraded:         e.IsDegraded(),
		Status:           StatusOpen,
		FirstSeen:        now,
		LastSeen:         now,
		LastEnrichedAt:   e.LastEnrichedAt,
	}
	if e.Detail != nil {
		rec.Description = e.Detail.Description
		rec.CVSSScore = e.Detail.CVSSScore
		rec.CVSSVector = e.Detail.CVSSVector
		rec.HasCVSS = e.Detail.HasCVSS
	}
	if e.Exploit != nil {
		rec.EPSSPercentile = e.Exploit.Percentile
	}
	if e.KEV != nil && e.KEV.Listed {
		rec.KEVDueDate = e.KEV.DueDate
		rec.KnownRansomware = e.KEV.KnownRansomware
	}
	return rec
}

// VulnerabilityFilter narrows and orders vulnerability listings.
type VulnerabilityFilter struct {
	Severity     Severity
	Status       VulnerabilityStatus
	InKEV        *bool
	MinRiskScore *float64
	SortBy       string // risk_score | cvss_v3_score | epss_score | first_seen
	SortDesc     bool
	Offset       int
	Limit        int
}

// VulnerabilityStats summarizes the stored vulnerability set.
type VulnerabilityStats struct {
	Total        int64                         `json:"total"`
	BySeverity   map[Severity]int64            `json:"by_severity"`
	ByStatus     map[VulnerabilityStatus]int64 `json:"by_status"`
	AvgRiskScore float64                       `json:"avg_risk_score"`
	KEVCount     int64                         `json:"kev_count"`
}

// ScoreChange records one above-threshold score movement observed by the
// refresh scheduler. Change-sets feed downstream notification
// collaborators; this core never calls those integrations directly.
type ScoreChange struct {
	CVEID       string    `json:"cve_id"`
	OldScore    float64   `json:"old_score"`
	NewScore    float64   `json:"new_score"`
	OldSeverity Severity  `json:"old_severity"`
	NewSeverity Severity  `json:"new_severity"`
	ChangedAt   time.Time `json:"changed_at"`
}

// KEVCatalogStats describes the synced known-exploited catalog.
type KEVCatalogStats struct {
	TotalCVEs         int       `json:"total_cves"`
	RansomwareRelated int       `json:"ransomware_related"`
	LastUpdated       time.Time `json:"last_updated,omitzero"`
}
