package domain

import "time"

// Severity buckets derived from the composite risk score.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severity bucket thresholds on the 0-100 score scale.
const (
	CriticalThreshold = 70.0
	HighThreshold     = 40.0
	MediumThreshold   = 20.0
)

// SeverityForScore maps a composite score to its bucket.
func SeverityForScore(score float64) Severity {
	switch {
	case score >= CriticalThreshold:
		return SeverityCritical
	case score >= HighThreshold:
		return SeverityHigh
	case score >= MediumThreshold:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AssetContext carries caller-supplied scoring context. One CVE may apply
// to many assets with different contexts, so this is never persisted as
// part of the vulnerability record.
type AssetContext struct {
	// Criticality weights the asset's business importance. Nominal range
	// 0.5-1.5 with 1.0 meaning a normal asset.
	Criticality float64 `json:"asset_criticality"`

	// Reachability estimates network exposure in 0.0-1.0.
	Reachability float64 `json:"network_reachability"`
}

// DefaultAssetContext is the neutral context used when the caller
// supplies none (and by the background refresh).
func DefaultAssetContext() AssetContext {
	return AssetContext{Criticality: 1.0, Reachability: 1.0}
}

// Clamped returns the context with both factors forced into their nominal
// ranges. Out-of-range input is not an error.
func (c AssetContext) Clamped() AssetContext {
	return AssetContext{
		Criticality:  clamp(c.Criticality, 0.5, 1.5),
		Reachability: clamp(c.Reachability, 0.0, 1.0),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ScoreComponents are the exact multiplicative inputs of the composite
// score, retained for audit and explainability. The final score is never
// re-derived from stored components.
type ScoreComponents struct {
	Base          float64 `json:"base"`           // cvss/10, 0 if absent
	Exploit       float64 `json:"exploit"`        // epss * kev multiplier
	KEVMultiplier float64 `json:"kev_multiplier"` // 2.0 when listed, else 1.0
	Context       float64 `json:"context"`        // criticality*0.5 + reachability*0.5
}

// RiskScoreResult is the scoring output for one CVE in one asset context.
type RiskScoreResult struct {
	CVEID      string          `json:"cve_id"`
	Score      float64         `json:"risk_score"` // 0..100, hard-capped
	Severity   Severity        `json:"severity"`
	Components ScoreComponents `json:"components"`

	// Degraded mirrors the enriched record's degraded state so callers
	// can tell a confident score from one computed on fallback data.
	Degraded bool `json:"degraded,omitempty"`

	// DetailIncomplete is set when the detail catalog did not know the
	// identifier; such CVEs carry no CVSS and score 0 by policy even
	// when KEV-listed.
	DetailIncomplete bool `json:"detail_incomplete,omitempty"`

	ScoredAt time.Time `json:"scored_at"`
}
