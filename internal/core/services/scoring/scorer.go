// Package scoring implements the composite risk score. The formula is a
// fixed interoperability contract shared with other consumers of the
// scored records; do not change it without coordinating downstream.
package scoring

import (
	"math"
	"time"

	"github.com/seclens/vulnprio/internal/core/domain"
)

// KEVMultiplier is applied to the exploit probability of CVEs confirmed
// exploited in the wild.
const KEVMultiplier = 2.0

// MaxScore is the hard cap of the composite score.
const MaxScore = 100.0

// Score computes the composite risk score for one enriched vulnerability
// in one asset context. Pure and deterministic:
//
//	base     = cvss/10                 (0 if no CVSS data)
//	exploit  = epss * (inKev ? 2 : 1)
//	contextF = criticality*0.5 + reachability*0.5
//	score    = min(base * exploit * contextF * 100, 100)
//
// A CVE without CVSS data scores 0 regardless of exploit evidence, even
// when KEV-listed. An unscored vulnerability is never prioritized above
// a scored one; the DetailIncomplete flag lets callers surface these
// instead of silently deprioritizing them.
func Score(e domain.EnrichedVulnerability, actx domain.AssetContext, now time.Time) domain.RiskScoreResult {
	actx = actx.Clamped()

	base := 0.0
	if cvss, ok := e.CVSSBaseScore(); ok {
		base = cvss / 10.0
	}

	kevMult := 1.0
	if e.InKEV() {
		kevMult = KEVMultiplier
	}
	exploit := e.EPSSProbability() * kevMult

	contextF := actx.Criticality*0.5 + actx.Reachability*0.5

	raw := base * exploit * contextF * MaxScore
	score := math.Min(raw, MaxScore)

	return domain.RiskScoreResult{
		CVEID:    e.CVEID,
		Score:    score,
		Severity: domain.SeverityForScore(score),
		Components: domain.ScoreComponents{
			Base:          base,
			Exploit:       exploit,
			KEVMultiplier: kevMult,
			Context:       contextF,
		},
		Degraded:         e.IsDegraded(),
		DetailIncomplete: e.DetailIncomplete,
		ScoredAt:         now,
	}
}
