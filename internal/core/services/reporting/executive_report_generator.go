// Package reporting builds management-level summaries of the stored
// vulnerability posture.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/core/ports"
)

const topRiskCount = 5

// ExecutiveReportGenerator generates executive summary reports.
type ExecutiveReportGenerator struct {
	store ports.VulnerabilityStore
	kev   ports.KEVSource
	now   func() time.Time
}

// NewExecutiveReportGenerator creates a new executive report generator.
func NewExecutiveReportGenerator(store ports.VulnerabilityStore, kev ports.KEVSource) *ExecutiveReportGenerator {
	return &ExecutiveReportGenerator{
		store: store,
		kev:   kev,
		now:   time.Now,
	}
}

// Generate creates an executive summary for the specified period.
func (g *ExecutiveReportGenerator) Generate(ctx context.Context, period domain.DateRange, orgName string) (*domain.ExecutiveSummary, error) {
	vulns, err := g.store.ListVulnerabilities(ctx, domain.VulnerabilityFilter{
		SortBy:   "risk_score",
		SortDesc: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vulnerabilities: %w", err)
	}

	vulns = filterByPeriod(vulns, period)
	stats := calculateStats(vulns)

	topRisks := vulns
	if len(topRisks) > topRiskCount {
		topRisks = topRisks[:topRiskCount]
	}

	return &domain.ExecutiveSummary{
		Metadata: domain.ReportMetadata{
			ID:               uuid.New().String(),
			Title:            "Executive Vulnerability Summary",
			Format:           domain.FormatPDF,
			GeneratedAt:      g.now(),
			GeneratedBy:      "vulnprio",
			Period:           period,
			OrganizationName: orgName,
		},
		Stats:           stats,
		KEVStats:        g.kev.Stats(),
		TopRisks:        topRisks,
		Recommendations: buildRecommendations(vulns),
	}, nil
}

// calculateStats aggregates over the filtered set rather than querying
// storage, so period bounds apply consistently to every figure.
func calculateStats(vulns []domain.VulnerabilityRecord) domain.VulnerabilityStats {
	stats := domain.VulnerabilityStats{
		Total:      int64(len(vulns)),
		BySeverity: make(map[domain.Severity]int64),
		ByStatus:   make(map[domain.VulnerabilityStatus]int64),
	}

	var sum float64
	for _, v := range vulns {
		stats.BySeverity[v.Severity]++
		stats.ByStatus[v.Status]++
		sum += v.RiskScore
		if v.InKEV {
			stats.KEVCount++
		}
	}
	if len(vulns) > 0 {
		stats.AvgRiskScore = sum / float64(len(vulns))
	}
	return stats
}

// buildRecommendations derives prioritized guidance from the posture.
func buildRecommendations(vulns []domain.VulnerabilityRecord) []string {
	var (
		kevOpen    int
		critical   int
		ransomware int
		unscored   int
	)
	for _, v := range vulns {
		if v.InKEV && v.Status != domain.StatusResolved {
			kevOpen++
		}
		if v.Severity == domain.SeverityCritical {
			critical++
		}
		if v.KnownRansomware {
			ransomware++
		}
		if !v.HasCVSS {
			unscored++
		}
	}

	var recs []string
	if kevOpen > 0 {
		recs = append(recs, fmt.Sprintf("Remediate %d unresolved known-exploited vulnerabilities first; these are under active attack.", kevOpen))
	}
	if ransomware > 0 {
		recs = append(recs, fmt.Sprintf("%d vulnerabilities are linked to ransomware campaigns; verify backup and segmentation controls.", ransomware))
	}
	if critical > 0 {
		recs = append(recs, fmt.Sprintf("Schedule patching for %d critical-risk vulnerabilities within the current cycle.", critical))
	}
	if unscored > 0 {
		recs = append(recs, fmt.Sprintf("%d vulnerabilities have no CVSS data yet; re-check after the next catalog refresh.", unscored))
	}
	if len(recs) == 0 {
		recs = append(recs, "No urgent action required; maintain the current patch cadence.")
	}
	return recs
}

// filterByPeriod keeps vulnerabilities first seen within the range.
func filterByPeriod(vulns []domain.VulnerabilityRecord, period domain.DateRange) []domain.VulnerabilityRecord {
	if period.Start.IsZero() && period.End.IsZero() {
		return vulns
	}

	var filtered []domain.VulnerabilityRecord
	for _, v := range vulns {
		if !period.Start.IsZero() && v.FirstSeen.Before(period.Start) {
			continue
		}
		if !period.End.IsZero() && v.FirstSeen.After(period.End) {
			continue
		}
		filtered = append(filtered, v)
	}
	return filtered
}
