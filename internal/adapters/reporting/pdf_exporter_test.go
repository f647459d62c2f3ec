package reporting

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/vulnprio/internal/core/domain"
)

func sampleReport() *domain.ExecutiveSummary {
	return &domain.ExecutiveSummary{
		Metadata: domain.ReportMetadata{
			ID:               "test-report-id",
			Title:            "Executive Vulnerability Summary",
			Format:           domain.FormatPDF,
			GeneratedAt:      time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
			GeneratedBy:      "vulnprio",
			OrganizationName: "Acme Corp",
		},
		Stats: domain.VulnerabilityStats{
			Total:        3,
			BySeverity:   map[domain.Severity]int64{domain.SeverityCritical: 1, domain.SeverityLow: 2},
			ByStatus:     map[domain.VulnerabilityStatus]int64{domain.StatusOpen: 3},
			AvgRiskScore: 42.0,
			KEVCount:     1,
		},
		KEVStats: domain.KEVCatalogStats{TotalCVEs: 1300},
		TopRisks: []domain.VulnerabilityRecord{
			{CVEID: "CVE-2021-44228", RiskScore: 100, Severity: domain.SeverityCritical, InKEV: true, Status: domain.StatusOpen},
			{CVEID: "CVE-2021-0002", RiskScore: 12, Severity: domain.SeverityLow, Status: domain.StatusResolved},
		},
		Recommendations: []string{
			"Remediate 1 unresolved known-exploited vulnerability first; it is under active attack.",
		},
	}
}

func TestExportExecutiveSummary(t *testing.T) {
	e := NewPDFExporter()
	data, err := e.ExportExecutiveSummary(sampleReport())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")), "output should be a PDF document")
	assert.Greater(t, len(data), 1000)
}

func TestExportExecutiveSummary_EmptyReport(t *testing.T) {
	e := NewPDFExporter()
	data, err := e.ExportExecutiveSummary(&domain.ExecutiveSummary{
		Metadata: domain.ReportMetadata{Title: "Executive Vulnerability Summary"},
		Stats: domain.VulnerabilityStats{
			BySeverity: map[domain.Severity]int64{},
			ByStatus:   map[domain.VulnerabilityStatus]int64{},
		},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}
