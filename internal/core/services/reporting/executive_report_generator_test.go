package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/vulnprio/internal/core/domain"
)

type stubStore struct {
	vulns []domain.VulnerabilityRecord
}

func (s *stubStore) UpsertVulnerability(ctx context.Context, rec domain.VulnerabilityRecord) error {
	return nil
}
func (s *stubStore) UpsertVulnerabilitiesBatch(ctx context.Context, recs []domain.VulnerabilityRecord) error {
	return nil
}
func (s *stubStore) GetVulnerability(ctx context.Context, cveID string) (*domain.VulnerabilityRecord, error) {
	return nil, nil
}
func (s *stubStore) ListVulnerabilities(ctx context.Context, filter domain.VulnerabilityFilter) ([]domain.VulnerabilityRecord, error) {
	return s.vulns, nil
}
func (s *stubStore) ListCVEIDs(ctx context.Context) ([]string, error) { return nil, nil }
func (s *stubStore) UpdateStatus(ctx context.Context, cveID string, status domain.VulnerabilityStatus, notes string) error {
	return nil
}
func (s *stubStore) Stats(ctx context.Context) (domain.VulnerabilityStats, error) {
	return domain.VulnerabilityStats{}, nil
}
func (s *stubStore) Close() error { return nil }

type stubKEV struct{}

func (s *stubKEV) Fetch(ctx context.Context, cveID string) (*domain.KEVRecord, error) {
	return &domain.KEVRecord{CVEID: cveID}, nil
}
func (s *stubKEV) Sync(ctx context.Context) (int, error) { return 0, nil }
func (s *stubKEV) Stats() domain.KEVCatalogStats {
	return domain.KEVCatalogStats{TotalCVEs: 1300, RansomwareRelated: 200}
}

func vuln(id string, score float64, opts ...func(*domain.VulnerabilityRecord)) domain.VulnerabilityRecord {
	v := domain.VulnerabilityRecord{
		CVEID:     id,
		HasCVSS:   true,
		RiskScore: score,
		Severity:  domain.SeverityForScore(score),
		Status:    domain.StatusOpen,
		FirstSeen: time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(&v)
	}
	return v
}

func TestGenerate_SummarizesPosture(t *testing.T) {
	store := &stubStore{vulns: []domain.VulnerabilityRecord{
		vuln("CVE-2021-0001", 95, func(v *domain.VulnerabilityRecord) { v.InKEV = true; v.KnownRansomware = true }),
		vuln("CVE-2021-0002", 85),
		vuln("CVE-2021-0003", 50),
		vuln("CVE-2021-0004", 30),
		vuln("CVE-2021-0005", 10),
		vuln("CVE-2021-0006", 5),
	}}

	g := NewExecutiveReportGenerator(store, &stubKEV{})
	report, err := g.Generate(context.Background(), domain.DateRange{}, "Acme Corp")
	require.NoError(t, err)

	assert.NotEmpty(t, report.Metadata.ID)
	assert.Equal(t, "Acme Corp", report.Metadata.OrganizationName)
	assert.Equal(t, int64(6), report.Stats.Total)
	assert.Equal(t, int64(2), report.Stats.BySeverity[domain.SeverityCritical])
	assert.Equal(t, int64(1), report.Stats.KEVCount)
	assert.Equal(t, 1300, report.KEVStats.TotalCVEs)

	// Top risks are capped and ordered by score.
	require.Len(t, report.TopRisks, 5)
	assert.Equal(t, "CVE-2021-0001", report.TopRisks[0].CVEID)

	// KEV and ransomware exposure lead the recommendations.
	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "known-exploited")
}

func TestGenerate_PeriodFilter(t *testing.T) {
	old := vuln("CVE-2020-0001", 40)
	old.FirstSeen = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &stubStore{vulns: []domain.VulnerabilityRecord{
		old,
		vuln("CVE-2021-0002", 60),
	}}

	g := NewExecutiveReportGenerator(store, &stubKEV{})
	report, err := g.Generate(context.Background(), domain.DateRange{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}, "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Stats.Total)
	require.Len(t, report.TopRisks, 1)
	assert.Equal(t, "CVE-2021-0002", report.TopRisks[0].CVEID)
}

func TestGenerate_CleanPosture(t *testing.T) {
	g := NewExecutiveReportGenerator(&stubStore{}, &stubKEV{})
	report, err := g.Generate(context.Background(), domain.DateRange{}, "")
	require.NoError(t, err)

	assert.Equal(t, int64(0), report.Stats.Total)
	assert.Empty(t, report.TopRisks)
	require.Len(t, report.Recommendations, 1)
	assert.Contains(t, report.Recommendations[0], "No urgent action")
}
