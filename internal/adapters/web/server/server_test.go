package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdfexport "github.com/seclens/vulnprio/internal/adapters/reporting"
	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/core/ports"
	"github.com/seclens/vulnprio/internal/core/services/reporting"
)

type stubEnricher struct{}

func (s *stubEnricher) EnrichOne(ctx context.Context, cveID string, actx domain.AssetContext) (domain.RiskScoreResult, error) {
	id, err := domain.ParseCVEID(cveID)
	if err != nil {
		return domain.RiskScoreResult{}, err
	}
	return domain.RiskScoreResult{
		CVEID:    id,
		Score:    88.0,
		Severity: domain.SeverityCritical,
		ScoredAt: time.Now(),
	}, nil
}

func (s *stubEnricher) EnrichBulk(ctx context.Context, cveIDs []string, actx domain.AssetContext) map[string]ports.BulkResult {
	out := make(map[string]ports.BulkResult, len(cveIDs))
	for _, id := range cveIDs {
		r, err := s.EnrichOne(ctx, id, actx)
		if err != nil {
			out[id] = ports.BulkResult{Err: err}
		} else {
			out[id] = ports.BulkResult{Result: &r}
		}
	}
	return out
}

type stubStore struct {
	recs map[string]*domain.VulnerabilityRecord
}

func (s *stubStore) UpsertVulnerability(ctx context.Context, rec domain.VulnerabilityRecord) error {
	return nil
}
func (s *stubStore) UpsertVulnerabilitiesBatch(ctx context.Context, recs []domain.VulnerabilityRecord) error {
	return nil
}
func (s *stubStore) GetVulnerability(ctx context.Context, cveID string) (*domain.VulnerabilityRecord, error) {
	return s.recs[cveID], nil
}
func (s *stubStore) ListVulnerabilities(ctx context.Context, filter domain.VulnerabilityFilter) ([]domain.VulnerabilityRecord, error) {
	var out []domain.VulnerabilityRecord
	for _, r := range s.recs {
		out = append(out, *r)
	}
	return out, nil
}
func (s *stubStore) ListCVEIDs(ctx context.Context) ([]string, error) { return nil, nil }
func (s *stubStore) UpdateStatus(ctx context.Context, cveID string, status domain.VulnerabilityStatus, notes string) error {
	if _, ok := s.recs[cveID]; !ok {
		return domain.ErrNotFound
	}
	s.recs[cveID].Status = status
	s.recs[cveID].Notes = notes
	return nil
}
func (s *stubStore) Stats(ctx context.Context) (domain.VulnerabilityStats, error) {
	return domain.VulnerabilityStats{Total: int64(len(s.recs))}, nil
}
func (s *stubStore) Close() error { return nil }

type stubKEV struct{ synced int }

func (s *stubKEV) Fetch(ctx context.Context, cveID string) (*domain.KEVRecord, error) {
	return &domain.KEVRecord{CVEID: cveID}, nil
}
func (s *stubKEV) Sync(ctx context.Context) (int, error) {
	s.synced++
	return 42, nil
}
func (s *stubKEV) Stats() domain.KEVCatalogStats {
	return domain.KEVCatalogStats{TotalCVEs: 42}
}

func newTestServer(store *stubStore) http.Handler {
	kev := &stubKEV{}
	generator := reporting.NewExecutiveReportGenerator(store, kev)
	s := NewServer(":0", &stubEnricher{}, store, kev, generator, pdfexport.NewPDFExporter(), func() bool { return true })
	return SetupRoutes(s)
}

func storeWith(recs ...domain.VulnerabilityRecord) *stubStore {
	s := &stubStore{recs: make(map[string]*domain.VulnerabilityRecord)}
	for i := range recs {
		s.recs[recs[i].CVEID] = &recs[i]
	}
	return s
}

func TestEnrichEndpoint(t *testing.T) {
	handler := newTestServer(storeWith())

	body, _ := json.Marshal(map[string]interface{}{"cve_id": "CVE-2021-44228"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/enrich", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.RiskScoreResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "CVE-2021-44228", result.CVEID)
	assert.Equal(t, 88.0, result.Score)
}

func TestEnrichEndpoint_InvalidIdentifier(t *testing.T) {
	handler := newTestServer(storeWith())

	body, _ := json.Marshal(map[string]interface{}{"cve_id": "not-a-cve"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/enrich", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnrichBulkEndpoint_PartialFailure(t *testing.T) {
	handler := newTestServer(storeWith())

	body, _ := json.Marshal(map[string]interface{}{
		"cve_ids": []string{"CVE-2021-44228", "garbage"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/enrich/bulk", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results map[string]struct {
			Result *domain.RiskScoreResult `json:"result"`
			Error  string                  `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.NotNil(t, resp.Results["CVE-2021-44228"].Result)
	assert.NotEmpty(t, resp.Results["garbage"].Error)
}

func TestVulnerabilityEndpoints(t *testing.T) {
	store := storeWith(domain.VulnerabilityRecord{
		CVEID:     "CVE-2021-44228",
		RiskScore: 95,
		Severity:  domain.SeverityCritical,
		Status:    domain.StatusOpen,
	})
	handler := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vulnerabilities", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CVE-2021-44228")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/vulnerabilities/CVE-2021-44228", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/vulnerabilities/CVE-2099-99999", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/vulnerabilities/stats", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestUpdateStatusEndpoint(t *testing.T) {
	store := storeWith(domain.VulnerabilityRecord{
		CVEID:  "CVE-2021-44228",
		Status: domain.StatusOpen,
	})
	handler := newTestServer(store)

	body, _ := json.Marshal(map[string]string{"status": "in_progress", "notes": "patching"})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/vulnerabilities/CVE-2021-44228/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusInProgress, store.recs["CVE-2021-44228"].Status)

	// Unknown lifecycle states are rejected.
	body, _ = json.Marshal(map[string]string{"status": "bogus"})
	req = httptest.NewRequest(http.MethodPut, "/api/v1/vulnerabilities/CVE-2021-44228/status", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKEVEndpoints(t *testing.T) {
	handler := newTestServer(storeWith())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/kev/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_cves":42`)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/kev/sync", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entries":42`)
}

func TestReportEndpoint_JSON(t *testing.T) {
	store := storeWith(domain.VulnerabilityRecord{
		CVEID:     "CVE-2021-44228",
		RiskScore: 95,
		Severity:  domain.SeverityCritical,
		Status:    domain.StatusOpen,
		InKEV:     true,
	})
	handler := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/executive?format=json&org=Acme", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report domain.ExecutiveSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "Acme", report.Metadata.OrganizationName)
	assert.Equal(t, int64(1), report.Stats.Total)
}

func TestReportEndpoint_PDF(t *testing.T) {
	handler := newTestServer(storeWith())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/executive", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestProbes(t *testing.T) {
	handler := newTestServer(storeWith())

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
