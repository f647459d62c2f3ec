package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/core/ports"
)

const defaultListLimit = 100

// VulnerabilityHandler serves the stored vulnerability projection.
type VulnerabilityHandler struct {
	store ports.VulnerabilityStore
}

// NewVulnerabilityHandler creates a new VulnerabilityHandler.
func NewVulnerabilityHandler(store ports.VulnerabilityStore) *VulnerabilityHandler {
	return &VulnerabilityHandler{store: store}
}

// GetVulnerabilities lists stored vulnerabilities with optional filters.
func (h *VulnerabilityHandler) GetVulnerabilities(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	vulns, err := h.store.ListVulnerabilities(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if vulns == nil {
		vulns = []domain.VulnerabilityRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vulnerabilities": vulns,
		"count":           len(vulns),
	})
}

// GetVulnerabilityStats summarizes the stored set.
func (h *VulnerabilityHandler) GetVulnerabilityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetVulnerability returns a single stored record by identifier.
func (h *VulnerabilityHandler) GetVulnerability(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCVEID(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rec, err := h.store.GetVulnerability(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "vulnerability not found"})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

type statusUpdateRequest struct {
	Status domain.VulnerabilityStatus `json:"status"`
	Notes  string                     `json:"notes,omitempty"`
}

// UpdateStatus moves a vulnerability through its remediation lifecycle.
func (h *VulnerabilityHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCVEID(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if !domain.ValidStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown status: " + string(req.Status)})
		return
	}

	if err := h.store.UpdateStatus(r.Context(), id, req.Status, req.Notes); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"cve_id": id,
		"status": string(req.Status),
	})
}

func parseFilter(r *http.Request) (domain.VulnerabilityFilter, error) {
	q := r.URL.Query()
	filter := domain.VulnerabilityFilter{
		Severity: domain.Severity(q.Get("severity")),
		Status:   domain.VulnerabilityStatus(q.Get("status")),
		SortBy:   q.Get("sort_by"),
		SortDesc: q.Get("sort_desc") != "false",
		Limit:    defaultListLimit,
	}

	if v := q.Get("in_kev"); v != "" {
		inKEV, err := strconv.ParseBool(v)
		if err != nil {
			return filter, err
		}
		filter.InKEV = &inKEV
	}
	if v := q.Get("min_risk_score"); v != "" {
		min, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, err
		}
		filter.MinRiskScore = &min
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		filter.Offset = offset
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		filter.Limit = limit
	}

	return filter, nil
}
