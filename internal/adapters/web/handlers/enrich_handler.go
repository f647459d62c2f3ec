package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/core/ports"
)

// maxBulkIdentifiers caps one bulk request; larger sets should page.
const maxBulkIdentifiers = 500

// EnrichHandler exposes on-demand enrichment.
type EnrichHandler struct {
	enricher ports.Enricher
}

// NewEnrichHandler creates a new EnrichHandler.
func NewEnrichHandler(enricher ports.Enricher) *EnrichHandler {
	return &EnrichHandler{enricher: enricher}
}

type enrichRequest struct {
	CVEID        string               `json:"cve_id"`
	AssetContext *domain.AssetContext `json:"asset_context,omitempty"`
}

type bulkEnrichRequest struct {
	CVEIDs       []string             `json:"cve_ids"`
	AssetContext *domain.AssetContext `json:"asset_context,omitempty"`
}

type bulkEnrichEntry struct {
	Result *domain.RiskScoreResult `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

type bulkEnrichResponse struct {
	Results map[string]bulkEnrichEntry `json:"results"`
}

// HandleEnrich enriches and scores a single identifier.
func (h *EnrichHandler) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.enricher.EnrichOne(r.Context(), req.CVEID, assetContext(req.AssetContext))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleEnrichBulk enriches a batch of identifiers. Per-identifier
// failures are reported inline; the response is always 200 once the
// request itself parses.
func (h *EnrichHandler) HandleEnrichBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkEnrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if len(req.CVEIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cve_ids must not be empty"})
		return
	}
	if len(req.CVEIDs) > maxBulkIdentifiers {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "too many identifiers in one request"})
		return
	}

	results := h.enricher.EnrichBulk(r.Context(), req.CVEIDs, assetContext(req.AssetContext))

	resp := bulkEnrichResponse{Results: make(map[string]bulkEnrichEntry, len(results))}
	for id, br := range results {
		entry := bulkEnrichEntry{Result: br.Result}
		if br.Err != nil {
			entry.Error = br.Err.Error()
		}
		resp.Results[id] = entry
	}

	writeJSON(w, http.StatusOK, resp)
}

func assetContext(actx *domain.AssetContext) domain.AssetContext {
	if actx == nil {
		return domain.DefaultAssetContext()
	}
	return *actx
}
