package handlers

import (
	"net/http"

	"github.com/seclens/vulnprio/internal/core/ports"
)

// KEVHandler exposes the known-exploited catalog snapshot.
type KEVHandler struct {
	kev ports.KEVSource
}

// NewKEVHandler creates a new KEVHandler.
func NewKEVHandler(kev ports.KEVSource) *KEVHandler {
	return &KEVHandler{kev: kev}
}

// HandleStats returns catalog snapshot statistics.
func (h *KEVHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.kev.Stats())
}

// HandleSync triggers an off-schedule catalog refresh.
func (h *KEVHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	count, err := h.kev.Sync(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"entries": count})
}
