package handlers

import (
	"net/http"
)

// HealthHandler answers liveness and readiness probes.
type HealthHandler struct {
	ready func() bool
}

// NewHealthHandler creates a HealthHandler. ready reports whether the
// pipeline can serve enrichments (storage open, KEV snapshot loaded).
func NewHealthHandler(ready func() bool) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// HandleHealth is the liveness probe.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady is the readiness probe.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil && !h.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
