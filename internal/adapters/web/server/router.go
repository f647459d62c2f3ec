package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seclens/vulnprio/internal/adapters/web/middleware"
)

// SetupRoutes wires the API surface onto a ServeMux.
func SetupRoutes(s *Server) http.Handler {
	mux := http.NewServeMux()

	// Enrichment fans out upstream API calls, so it carries a tighter
	// budget than the read-only endpoints.
	enrichLimiter := middleware.NewRateLimiter(30, 1*time.Minute)
	bulkLimiter := middleware.NewRateLimiter(5, 1*time.Minute)
	limit := middleware.RateLimitMiddleware(enrichLimiter)
	limitBulk := middleware.RateLimitMiddleware(bulkLimiter)

	// Enrichment API
	mux.Handle("POST /api/v1/enrich", limit(http.HandlerFunc(s.EnrichHandler.HandleEnrich)))
	mux.Handle("POST /api/v1/enrich/bulk", limitBulk(http.HandlerFunc(s.EnrichHandler.HandleEnrichBulk)))

	// Vulnerability Management API
	mux.HandleFunc("GET /api/v1/vulnerabilities", s.VulnHandler.GetVulnerabilities)
	mux.HandleFunc("GET /api/v1/vulnerabilities/stats", s.VulnHandler.GetVulnerabilityStats)
	mux.HandleFunc("GET /api/v1/vulnerabilities/{id}", s.VulnHandler.GetVulnerability)
	mux.HandleFunc("PUT /api/v1/vulnerabilities/{id}/status", s.VulnHandler.UpdateStatus)

	// KEV catalog
	mux.HandleFunc("GET /api/v1/kev/stats", s.KEVHandler.HandleStats)
	mux.HandleFunc("POST /api/v1/kev/sync", s.KEVHandler.HandleSync)

	// Reporting
	mux.HandleFunc("GET /api/v1/reports/executive", s.ReportHandler.HandleExecutiveSummary)

	// Live score-change stream
	mux.HandleFunc("/ws", s.WSManager.HandleWebSocket)

	// Probes and metrics
	mux.HandleFunc("GET /health", s.HealthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.HealthHandler.HandleReady)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
