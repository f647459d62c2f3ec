// Package server assembles the HTTP surface of the enrichment service.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	pdfexport "github.com/seclens/vulnprio/internal/adapters/reporting"
	"github.com/seclens/vulnprio/internal/adapters/web/handlers"
	"github.com/seclens/vulnprio/internal/adapters/web/websocket"
	"github.com/seclens/vulnprio/internal/core/ports"
	"github.com/seclens/vulnprio/internal/core/services/reporting"
)

// Server handles HTTP and WebSocket connections.
type Server struct {
	Addr      string
	WSManager *websocket.WSManager

	EnrichHandler *handlers.EnrichHandler
	VulnHandler   *handlers.VulnerabilityHandler
	KEVHandler    *handlers.KEVHandler
	ReportHandler *handlers.ReportHandler
	HealthHandler *handlers.HealthHandler

	srv *http.Server
}

// NewServer creates a new web server over the pipeline's entry points.
func NewServer(
	addr string,
	enricher ports.Enricher,
	store ports.VulnerabilityStore,
	kev ports.KEVSource,
	generator *reporting.ExecutiveReportGenerator,
	exporter *pdfexport.PDFExporter,
	ready func() bool,
) *Server {
	return &Server{
		Addr:          addr,
		WSManager:     websocket.NewWSManager(),
		EnrichHandler: handlers.NewEnrichHandler(enricher),
		VulnHandler:   handlers.NewVulnerabilityHandler(store),
		KEVHandler:    handlers.NewKEVHandler(kev),
		ReportHandler: handlers.NewReportHandler(generator, exporter),
		HealthHandler: handlers.NewHealthHandler(ready),
	}
}

// Run starts the server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	handler := SetupRoutes(s)
	instrumentedHandler := otelhttp.NewHandler(handler, "vulnprio-server")

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           instrumentedHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("web server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("web server shutdown error", "error", err)
		}
	}()

	slog.Info("web server listening", "addr", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
