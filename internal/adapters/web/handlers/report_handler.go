package handlers

import (
	"fmt"
	"net/http"
	"time"

	pdfexport "github.com/seclens/vulnprio/internal/adapters/reporting"
	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/core/services/reporting"
)

// ReportHandler generates executive summary reports.
type ReportHandler struct {
	Generator *reporting.ExecutiveReportGenerator
	Exporter  *pdfexport.PDFExporter
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(generator *reporting.ExecutiveReportGenerator, exporter *pdfexport.PDFExporter) *ReportHandler {
	return &ReportHandler{Generator: generator, Exporter: exporter}
}

// HandleExecutiveSummary generates the summary for the requested period.
// format=json returns the report body; format=pdf (default) streams a
// rendered document.
func (h *ReportHandler) HandleExecutiveSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	period, err := parsePeriod(q.Get("start"), q.Get("end"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	report, err := h.Generator.Generate(r.Context(), period, q.Get("org"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if q.Get("format") == "json" {
		report.Metadata.Format = domain.FormatJSON
		writeJSON(w, http.StatusOK, report)
		return
	}

	data, err := h.Exporter.ExportExecutiveSummary(report)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	filename := fmt.Sprintf("vulnprio_executive_%s.pdf", report.Metadata.GeneratedAt.Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(data)
}

func parsePeriod(start, end string) (domain.DateRange, error) {
	var period domain.DateRange
	if start != "" {
		t, err := time.Parse("2006-01-02", start)
		if err != nil {
			return period, fmt.Errorf("invalid start date: %w", err)
		}
		period.Start = t
	}
	if end != "" {
		t, err := time.Parse("2006-01-02", end)
		if err != nil {
			return period, fmt.Errorf("invalid end date: %w", err)
		}
		period.End = t
	}
	return period, nil
}
