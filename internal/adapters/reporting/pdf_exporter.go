// Package reporting renders executive summaries as PDF documents.
package reporting

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/seclens/vulnprio/internal/core/domain"
)

// PDFExporter exports reports to PDF format.
type PDFExporter struct{}

// NewPDFExporter creates a new PDF exporter instance.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ExportExecutiveSummary generates a PDF from an executive summary.
func (e *PDFExporter) ExportExecutiveSummary(report *domain.ExecutiveSummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, report)
	e.addOverview(pdf, report)
	e.addTopRisks(pdf, report)
	e.addRecommendations(pdf, report)
	e.addFooter(pdf, report)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, report *domain.ExecutiveSummary) {
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 15, report.Metadata.Title, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if report.Metadata.OrganizationName != "" {
		pdf.SetFont("Arial", "", 14)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 8, report.Metadata.OrganizationName, "", 1, "L", false, 0, "")
		pdf.Ln(2)
	}

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	dateStr := fmt.Sprintf("Generated: %s", report.Metadata.GeneratedAt.Format("2006-01-02 15:04"))
	pdf.CellFormat(0, 6, dateStr, "", 1, "L", false, 0, "")

	if !report.Metadata.Period.Start.IsZero() {
		periodStr := fmt.Sprintf("Period: %s to %s",
			report.Metadata.Period.Start.Format("2006-01-02"),
			report.Metadata.Period.End.Format("2006-01-02"))
		pdf.CellFormat(0, 6, periodStr, "", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
}

func (e *PDFExporter) addOverview(pdf *gofpdf.Fpdf, report *domain.ExecutiveSummary) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Vulnerability Overview", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(60, 60, 60)

	rows := []struct {
		label string
		value string
	}{
		{"Total Vulnerabilities", fmt.Sprintf("%d", report.Stats.Total)},
		{"Critical Risk", fmt.Sprintf("%d", report.Stats.BySeverity[domain.SeverityCritical])},
		{"High Risk", fmt.Sprintf("%d", report.Stats.BySeverity[domain.SeverityHigh])},
		{"Known Exploited (KEV)", fmt.Sprintf("%d", report.Stats.KEVCount)},
		{"Average Risk Score", fmt.Sprintf("%.1f", report.Stats.AvgRiskScore)},
		{"KEV Catalog Size", fmt.Sprintf("%d", report.KEVStats.TotalCVEs)},
	}

	for _, row := range rows {
		pdf.CellFormat(80, 7, row.label, "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, row.value, "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 11)
	}

	pdf.Ln(6)
}

func (e *PDFExporter) addTopRisks(pdf *gofpdf.Fpdf, report *domain.ExecutiveSummary) {
	if len(report.TopRisks) == 0 {
		return
	}

	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Top Risks", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	// Table header
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(45, 8, "CVE", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Score", "1", 0, "C", true, 0, "")
	pdf.CellFormat(25, 8, "Severity", "1", 0, "C", true, 0, "")
	pdf.CellFormat(25, 8, "KEV", "1", 0, "C", true, 0, "")
	pdf.CellFormat(70, 8, "Status", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, v := range report.TopRisks {
		r, g, b := severityColor(v.Severity)
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(45, 8, v.CVEID, "1", 0, "L", false, 0, "")
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(25, 8, fmt.Sprintf("%.1f", v.RiskScore), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 8, string(v.Severity), "1", 0, "C", false, 0, "")
		pdf.SetTextColor(60, 60, 60)
		kev := "-"
		if v.InKEV {
			kev = "yes"
		}
		pdf.CellFormat(25, 8, kev, "1", 0, "C", false, 0, "")
		pdf.CellFormat(70, 8, string(v.Status), "1", 1, "L", false, 0, "")
	}

	pdf.Ln(6)
}

func severityColor(s domain.Severity) (r, g, b int) {
	switch s {
	case domain.SeverityCritical:
		return 220, 53, 69
	case domain.SeverityHigh:
		return 255, 149, 0
	case domain.SeverityMedium:
		return 204, 153, 0
	default:
		return 52, 160, 89
	}
}

func (e *PDFExporter) addRecommendations(pdf *gofpdf.Fpdf, report *domain.ExecutiveSummary) {
	if len(report.Recommendations) == 0 {
		return
	}

	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Recommendations", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(60, 60, 60)
	for i, rec := range report.Recommendations {
		pdf.MultiCell(0, 7, fmt.Sprintf("%d. %s", i+1, rec), "", "L", false)
		pdf.Ln(1)
	}
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, report *domain.ExecutiveSummary) {
	pdf.SetY(-20)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(150, 150, 150)
	footer := fmt.Sprintf("Report %s - generated by %s", report.Metadata.ID, report.Metadata.GeneratedBy)
	pdf.CellFormat(0, 6, footer, "", 0, "C", false, 0, "")
}
