package domain

import "time"

// ReportFormat selects the export encoding.
type ReportFormat string

const (
	FormatJSON ReportFormat = "json"
	FormatPDF  ReportFormat = "pdf"
)

// DateRange bounds a report period. Zero bounds mean unbounded.
type DateRange struct {
	Start time.Time `json:"start,omitzero"`
	End   time.Time `json:"end,omitzero"`
}

// ReportMetadata identifies a generated report.
type ReportMetadata struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Format           ReportFormat `json:"format"`
	GeneratedAt      time.Time    `json:"generated_at"`
	GeneratedBy      string       `json:"generated_by"`
	Period           DateRange    `json:"period"`
	OrganizationName string       `json:"organization_name,omitempty"`
}

// ExecutiveSummary is the management-level view of the vulnerability
// posture: aggregate statistics, the highest risks, and what to do about
// them.
type ExecutiveSummary struct {
	Metadata        ReportMetadata        `json:"metadata"`
	Stats           VulnerabilityStats    `json:"stats"`
	KEVStats        KEVCatalogStats       `json:"kev_stats"`
	TopRisks        []VulnerabilityRecord `json:"top_risks"`
	Recommendations []string              `json:"recommendations"`
}
