package storage

import (
	"encoding/json"

	"github.com/seclens/vulnprio/internal/core/domain"
)

// toDomain converts a database model to a domain record.
func toDomain(m VulnerabilityModel) domain.VulnerabilityRecord {
	rec := domain.VulnerabilityRecord{
		CVEID:            m.CVEID,
		Description:      m.Description,
		CVSSScore:        m.CVSSScore,
		CVSSVector:       m.CVSSVector,
		HasCVSS:          m.HasCVSS,
		EPSSScore:        m.EPSSScore,
		EPSSPercentile:   m.EPSSPercentile,
		InKEV:            m.InKEV,
		KEVDueDate:       m.KEVDueDate,
		KnownRansomware:  m.KnownRansomware,
		RiskScore:        m.RiskScore,
		Severity:         domain.Severity(m.Severity),
		DetailIncomplete: m.DetailIncomplete,
		Degraded:         m.Degraded,
		Status:           domain.VulnerabilityStatus(m.Status),
		Notes:            m.Notes,
		FirstSeen:        m.FirstSeen,
		LastSeen:         m.LastSeen,
		LastEnrichedAt:   m.LastEnrichedAt,
	}

	if m.Components != "" {
		_ = json.Unmarshal([]byte(m.Components), &rec.Components)
	}

	return rec
}

// toModel converts a domain record to a database model.
func toModel(r domain.VulnerabilityRecord) VulnerabilityModel {
	model := VulnerabilityModel{
		CVEID:            r.CVEID,
		Description:      r.Description,
		CVSSScore:        r.CVSSScore,
		CVSSVector:       r.CVSSVector,
		HasCVSS:          r.HasCVSS,
		EPSSScore:        r.EPSSScore,
		EPSSPercentile:   r.EPSSPercentile,
		InKEV:            r.InKEV,
		KEVDueDate:       r.KEVDueDate,
		KnownRansomware:  r.KnownRansomware,
		RiskScore:        r.RiskScore,
		Severity:         string(r.Severity),
		DetailIncomplete: r.DetailIncomplete,
		Degraded:         r.Degraded,
		Status:           string(r.Status),
		Notes:            r.Notes,
		FirstSeen:        r.FirstSeen,
		LastSeen:         r.LastSeen,
		LastEnrichedAt:   r.LastEnrichedAt,
	}

	if cBytes, err := json.Marshal(r.Components); err == nil {
		model.Components = string(cBytes)
	}

	return model
}
