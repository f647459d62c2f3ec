package domain

import (
	"regexp"
	"strings"
)

// Source identifies one of the external intelligence feeds.
type Source string

const (
	SourceDetail  Source = "nvd"  // vulnerability detail catalog (NVD)
	SourceExploit Source = "epss" // exploit probability feed (FIRST EPSS)
	SourceKEV     Source = "kev"  // known exploited vulnerabilities (CISA KEV)
)

// Sources lists all feeds in canonical order.
var Sources = []Source{SourceDetail, SourceExploit, SourceKEV}

// cveIDPattern matches the canonical CVE identifier shape, e.g. "CVE-2021-44228".
// The sequence number is at least four digits with no fixed upper bound.
var cveIDPattern = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// NormalizeCVEID upper-cases and trims an identifier without validating it.
func NormalizeCVEID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// ParseCVEID normalizes and validates a CVE identifier.
// Invalid input is rejected here, before any network access happens.
func ParseCVEID(id string) (string, error) {
	normalized := NormalizeCVEID(id)
	if !cveIDPattern.MatchString(normalized) {
		return "", &InvalidIdentifierError{Input: id}
	}
	return normalized, nil
}

// IsValidCVEID reports whether id is a well-formed CVE identifier.
func IsValidCVEID(id string) bool {
	_, err := ParseCVEID(id)
	return err == nil
}
