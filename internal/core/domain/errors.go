package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that an identifier is legitimately absent from a
// source. It is a valid terminal outcome per source, not a failure.
var ErrNotFound = errors.New("not found")

// ErrAllSourcesUnavailable is returned when every adapter reported a
// transient failure for the same identifier. It is the only condition
// under which a single enrichment fails outright.
var ErrAllSourcesUnavailable = errors.New("all intelligence sources unavailable")

// InvalidIdentifierError reports a malformed CVE identifier.
// It is raised before any I/O and is never retried.
type InvalidIdentifierError struct {
	Input string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid CVE identifier: %q", e.Input)
}

// SourceUnavailableError reports a transient failure of one source
// (network error, HTTP 5xx, rate limiting). Adapters retry with backoff
// before surfacing it; the correlator converts it into a degraded-data
// flag unless all sources fail together.
type SourceUnavailableError struct {
	Source Source
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is a transient source failure.
func IsUnavailable(err error) bool {
	var se *SourceUnavailableError
	return errors.As(err, &se)
}
