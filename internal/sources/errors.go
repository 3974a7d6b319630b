package sources

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindRateLimited     ErrorKind = "rate_limited"
	KindUnavailable     ErrorKind = "unavailable"
	KindMalformed       ErrorKind = "malformed"
)

// SourceError classifies a provider failure into the small taxonomy the
// orchestrator records in source statuses.
type SourceError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("source %s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func NewSourceError(source string, kind ErrorKind, err error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Err: err}
}

func IsKind(err error, kind ErrorKind) bool {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
