package entity

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the pipeline and the HTTP boundary
var (
	ErrValidation          = errors.New("validation error")
	ErrEmptyDocument       = errors.New("empty document")
	ErrMalformedExtraction = errors.New("malformed extraction")
	ErrPersistence         = errors.New("persistence failure")
	ErrNotFoundOrForbidden = errors.New("not found")
	ErrTrialExpired        = errors.New("trial expired")
	ErrUnauthorized        = errors.New("unauthorized")
)

// maxRawInError bounds how much model text is kept in a stored job error
const maxRawInError = 2000

// MalformedExtractionError carries the raw model response for diagnosis
type MalformedExtractionError struct {
	Reason string
	Raw    string
}

// NewMalformedExtraction builds a MalformedExtractionError with Raw truncated
func NewMalformedExtraction(reason, raw string) *MalformedExtractionError {
	if len(raw) > maxRawInError {
		raw = raw[:maxRawInError] + "...(truncated)"
	}
	return &MalformedExtractionError{Reason: reason, Raw: raw}
}

func (e *MalformedExtractionError) Error() string {
	return fmt.Sprintf("%s: %s; raw response: %q", ErrMalformedExtraction, e.Reason, e.Raw)
}

func (e *MalformedExtractionError) Unwrap() error {
	return ErrMalformedExtraction
}
