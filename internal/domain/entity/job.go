package entity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DocumentKind tags the payload of a job and selects the extraction path once
type DocumentKind string

const (
	DocumentImage DocumentKind = "image"
	DocumentPDF   DocumentKind = "pdf"
)

// ParseDocumentKind accepts "image" or "pdf" (case-insensitive)
func ParseDocumentKind(s string) (DocumentKind, error) {
	switch DocumentKind(strings.ToLower(strings.TrimSpace(s))) {
	case DocumentImage:
		return DocumentImage, nil
	case DocumentPDF:
		return DocumentPDF, nil
	default:
		return "", fmt.Errorf("%w: unknown document kind %q", ErrValidation, s)
	}
}

// Job status constants
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is one queued unit of document-extraction work.
// Payload is only populated by ClaimNext; status reads never carry the bytes.
type Job struct {
	ID         string          `json:"id"`
	Kind       DocumentKind    `json:"kind"`
	Status     string          `json:"status"`
	OwnerID    string          `json:"-"`
	Payload    []byte          `json:"-"`
	HasPayload bool            `json:"-"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}
