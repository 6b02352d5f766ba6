package port

import (
	"context"
	"time"

	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"github.com/facturia/invoice-pipeline/internal/domain/event"
)

// ModelPart is one element of an ordered extraction request: text or an image
type ModelPart struct {
	Text     string
	MIMEType string
	Data     []byte
}

// IsImage reports whether the part carries image bytes
func (p ModelPart) IsImage() bool {
	return len(p.Data) > 0
}

// TextPart builds a text-only model part
func TextPart(s string) ModelPart {
	return ModelPart{Text: s}
}

// ImagePart builds an image model part
func ImagePart(mimeType string, data []byte) ModelPart {
	return ModelPart{MIMEType: mimeType, Data: data}
}

// ExtractionModel is the external document-understanding model.
// Responses are free-form text expected to contain one JSON object.
type ExtractionModel interface {
	Generate(ctx context.Context, parts []ModelPart) (string, error)
	Name() string
}

// PageContent is what a PDF page yields: its text and a raster of the page
type PageContent struct {
	Number   int
	Text     string
	MIMEType string
	Image    []byte
}

// DocumentRenderer splits a PDF into per-page text and images
type DocumentRenderer interface {
	Pages(data []byte) ([]PageContent, error)
}

// ImageNormalizer converts submitted images into a format the model accepts
type ImageNormalizer interface {
	Normalize(data []byte) (mimeType string, out []byte, err error)
}

// FileStore retains original documents and mints short-lived retrieval URLs
type FileStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*entity.FileRef, error)
	SignedURL(ctx context.Context, ref *entity.FileRef, ttl time.Duration) (string, error)
	// Delete removes the stored object; a missing object is not an error
	Delete(ctx context.Context, ref *entity.FileRef) error
}

// Notifier tells operators about jobs that failed
type Notifier interface {
	NotifyJobFailed(ctx context.Context, job *entity.Job, reason string) error
}

// EventPublisher delivers job lifecycle events to their subscribers.
// PublishAsync returns before the handlers finish.
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event) error
	PublishAsync(ctx context.Context, evt *event.Event)
}

// InvoiceExporter renders invoices into a downloadable spreadsheet
type InvoiceExporter interface {
	Export(invoices []*entity.Invoice) ([]byte, error)
}

// Identity is an authenticated caller
type Identity struct {
	Subject string
	Email   string
}

// IdentityVerifier validates bearer tokens issued by the identity provider
type IdentityVerifier interface {
	Verify(token string) (*Identity, error)
}
