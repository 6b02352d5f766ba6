package port

import (
	"context"
	"encoding/json"
	"time"

	"github.com/facturia/invoice-pipeline/internal/domain/entity"
)

// JobRepository is the durable work queue for extraction jobs
type JobRepository interface {
	// Enqueue inserts a pending job and returns its opaque identifier
	Enqueue(ctx context.Context, kind entity.DocumentKind, payload []byte, ownerID string) (string, error)

	// ClaimNext atomically moves the oldest pending job to processing and returns it
	// with its payload. Returns (nil, nil) when the queue is empty.
	ClaimNext(ctx context.Context) (*entity.Job, error)

	// MarkCompleted and MarkFailed finish a processing job and release its payload.
	// They report false when the job was not in processing.
	MarkCompleted(ctx context.Context, id string, result json.RawMessage) (bool, error)
	MarkFailed(ctx context.Context, id string, reason string) (bool, error)

	// GetByIDForOwner returns (nil, nil) when the job is absent or owned by someone else
	GetByIDForOwner(ctx context.Context, id, ownerID string) (*entity.Job, error)

	// FailStale fails jobs that have been processing longer than olderThan
	FailStale(ctx context.Context, olderThan time.Duration, reason string) (int64, error)
}

// InvoiceRepository persists canonical invoices with their line items, scoped per owner
type InvoiceRepository interface {
	Add(ctx context.Context, ownerID string, invoice *entity.Invoice) (int64, error)
	GetByIDForOwner(ctx context.Context, id int64, ownerID string) (*entity.Invoice, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*entity.InvoiceSummary, error)
	ListDetailedByOwner(ctx context.Context, ownerID string) ([]*entity.Invoice, error)
	Search(ctx context.Context, ownerID string, filter entity.SearchFilter) ([]*entity.InvoiceSummary, error)
	Delete(ctx context.Context, id int64, ownerID string) (bool, error)
	UpdateNotes(ctx context.Context, id int64, ownerID, notes string) (bool, error)
	MonthlySummary(ctx context.Context, ownerID string, months int) ([]entity.MonthlyTotal, error)
}

// UserRepository stores one trial/subscription record per external identity
type UserRepository interface {
	// GetOrCreate inserts the user on first contact and returns the stored record
	GetOrCreate(ctx context.Context, user *entity.User) (*entity.User, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	// WithTransaction runs fn inside a transaction carried by the context.
	// Nested calls join the outer transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
