package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/application/reconciler"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"go.uber.org/zap"
)

// SummaryMonths is how many months the monthly summary covers
const SummaryMonths = 6

// SearchQuery is a search request as the caller typed it
type SearchQuery struct {
	Text     string
	DateFrom string
	DateTo   string
}

// InvoiceService exposes owner-scoped invoice reads and writes
type InvoiceService interface {
	AddManual(ctx context.Context, ownerID string, raw map[string]interface{}) (int64, error)
	Get(ctx context.Context, id int64, ownerID string) (*entity.Invoice, error)
	List(ctx context.Context, ownerID string) ([]*entity.InvoiceSummary, error)
	Search(ctx context.Context, ownerID string, q SearchQuery) ([]*entity.InvoiceSummary, error)
	Delete(ctx context.Context, id int64, ownerID string) error
	UpdateNotes(ctx context.Context, id int64, ownerID, notes string) error
	MonthlySummary(ctx context.Context, ownerID string) ([]entity.MonthlyTotal, error)
	FileURL(ctx context.Context, id int64, ownerID string) (string, error)
	Export(ctx context.Context, ownerID string) ([]byte, error)
}

type invoiceServiceImpl struct {
	invoices   port.InvoiceRepository
	reconciler *reconciler.Reconciler
	files      port.FileStore
	exporter   port.InvoiceExporter
	urlTTL     time.Duration
	logger     *zap.Logger
}

// NewInvoiceService creates a new InvoiceService. files may be nil when no store is configured.
func NewInvoiceService(
	invoices port.InvoiceRepository,
	rec *reconciler.Reconciler,
	files port.FileStore,
	exporter port.InvoiceExporter,
	urlTTL time.Duration,
	logger *zap.Logger,
) InvoiceService {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &invoiceServiceImpl{
		invoices:   invoices,
		reconciler: rec,
		files:      files,
		exporter:   exporter,
		urlTTL:     urlTTL,
		logger:     logger,
	}
}

// AddManual stores a hand-entered invoice through the same reconciliation as extracted ones
func (s *invoiceServiceImpl) AddManual(ctx context.Context, ownerID string, raw map[string]interface{}) (int64, error) {
	if raw == nil || strings.TrimSpace(reconciler.CoerceString(raw[reconciler.FieldIssuer])) == "" {
		return 0, fmt.Errorf("%w: issuer (emisor) is required", entity.ErrValidation)
	}

	invoice := s.reconciler.Reconcile(raw, entity.ExtractionMethodManual)
	id, err := s.invoices.Add(ctx, ownerID, invoice)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Manual invoice added", zap.Int64("invoice_id", id), zap.String("owner_id", ownerID))
	return id, nil
}

func (s *invoiceServiceImpl) Get(ctx context.Context, id int64, ownerID string) (*entity.Invoice, error) {
	invoice, err := s.invoices.GetByIDForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, entity.ErrNotFoundOrForbidden
	}
	return invoice, nil
}

func (s *invoiceServiceImpl) List(ctx context.Context, ownerID string) ([]*entity.InvoiceSummary, error) {
	return s.invoices.ListByOwner(ctx, ownerID)
}

// Search accepts dates as DD/MM/YYYY or YYYY-MM-DD
func (s *invoiceServiceImpl) Search(ctx context.Context, ownerID string, q SearchQuery) ([]*entity.InvoiceSummary, error) {
	filter := entity.SearchFilter{Text: strings.TrimSpace(q.Text)}

	var err error
	if filter.DateFrom, err = searchDate("date_from", q.DateFrom); err != nil {
		return nil, err
	}
	if filter.DateTo, err = searchDate("date_to", q.DateTo); err != nil {
		return nil, err
	}
	if filter.DateFrom != "" && filter.DateTo != "" && filter.DateFrom > filter.DateTo {
		return nil, fmt.Errorf("%w: date_from is after date_to", entity.ErrValidation)
	}

	return s.invoices.Search(ctx, ownerID, filter)
}

func searchDate(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	normalized := reconciler.NormalizeDate(value)
	if normalized == "" {
		return "", fmt.Errorf("%w: %s %q is not a valid date", entity.ErrValidation, field, value)
	}
	return normalized, nil
}

func (s *invoiceServiceImpl) Delete(ctx context.Context, id int64, ownerID string) error {
	removed, err := s.invoices.Delete(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if !removed {
		return entity.ErrNotFoundOrForbidden
	}
	s.logger.Info("Invoice deleted", zap.Int64("invoice_id", id), zap.String("owner_id", ownerID))
	return nil
}

func (s *invoiceServiceImpl) UpdateNotes(ctx context.Context, id int64, ownerID, notes string) error {
	updated, err := s.invoices.UpdateNotes(ctx, id, ownerID, notes)
	if err != nil {
		return err
	}
	if !updated {
		return entity.ErrNotFoundOrForbidden
	}
	return nil
}

func (s *invoiceServiceImpl) MonthlySummary(ctx context.Context, ownerID string) ([]entity.MonthlyTotal, error) {
	return s.invoices.MonthlySummary(ctx, ownerID, SummaryMonths)
}

// FileURL mints a short-lived URL for the invoice's original document
func (s *invoiceServiceImpl) FileURL(ctx context.Context, id int64, ownerID string) (string, error) {
	invoice, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return "", err
	}
	if invoice.File == nil || s.files == nil {
		return "", entity.ErrNotFoundOrForbidden
	}

	url, err := s.files.SignedURL(ctx, invoice.File, s.urlTTL)
	if err != nil {
		s.logger.Error("Failed to sign file URL", zap.Int64("invoice_id", id), zap.Error(err))
		return "", fmt.Errorf("failed to sign file URL: %w", err)
	}
	return url, nil
}

// Export renders all of the owner's invoices as a spreadsheet
func (s *invoiceServiceImpl) Export(ctx context.Context, ownerID string) ([]byte, error) {
	invoices, err := s.invoices.ListDetailedByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(invoices)
}
