package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

const invoiceColumns = `
	i.id, i.owner_id, i.issuer, i.tax_id, i.issue_date_text, i.issue_date,
	i.total, i.base_amount, i.currency, i.taxes_json, i.extraction_method,
	i.payment_status, i.notes, i.file_locator, i.file_resource, i.file_format, i.created_at`

const summaryColumns = `
	i.id, i.issuer, i.issue_date_text, i.issue_date, i.total, i.currency,
	i.payment_status, i.file_locator IS NOT NULL`

// Undated invoices sort after dated ones
const invoiceOrder = ` ORDER BY i.issue_date IS NULL, i.issue_date DESC, i.id DESC`

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sqldb.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Add writes the invoice row and all of its line items in one transaction.
// Any failure rolls the whole write back.
func (r *InvoiceRepository) Add(ctx context.Context, ownerID string, invoice *entity.Invoice) (int64, error) {
	taxes := invoice.Taxes
	if taxes == nil {
		taxes = map[string]float64{}
	}
	taxesJSON, err := json.Marshal(taxes)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to encode taxes: %v", entity.ErrPersistence, err)
	}

	var locator, resource, format sql.NullString
	if invoice.File != nil {
		locator = sql.NullString{String: invoice.File.Locator, Valid: true}
		resource = sql.NullString{String: invoice.File.ResourceKind, Valid: true}
		format = sql.NullString{String: invoice.File.Format, Valid: true}
	}
	var issueDate sql.NullString
	if invoice.IssueDate != "" {
		issueDate = sql.NullString{String: invoice.IssueDate, Valid: true}
	}
	createdAt := r.now()

	var id int64
	err = r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		insertInvoice := r.db.Rebind(`
			INSERT INTO invoices (
				owner_id, issuer, tax_id, issue_date_text, issue_date,
				total, base_amount, currency, taxes_json, extraction_method,
				payment_status, notes, file_locator, file_resource, file_format, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`)
		if err := exec.QueryRowContext(txCtx, insertInvoice,
			ownerID,
			invoice.Issuer,
			invoice.TaxID,
			invoice.IssueDateText,
			issueDate,
			invoice.Total,
			invoice.BaseAmount,
			invoice.Currency,
			string(taxesJSON),
			invoice.ExtractionMethod,
			invoice.PaymentStatus,
			invoice.Notes,
			locator,
			resource,
			format,
			createdAt,
		).Scan(&id); err != nil {
			return fmt.Errorf("failed to insert invoice: %w", err)
		}

		insertItem := r.db.Rebind(`
			INSERT INTO line_items (invoice_id, owner_id, description, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)
		`)
		for i := range invoice.Items {
			item := &invoice.Items[i]
			if _, err := exec.ExecContext(txCtx, insertItem,
				id, ownerID, item.Description, item.Quantity, item.UnitPrice,
			); err != nil {
				return fmt.Errorf("failed to insert line item %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to add invoice",
			zap.String("owner_id", ownerID),
			zap.String("issuer", invoice.Issuer),
			zap.Error(err))
		return 0, fmt.Errorf("%w: %v", entity.ErrPersistence, err)
	}

	invoice.ID = id
	invoice.OwnerID = ownerID
	invoice.CreatedAt = createdAt
	invoice.HasFile = invoice.File != nil
	for i := range invoice.Items {
		invoice.Items[i].InvoiceID = id
		invoice.Items[i].OwnerID = ownerID
	}

	r.logger.Info("Invoice added",
		zap.Int64("invoice_id", id),
		zap.String("owner_id", ownerID),
		zap.Int("line_items", len(invoice.Items)))
	return id, nil
}

// GetByIDForOwner returns the invoice with its line items, or (nil, nil)
func (r *InvoiceRepository) GetByIDForOwner(ctx context.Context, id int64, ownerID string) (*entity.Invoice, error) {
	var invoice *entity.Invoice

	err := r.db.WithReadOnlyTransaction(ctx, func(txCtx context.Context) error {
		query := r.db.Rebind(`SELECT ` + invoiceColumns + `
			FROM invoices i
			WHERE i.id = ? AND i.owner_id = ?`)

		found, err := scanInvoice(r.db.Executor(txCtx).QueryRowContext(txCtx, query, id, ownerID))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			r.logger.Error("Failed to get invoice", zap.Int64("invoice_id", id), zap.Error(err))
			return fmt.Errorf("failed to get invoice: %w", err)
		}

		items, err := r.itemsFor(txCtx, ownerID, &id)
		if err != nil {
			return err
		}
		found.Items = items[id]
		invoice = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// ListByOwner returns the owner's invoices, newest issue date first
func (r *InvoiceRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entity.InvoiceSummary, error) {
	return r.Search(ctx, ownerID, entity.SearchFilter{})
}

// Search filters by issuer or line-item text and by inclusive issue-date bounds
func (r *InvoiceRepository) Search(ctx context.Context, ownerID string, filter entity.SearchFilter) ([]*entity.InvoiceSummary, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + summaryColumns + ` FROM invoices i WHERE i.owner_id = ?`)
	args := []interface{}{ownerID}

	if text := strings.TrimSpace(filter.Text); text != "" {
		pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
		// LEFT JOIN so invoices without a matching line item still match on issuer
		b.WriteString(` AND i.id IN (
			SELECT i2.id FROM invoices i2
			LEFT JOIN line_items li ON li.invoice_id = i2.id
			WHERE i2.owner_id = ?
			AND (LOWER(i2.issuer) LIKE ? ESCAPE '\' OR LOWER(li.description) LIKE ? ESCAPE '\'))`)
		args = append(args, ownerID, pattern, pattern)
	}
	if filter.DateFrom != "" {
		b.WriteString(` AND i.issue_date >= ?`)
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		b.WriteString(` AND i.issue_date <= ?`)
		args = append(args, filter.DateTo)
	}
	b.WriteString(invoiceOrder)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(b.String()), args...)
	if err != nil {
		r.logger.Error("Failed to search invoices",
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to search invoices: %w", err)
	}
	defer rows.Close()

	summaries := make([]*entity.InvoiceSummary, 0)
	for rows.Next() {
		s := &entity.InvoiceSummary{}
		var issueDate sql.NullString
		if err := rows.Scan(
			&s.ID, &s.Issuer, &s.IssueDateText, &issueDate, &s.Total, &s.Currency,
			&s.PaymentStatus, &s.HasFile,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice summary: %w", err)
		}
		s.IssueDate = issueDate.String
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ListDetailedByOwner returns every invoice of the owner with its line items.
// Both reads share one snapshot so a concurrent delete cannot split them.
func (r *InvoiceRepository) ListDetailedByOwner(ctx context.Context, ownerID string) ([]*entity.Invoice, error) {
	var invoices []*entity.Invoice

	err := r.db.WithReadOnlyTransaction(ctx, func(txCtx context.Context) error {
		var err error
		if invoices, err = r.headersFor(txCtx, ownerID); err != nil {
			return err
		}

		items, err := r.itemsFor(txCtx, ownerID, nil)
		if err != nil {
			return err
		}
		for _, invoice := range invoices {
			invoice.Items = items[invoice.ID]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// headersFor loads the owner's invoices without items. The rows are closed
// before it returns so the caller's transaction can run the next query.
func (r *InvoiceRepository) headersFor(ctx context.Context, ownerID string) ([]*entity.Invoice, error) {
	query := r.db.Rebind(`SELECT ` + invoiceColumns + `
		FROM invoices i
		WHERE i.owner_id = ?` + invoiceOrder)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, ownerID)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]*entity.Invoice, 0)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

// Delete removes an owned invoice; line items go with it through the cascade
func (r *InvoiceRepository) Delete(ctx context.Context, id int64, ownerID string) (bool, error) {
	query := r.db.Rebind(`DELETE FROM invoices WHERE id = ? AND owner_id = ?`)

	res, err := r.db.Executor(ctx).ExecContext(ctx, query, id, ownerID)
	if err != nil {
		r.logger.Error("Failed to delete invoice", zap.Int64("invoice_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to delete invoice: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateNotes replaces the free-text notes of an owned invoice
func (r *InvoiceRepository) UpdateNotes(ctx context.Context, id int64, ownerID, notes string) (bool, error) {
	query := r.db.Rebind(`UPDATE invoices SET notes = ? WHERE id = ? AND owner_id = ?`)

	res, err := r.db.Executor(ctx).ExecContext(ctx, query, notes, id, ownerID)
	if err != nil {
		r.logger.Error("Failed to update invoice notes", zap.Int64("invoice_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to update invoice notes: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// MonthlySummary sums totals per normalized issue month, newest first
func (r *InvoiceRepository) MonthlySummary(ctx context.Context, ownerID string, months int) ([]entity.MonthlyTotal, error) {
	query := r.db.Rebind(`
		SELECT SUBSTR(issue_date, 1, 7) AS month, SUM(total), COUNT(*)
		FROM invoices
		WHERE owner_id = ? AND issue_date IS NOT NULL
		GROUP BY SUBSTR(issue_date, 1, 7)
		ORDER BY month DESC
		LIMIT ?
	`)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, ownerID, months)
	if err != nil {
		r.logger.Error("Failed to summarize invoices", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("failed to summarize invoices: %w", err)
	}
	defer rows.Close()

	totals := make([]entity.MonthlyTotal, 0, months)
	for rows.Next() {
		var m entity.MonthlyTotal
		if err := rows.Scan(&m.Month, &m.Total, &m.Count); err != nil {
			return nil, fmt.Errorf("failed to scan monthly total: %w", err)
		}
		totals = append(totals, m)
	}
	return totals, rows.Err()
}

// itemsFor loads line items keyed by invoice id, for one invoice or all of an owner's
func (r *InvoiceRepository) itemsFor(ctx context.Context, ownerID string, invoiceID *int64) (map[int64][]entity.LineItem, error) {
	query := `SELECT id, invoice_id, owner_id, description, quantity, unit_price
		FROM line_items WHERE owner_id = ?`
	args := []interface{}{ownerID}
	if invoiceID != nil {
		query += ` AND invoice_id = ?`
		args = append(args, *invoiceID)
	}
	query += ` ORDER BY invoice_id, id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to load line items", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("failed to load line items: %w", err)
	}
	defer rows.Close()

	items := make(map[int64][]entity.LineItem)
	for rows.Next() {
		var li entity.LineItem
		if err := rows.Scan(&li.ID, &li.InvoiceID, &li.OwnerID, &li.Description, &li.Quantity, &li.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items[li.InvoiceID] = append(items[li.InvoiceID], li)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	invoice := &entity.Invoice{}
	var issueDate, locator, resource, format sql.NullString
	var taxesJSON string

	if err := row.Scan(
		&invoice.ID,
		&invoice.OwnerID,
		&invoice.Issuer,
		&invoice.TaxID,
		&invoice.IssueDateText,
		&issueDate,
		&invoice.Total,
		&invoice.BaseAmount,
		&invoice.Currency,
		&taxesJSON,
		&invoice.ExtractionMethod,
		&invoice.PaymentStatus,
		&invoice.Notes,
		&locator,
		&resource,
		&format,
		&invoice.CreatedAt,
	); err != nil {
		return nil, err
	}

	invoice.IssueDate = issueDate.String
	invoice.Taxes = map[string]float64{}
	if taxesJSON != "" {
		// a corrupt taxes column should not hide the invoice
		_ = json.Unmarshal([]byte(taxesJSON), &invoice.Taxes)
	}
	if locator.Valid {
		invoice.File = &entity.FileRef{
			Locator:      locator.String,
			ResourceKind: resource.String,
			Format:       format.String,
		}
		invoice.HasFile = true
	}
	return invoice, nil
}

// escapeLike escapes LIKE wildcards so user text matches literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Verify interface compliance
var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
