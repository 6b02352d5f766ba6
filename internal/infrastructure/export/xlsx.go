package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// SheetName is the worksheet holding the export rows
const SheetName = "Facturas"

var headers = []string{
	"ID",
	"Fecha",
	"Emisor",
	"CIF",
	"Concepto",
	"Cantidad",
	"Precio unitario",
	"Base imponible",
	"Impuestos",
	"Total",
	"Moneda",
	"Estado",
	"Notas",
}

// XLSXExporter renders invoices as a workbook with one row per line item
type XLSXExporter struct {
	logger *zap.Logger
}

// NewXLSXExporter creates a new exporter
func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{logger: logger}
}

// Export writes the workbook and returns its bytes
func (e *XLSXExporter) Export(invoices []*entity.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	row := 2
	for _, inv := range invoices {
		items := inv.Items
		if len(items) == 0 {
			items = []entity.LineItem{{}}
		}
		for _, item := range items {
			values := []interface{}{
				inv.ID,
				displayDate(inv),
				inv.Issuer,
				inv.TaxID,
				item.Description,
				item.Quantity,
				item.UnitPrice,
				inv.BaseAmount,
				formatTaxes(inv.Taxes),
				inv.Total,
				inv.Currency,
				inv.PaymentStatus,
				inv.Notes,
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				if err := f.SetCellValue(SheetName, cell, v); err != nil {
					return nil, fmt.Errorf("failed to write row %d: %w", row, err)
				}
			}
			row++
		}
	}

	_ = f.SetColWidth(SheetName, "B", "B", 12)
	_ = f.SetColWidth(SheetName, "C", "C", 30)
	_ = f.SetColWidth(SheetName, "E", "E", 40)
	_ = f.SetColWidth(SheetName, "I", "I", 24)
	_ = f.SetColWidth(SheetName, "M", "M", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Invoices exported",
		zap.Int("invoices", len(invoices)),
		zap.Int("rows", row-2))

	return buf.Bytes(), nil
}

func displayDate(inv *entity.Invoice) string {
	if inv.IssueDate != "" {
		return inv.IssueDate
	}
	return inv.IssueDateText
}

// formatTaxes renders the tax map deterministically, e.g. "IVA 21%: 21.00"
func formatTaxes(taxes map[string]float64) string {
	names := make([]string, 0, len(taxes))
	for name := range taxes {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %.2f", name, taxes[name]))
	}
	return strings.Join(parts, "; ")
}

// Verify interface compliance
var _ port.InvoiceExporter = (*XLSXExporter)(nil)
