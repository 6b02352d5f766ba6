package entity

import "time"

// Payment status values as shown to users
const (
	PaymentPaid    = "Pagada"
	PaymentPending = "Pendiente"
)

// ExtractionMethodManual labels invoices entered by hand
const ExtractionMethodManual = "Manual"

// FileRef points at the retained original document in the file store
type FileRef struct {
	Locator      string `json:"locator"`
	ResourceKind string `json:"resource_kind"`
	Format       string `json:"format"`
}

// LineItem is one product or service row within an invoice
type LineItem struct {
	ID          int64   `json:"id,omitempty"`
	InvoiceID   int64   `json:"-"`
	OwnerID     string  `json:"-"`
	Description string  `json:"descripcion"`
	Quantity    float64 `json:"cantidad"`
	UnitPrice   float64 `json:"precio_unitario"`
}

// Invoice is the canonical extracted record.
// IssueDateText keeps the date as written on the document; IssueDate holds the
// normalized YYYY-MM-DD form, empty when the text could not be parsed.
type Invoice struct {
	ID               int64              `json:"id"`
	OwnerID          string             `json:"-"`
	Issuer           string             `json:"emisor"`
	TaxID            string             `json:"cif"`
	IssueDateText    string             `json:"fecha"`
	IssueDate        string             `json:"fecha_iso,omitempty"`
	Total            float64            `json:"total"`
	BaseAmount       float64            `json:"base_imponible"`
	Currency         string             `json:"moneda"`
	Taxes            map[string]float64 `json:"impuestos"`
	ExtractionMethod string             `json:"metodo_extraccion"`
	PaymentStatus    string             `json:"estado"`
	Notes            string             `json:"notas"`
	File             *FileRef           `json:"-"`
	HasFile          bool               `json:"tiene_archivo"`
	Items            []LineItem         `json:"conceptos"`
	CreatedAt        time.Time          `json:"created_at"`
}

// InvoiceSummary is the list/search projection of an invoice
type InvoiceSummary struct {
	ID            int64   `json:"id"`
	Issuer        string  `json:"emisor"`
	IssueDateText string  `json:"fecha"`
	IssueDate     string  `json:"fecha_iso,omitempty"`
	Total         float64 `json:"total"`
	Currency      string  `json:"moneda"`
	PaymentStatus string  `json:"estado"`
	HasFile       bool    `json:"tiene_archivo"`
}

// SearchFilter narrows an owner's invoices. Empty fields do not filter.
// DateFrom/DateTo are inclusive YYYY-MM-DD bounds.
type SearchFilter struct {
	Text     string
	DateFrom string
	DateTo   string
}

// MonthlyTotal aggregates invoice totals for one calendar month (YYYY-MM)
type MonthlyTotal struct {
	Month string  `json:"mes"`
	Total float64 `json:"total"`
	Count int     `json:"facturas"`
}
