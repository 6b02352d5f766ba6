// Package reconciler turns untrusted extraction output into canonical invoices.
package reconciler

import (
	"strings"

	"github.com/facturia/invoice-pipeline/internal/domain/entity"
)

// FallbackItemDescription names the line item synthesized when none survive
const FallbackItemDescription = "Varios productos/servicios"

// Raw field names produced by the extraction prompts and accepted by manual entry
const (
	FieldIssuer    = "emisor"
	FieldTaxID     = "cif"
	FieldDate      = "fecha"
	FieldTotal     = "total"
	FieldBase      = "base_imponible"
	FieldTaxes     = "impuestos"
	FieldStatus    = "estado"
	FieldCurrency  = "moneda"
	FieldItems     = "conceptos"
	FieldNotes     = "notas"
	FieldItemDesc  = "descripcion"
	FieldItemQty   = "cantidad"
	FieldItemPrice = "precio_unitario"
)

// Reconciler normalizes raw extraction maps into entity.Invoice
type Reconciler struct {
	baseCurrency string
}

// New creates a reconciler that defaults missing currency to baseCurrency
func New(baseCurrency string) *Reconciler {
	if baseCurrency == "" {
		baseCurrency = "€"
	}
	return &Reconciler{baseCurrency: baseCurrency}
}

// Reconcile never fails: every numeric field is coerced, missing fields get
// defaults, and the result always carries at least one line item.
func (r *Reconciler) Reconcile(raw map[string]interface{}, method string) *entity.Invoice {
	if raw == nil {
		raw = map[string]interface{}{}
	}

	dateText := CoerceString(raw[FieldDate])
	invoice := &entity.Invoice{
		Issuer:           CoerceString(raw[FieldIssuer]),
		TaxID:            CoerceString(raw[FieldTaxID]),
		IssueDateText:    dateText,
		IssueDate:        NormalizeDate(dateText),
		Total:            CoerceAmount(raw[FieldTotal]),
		BaseAmount:       CoerceAmount(raw[FieldBase]),
		Currency:         CoerceString(raw[FieldCurrency]),
		Taxes:            coerceTaxes(raw[FieldTaxes]),
		ExtractionMethod: method,
		PaymentStatus:    normalizeStatus(raw[FieldStatus]),
		Notes:            CoerceString(raw[FieldNotes]),
	}
	if invoice.Currency == "" {
		invoice.Currency = r.baseCurrency
	}

	invoice.Items = reconcileItems(raw[FieldItems])
	if len(invoice.Items) == 0 {
		invoice.Items = []entity.LineItem{{
			Description: FallbackItemDescription,
			Quantity:    1.0,
			UnitPrice:   invoice.Total,
		}}
	}
	return invoice
}

func reconcileItems(v interface{}) []entity.LineItem {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}

	items := make([]entity.LineItem, 0, len(list))
	for _, candidate := range list {
		m, ok := candidate.(map[string]interface{})
		if !ok {
			continue
		}
		desc := strings.TrimSpace(CoerceString(m[FieldItemDesc]))
		if desc == "" {
			continue
		}
		items = append(items, entity.LineItem{
			Description: desc,
			Quantity:    CoerceFloat(m[FieldItemQty]),
			UnitPrice:   CoerceFloat(m[FieldItemPrice]),
		})
	}
	return items
}

func coerceTaxes(v interface{}) map[string]float64 {
	taxes := map[string]float64{}
	m, ok := v.(map[string]interface{})
	if !ok {
		return taxes
	}
	for name, amount := range m {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		taxes[name] = CoerceFloat(amount)
	}
	return taxes
}

func normalizeStatus(v interface{}) string {
	switch strings.ToLower(strings.TrimSpace(CoerceString(v))) {
	case "pagada", "pagado", "paid":
		return entity.PaymentPaid
	default:
		return entity.PaymentPending
	}
}
