package export

import (
	"bytes"
	"testing"

	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func TestXLSXExporter_OneRowPerLineItem(t *testing.T) {
	invoices := []*entity.Invoice{
		{
			ID:            1,
			Issuer:        "ACME SL",
			IssueDateText: "15/03/2024",
			IssueDate:     "2024-03-15",
			Total:         121,
			BaseAmount:    100,
			Currency:      "€",
			Taxes:         map[string]float64{"IVA 21%": 21},
			PaymentStatus: entity.PaymentPaid,
			Items: []entity.LineItem{
				{Description: "Widget", Quantity: 2, UnitPrice: 25},
				{Description: "Gadget", Quantity: 1, UnitPrice: 50},
			},
		},
		{ID: 2, Issuer: "Sin conceptos", IssueDateText: "ayer", Total: 10},
	}

	data, err := NewXLSXExporter(zap.NewNop()).Export(invoices)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "Emisor", rows[0][2])
	assert.Equal(t, "Widget", rows[1][4])
	assert.Equal(t, "Gadget", rows[2][4])
	assert.Equal(t, "2024-03-15", rows[1][1])
	assert.Equal(t, "IVA 21%: 21.00", rows[1][8])
	assert.Equal(t, "ayer", rows[3][1])
	assert.Equal(t, "Sin conceptos", rows[3][2])
}

func TestXLSXExporter_Empty(t *testing.T) {
	data, err := NewXLSXExporter(zap.NewNop()).Export(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
