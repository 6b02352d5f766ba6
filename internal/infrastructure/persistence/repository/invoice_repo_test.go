package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/persistence/sqldb"
	"github.com/facturia/invoice-pipeline/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newInvoiceRepo(t *testing.T) (*InvoiceRepository, *sqldb.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	return NewInvoiceRepository(db, zap.NewNop()), db
}

func sampleInvoice(issuer, dateText, isoDate string, total float64, items ...entity.LineItem) *entity.Invoice {
	if len(items) == 0 {
		items = []entity.LineItem{{Description: "Servicio", Quantity: 1, UnitPrice: total}}
	}
	return &entity.Invoice{
		Issuer:           issuer,
		TaxID:            "B12345678",
		IssueDateText:    dateText,
		IssueDate:        isoDate,
		Total:            total,
		BaseAmount:       total / 1.21,
		Currency:         "€",
		Taxes:            map[string]float64{"IVA 21%": total - total/1.21},
		ExtractionMethod: "gemini-1.5-flash",
		PaymentStatus:    entity.PaymentPending,
		Items:            items,
	}
}

func TestInvoiceRepository_AddAndGet(t *testing.T) {
	repo, _ := newInvoiceRepo(t)
	ctx := context.Background()

	inv := sampleInvoice("Acme SL", "15/06/2024", "2024-06-15", 121,
		entity.LineItem{Description: "Tornillos", Quantity: 10, UnitPrice: 5},
		entity.LineItem{Description: "Tuercas", Quantity: 20, UnitPrice: 3.55},
	)
	inv.File = &entity.FileRef{Locator: "users/alice/invoices/j1.jpg", ResourceKind: "image", Format: "jpg"}

	id, err := repo.Add(ctx, "alice", inv)
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := repo.GetByIDForOwner(ctx, id, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme SL", got.Issuer)
	assert.Equal(t, "2024-06-15", got.IssueDate)
	assert.InDelta(t, 121.0, got.Total, 0.0001)
	assert.InDelta(t, 21.0, got.Taxes["IVA 21%"], 0.0001)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Tornillos", got.Items[0].Description)
	assert.Equal(t, "alice", got.Items[1].OwnerID)
	require.NotNil(t, got.File)
	assert.Equal(t, "users/alice/invoices/j1.jpg", got.File.Locator)
	assert.True(t, got.HasFile)
}

func TestInvoiceRepository_AddRollsBackOnItemFailure(t *testing.T) {
	repo, db := newInvoiceRepo(t)
	ctx := context.Background()

	// the blank description violates the line_items check after the invoice row is written
	inv := sampleInvoice("Broken SA", "01/01/2024", "2024-01-01", 10,
		entity.LineItem{Description: "ok", Quantity: 1, UnitPrice: 10},
		entity.LineItem{Description: "   ", Quantity: 1, UnitPrice: 0},
	)

	id, err := repo.Add(ctx, "alice", inv)
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrPersistence))
	assert.Zero(t, id)

	var invoices, items int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM invoices").Scan(&invoices))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM line_items").Scan(&items))
	assert.Zero(t, invoices)
	assert.Zero(t, items)
}

func TestInvoiceRepository_OwnershipIsolation(t *testing.T) {
	repo, _ := newInvoiceRepo(t)
	ctx := context.Background()

	id, err := repo.Add(ctx, "alice", sampleInvoice("Acme SL", "15/06/2024", "2024-06-15", 50))
	require.NoError(t, err)

	got, err := repo.GetByIDForOwner(ctx, id, "bob")
	require.NoError(t, err)
	assert.Nil(t, got)

	results, err := repo.Search(ctx, "bob", entity.SearchFilter{Text: "acme"})
	require.NoError(t, err)
	assert.Empty(t, results)

	removed, err := repo.Delete(ctx, id, "bob")
	require.NoError(t, err)
	assert.False(t, removed)

	updated, err := repo.UpdateNotes(ctx, id, "bob", "mine now")
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestInvoiceRepository_ListOrdering(t *testing.T) {
	repo, _ := newInvoiceRepo(t)
	ctx := context.Background()

	// lexical order of the display text would put 02/01/2025 before 15/06/2024
	oldID, err := repo.Add(ctx, "alice", sampleInvoice("Old", "15/06/2024", "2024-06-15", 1))
	require.NoError(t, err)
	newID, err := repo.Add(ctx, "alice", sampleInvoice("New", "02/01/2025", "2025-01-02", 2))
	require.NoError(t, err)
	undatedID, err := repo.Add(ctx, "alice", sampleInvoice("Undated", "sin fecha", "", 3))
	require.NoError(t, err)
	sameDayID, err := repo.Add(ctx, "alice", sampleInvoice("SameDay", "15/06/2024", "2024-06-15", 4))
	require.NoError(t, err)

	list, err := repo.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 4)

	var ids []int64
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int64{newID, sameDayID, oldID, undatedID}, ids)
}

func TestInvoiceRepository_SearchText(t *testing.T) {
	repo, _ := newInvoiceRepo(t)
	ctx := context.Background()

	byIssuer, err := repo.Add(ctx, "alice", sampleInvoice("Ferretería López", "01/02/2024", "2024-02-01", 10))
	require.NoError(t, err)
	byItem, err := repo.Add(ctx, "alice", sampleInvoice("Mercadona", "03/02/2024", "2024-02-03", 20,
		entity.LineItem{Description: "Bombillas LED", Quantity: 2, UnitPrice: 10},
		entity.LineItem{Description: "Tornillos LÓPEZ", Quantity: 1, UnitPrice: 0},
	))
	require.NoError(t, err)
	_, err = repo.Add(ctx, "alice", sampleInvoice("Other", "04/02/2024", "2024-02-04", 30))
	require.NoError(t, err)

	results, err := repo.Search(ctx, "alice", entity.SearchFilter{Text: "FERRETER"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, byIssuer, results[0].ID)

	results, err = repo.Search(ctx, "alice", entity.SearchFilter{Text: "bombillas"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, byItem, results[0].ID)

	// wildcard characters in user input match literally
	results, err = repo.Search(ctx, "alice", entity.SearchFilter{Text: "%"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInvoiceRepository_SearchDateBoundsInclusive(t *testing.T) {
	repo, _ := newInvoiceRepo(t)
	ctx := context.Background()

	id, err := repo.Add(ctx, "alice", sampleInvoice("Acme", "15/06/2024", "2024-06-15", 10))
	require.NoError(t, err)
	_, err = repo.Add(ctx, "alice", sampleInvoice("Undated", "??", "", 10))
	require.NoError(t, err)

	results, err := repo.Search(ctx, "alice", entity.SearchFilter{DateFrom: "2024-06-15"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)

	results, err = repo.Search(ctx, "alice", entity.SearchFilter{DateFrom: "2024-06-16"})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = repo.Search(ctx, "alice", entity.SearchFilter{DateTo: "2024-06-15"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = repo.Search(ctx, "alice", entity.SearchFilter{DateFrom: "2024-06-01", DateTo: "2024-06-14"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInvoiceRepository_DeleteCascades(t *testing.T) {
	repo, db := newInvoiceRepo(t)
	ctx := context.Background()

	id, err := repo.Add(ctx, "alice", sampleInvoice("Acme", "15/06/2024", "2024-06-15", 10,
		entity.LineItem{Description: "a", Quantity: 1, UnitPrice: 5},
		entity.LineItem{Description: "b", Quantity: 1, UnitPrice: 5},
	))
	require.NoError(t, err)

	removed, err := repo.Delete(ctx, id, "alice")
	require.NoError(t, err)
	assert.True(t, removed)

	var items int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM line_items WHERE invoice_id = ?", id).Scan(&items))
	assert.Zero(t, items)

	removed, err = repo.Delete(ctx, id, "alice")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestInvoiceRepository_UpdateNotes(t *testing.T) {
	repo, _ := newInvoiceRepo(t)
	ctx := context.Background()

	id, err := repo.Add(ctx, "alice", sampleInvoice("Acme", "15/06/2024", "2024-06-15", 10))
	require.NoError(t, err)

	updated, err := repo.UpdateNotes(ctx, id, "alice", "pagar antes del día 30")
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := repo.GetByIDForOwner(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pagar antes del día 30", got.Notes)
}

func TestInvoiceRepository_MonthlySummary(t *testing.T) {
	repo, _ := newInvoiceRepo(t)
	ctx := context.Background()

	for _, inv := range []*entity.Invoice{
		sampleInvoice("A", "01/05/2024", "2024-05-01", 10),
		sampleInvoice("B", "20/05/2024", "2024-05-20", 15),
		sampleInvoice("C", "03/06/2024", "2024-06-03", 7),
		sampleInvoice("D", "??", "", 100),
	} {
		_, err := repo.Add(ctx, "alice", inv)
		require.NoError(t, err)
	}
	_, err := repo.Add(ctx, "bob", sampleInvoice("E", "03/06/2024", "2024-06-03", 1000))
	require.NoError(t, err)

	totals, err := repo.MonthlySummary(ctx, "alice", 6)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "2024-06", totals[0].Month)
	assert.InDelta(t, 7.0, totals[0].Total, 0.0001)
	assert.Equal(t, "2024-05", totals[1].Month)
	assert.InDelta(t, 25.0, totals[1].Total, 0.0001)
	assert.Equal(t, 2, totals[1].Count)
}

func TestInvoiceRepository_ListDetailedByOwner(t *testing.T) {
	repo, _ := newInvoiceRepo(t)
	ctx := context.Background()

	_, err := repo.Add(ctx, "alice", sampleInvoice("A", "01/05/2024", "2024-05-01", 10,
		entity.LineItem{Description: "x", Quantity: 1, UnitPrice: 10}))
	require.NoError(t, err)
	_, err = repo.Add(ctx, "alice", sampleInvoice("B", "02/05/2024", "2024-05-02", 20,
		entity.LineItem{Description: "y", Quantity: 1, UnitPrice: 10},
		entity.LineItem{Description: "z", Quantity: 1, UnitPrice: 10}))
	require.NoError(t, err)
	_, err = repo.Add(ctx, "bob", sampleInvoice("C", "02/05/2024", "2024-05-02", 5))
	require.NoError(t, err)

	invoices, err := repo.ListDetailedByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, "B", invoices[0].Issuer)
	assert.Len(t, invoices[0].Items, 2)
	assert.Len(t, invoices[1].Items, 1)
}
