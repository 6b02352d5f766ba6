package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/facturia/invoice-pipeline/internal/application/extraction"
	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/application/reconciler"
	"github.com/facturia/invoice-pipeline/internal/application/service"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/auth"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/export"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/persistence/repository"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/storage"
	"github.com/facturia/invoice-pipeline/internal/testutil"
)

const cronSecret = "cron-secret"

type cannedModel struct {
	mu       sync.Mutex
	response string
}

func (m *cannedModel) Generate(context.Context, []port.ModelPart) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.response, nil
}

func (m *cannedModel) Name() string { return "canned" }

type jpegNormalizer struct{}

func (jpegNormalizer) Normalize(data []byte) (string, []byte, error) {
	return "image/jpeg", data, nil
}

type noPages struct{}

func (noPages) Pages([]byte) ([]port.PageContent, error) { return nil, nil }

type testAPI struct {
	router   *gin.Engine
	verifier *auth.JWTVerifier
	users    *repository.UserRepository
	model    *cannedModel
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	db := testutil.NewTestDB(t)

	jobs := repository.NewJobRepository(db, logger)
	invoices := repository.NewInvoiceRepository(db, logger)
	users := repository.NewUserRepository(db, logger)
	rec := reconciler.New("€")
	model := &cannedModel{}
	files := storage.NewLocalFileStore(t.TempDir(), "", []byte("signing-key"), logger)
	verifier := auth.NewJWTVerifier("jwt-secret", "")

	adapter := extraction.NewAdapter(model, noPages{}, jpegNormalizer{}, extraction.Options{}, logger)

	cfg := DefaultServerConfig()
	cfg.CronSecret = cronSecret
	cfg.MaxUploadBytes = 1024

	srv := NewServer(cfg, Services{
		Jobs:      service.NewJobService(jobs, int(cfg.MaxUploadBytes), logger),
		Dispatch:  service.NewDispatchService(jobs, invoices, adapter, rec, files, nil, service.DispatchConfig{}, logger),
		Invoices:  service.NewInvoiceService(invoices, rec, files, export.NewXLSXExporter(logger), time.Minute, logger),
		Assistant: service.NewAssistantService(invoices, model, logger),
		Users:     service.NewUserService(users, 14, logger),
		Verifier:  verifier,
		Files:     files,
	}, logger)

	return &testAPI{router: srv.Router(), verifier: verifier, users: users, model: model}
}

func (a *testAPI) token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := a.verifier.Sign(subject, subject+"@example.com", time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (a *testAPI) do(t *testing.T, method, path, authz string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestHealthCheck(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ok"])
}

func TestAuthRequired(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/invoices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, decode(t, w)["ok"])

	w = api.do(t, http.MethodGet, "/api/invoices", "Bearer nonsense", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitDispatchAndRead(t *testing.T) {
	api := newTestAPI(t)
	alice := api.token(t, "alice")
	api.model.response = `{"emisor": "Acme SL", "total": 121, "base_imponible": 100, "fecha": "15/03/2024",
		"conceptos": [{"descripcion": "Widget", "cantidad": 1, "precio_unitario": 100}]}`

	w := api.do(t, http.MethodPost, "/api/jobs/image", alice, []byte{0xFF, 0xD8, 0xFF, 0xE0, 'x'})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	jobID := decode(t, w)["job_id"].(string)
	require.NotEmpty(t, jobID)

	w = api.do(t, http.MethodGet, "/api/jobs/"+jobID, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.JobStatusPending, decode(t, w)["status"])

	// another owner cannot see the job
	w = api.do(t, http.MethodGet, "/api/jobs/"+jobID, api.token(t, "bob"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/api/process_queue", "Bearer wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodGet, "/api/process_queue", "Bearer "+cronSecret, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), jobID)

	w = api.do(t, http.MethodGet, "/api/process_queue", "Bearer "+cronSecret, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no pending jobs", w.Body.String())

	w = api.do(t, http.MethodGet, "/api/jobs/"+jobID, alice, nil)
	assert.Equal(t, entity.JobStatusCompleted, decode(t, w)["status"])

	w = api.do(t, http.MethodGet, "/api/invoices", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)["invoices"].([]interface{})
	require.Len(t, list, 1)
	id := int64(list[0].(map[string]interface{})["id"].(float64))
	path := "/api/invoices/" + jsonNumber(id)

	w = api.do(t, http.MethodGet, path, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	invoice := decode(t, w)["invoice"].(map[string]interface{})
	assert.Equal(t, "Acme SL", invoice["emisor"])
	assert.Equal(t, "2024-03-15", invoice["fecha_iso"])

	w = api.do(t, http.MethodGet, path, api.token(t, "bob"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// the retained original is reachable through a signed local URL
	w = api.do(t, http.MethodGet, path+"/file", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fileURL, err := url.Parse(decode(t, w)["url"].(string))
	require.NoError(t, err)

	w = api.do(t, http.MethodGet, fileURL.RequestURI(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0, 'x'}, w.Body.Bytes())

	w = api.do(t, http.MethodGet, fileURL.Path+"?exp=1&sig=bad", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPut, path+"/notes", alice, []byte(`{"notas": "paid by card"}`))
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodPut, path+"/notes", alice, []byte(`{"other": 1}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodDelete, path, api.token(t, "bob"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = api.do(t, http.MethodDelete, path, alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodGet, path, alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitValidation(t *testing.T) {
	api := newTestAPI(t)
	alice := api.token(t, "alice")

	w := api.do(t, http.MethodPost, "/api/jobs/pdf", alice, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/jobs/pdf", alice, bytes.Repeat([]byte("x"), 2048))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDispatchFailureIsServerError(t *testing.T) {
	api := newTestAPI(t)
	api.model.response = "I cannot read this document."

	w := api.do(t, http.MethodPost, "/api/jobs/image", api.token(t, "alice"), []byte{0xFF, 0xD8, 0xFF})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/api/process_queue", "Bearer "+cronSecret, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "failed")
}

func TestManualAddSearchSummaryExport(t *testing.T) {
	api := newTestAPI(t)
	alice := api.token(t, "alice")

	w := api.do(t, http.MethodPost, "/api/invoices", alice, []byte(`{"total": 5}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/invoices", alice,
		[]byte(`{"emisor": "Papelería Sol", "total": "12,10", "fecha": "02/01/2024"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotZero(t, decode(t, w)["id"])

	w = api.do(t, http.MethodPost, "/api/search", alice, []byte(`{"text_query": "sol", "date_from": "01/01/2024", "date_to": "2024-01-31"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["invoices"], 1)

	w = api.do(t, http.MethodPost, "/api/search", alice, []byte(`{"date_from": "not a date"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/search", api.token(t, "bob"), []byte(`{"text_query": "sol"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["invoices"], 0)

	w = api.do(t, http.MethodGet, "/api/invoices/summary", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	months := decode(t, w)["months"].([]interface{})
	require.Len(t, months, 1)
	assert.Equal(t, "2024-01", months[0].(map[string]interface{})["mes"])

	w = api.do(t, http.MethodGet, "/api/invoices/export", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "PK"))
}

func TestAsk(t *testing.T) {
	api := newTestAPI(t)
	alice := api.token(t, "alice")

	w := api.do(t, http.MethodPost, "/api/ask", alice, []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/ask", alice, []byte(`{"query": "how much did I spend?"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.NoInvoicesAnswer, decode(t, w)["answer"])
}

func TestTrialExpiredBlocksWritesOnly(t *testing.T) {
	api := newTestAPI(t)
	alice := api.token(t, "alice")

	w := api.do(t, http.MethodGet, "/api/me", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]interface{})
	assert.Equal(t, entity.UserStatusTrial, user["status"])

	require.NoError(t, api.users.UpdateStatus(context.Background(), int64(user["id"].(float64)), entity.UserStatusTrialExpired))

	w = api.do(t, http.MethodPost, "/api/jobs/image", alice, []byte{0xFF, 0xD8, 0xFF})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	w = api.do(t, http.MethodPost, "/api/invoices", alice, []byte(`{"emisor": "x"}`))
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	w = api.do(t, http.MethodPost, "/api/ask", alice, []byte(`{"query": "q"}`))
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	w = api.do(t, http.MethodGet, "/api/invoices", alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(entity.ErrEmptyDocument))
	assert.Equal(t, http.StatusPaymentRequired, statusFor(entity.ErrTrialExpired))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("db down")))
	assert.False(t, cronAuthorized("Bearer ", ""))
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
