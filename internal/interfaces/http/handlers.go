package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/facturia/invoice-pipeline/internal/application/service"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	config   ServerConfig
	services Services
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(config ServerConfig, services Services, logger *zap.Logger) *Handlers {
	return &Handlers{
		config:   config,
		services: services,
		logger:   logger,
	}
}

// SearchRequest is the body of POST /api/search
type SearchRequest struct {
	TextQuery string `json:"text_query"`
	DateFrom  string `json:"date_from"`
	DateTo    string `json:"date_to"`
}

// AskRequest is the body of POST /api/ask
type AskRequest struct {
	Query string `json:"query"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	if h.services.Ping != nil {
		if err := h.services.Ping(c.Request.Context()); err != nil {
			h.logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "status": "unhealthy"})
			return
		}
	}
	ok(c, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Me handles GET /api/me
func (h *Handlers) Me(c *gin.Context) {
	ok(c, gin.H{"user": currentUser(c)})
}

// SubmitImage handles POST /api/jobs/image
func (h *Handlers) SubmitImage(c *gin.Context) {
	h.submit(c, entity.DocumentImage)
}

// SubmitPDF handles POST /api/jobs/pdf
func (h *Handlers) SubmitPDF(c *gin.Context) {
	h.submit(c, entity.DocumentPDF)
}

func (h *Handlers) submit(c *gin.Context, kind entity.DocumentKind) {
	body := io.Reader(c.Request.Body)
	if h.config.MaxUploadBytes > 0 {
		// one byte over the cap lets the job service report the size error
		body = io.LimitReader(body, h.config.MaxUploadBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: could not read request body", entity.ErrValidation))
		return
	}

	jobID, err := h.services.Jobs.Submit(c.Request.Context(), ownerID(c), kind, data)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"job_id": jobID})
}

// JobStatus handles GET /api/jobs/:id
func (h *Handlers) JobStatus(c *gin.Context) {
	job, err := h.services.Jobs.Status(c.Request.Context(), c.Param("id"), ownerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"status": job.Status, "job": job})
}

// ProcessQueue handles GET /api/process_queue and answers in plain text
func (h *Handlers) ProcessQueue(c *gin.Context) {
	if !cronAuthorized(c.GetHeader("Authorization"), h.config.CronSecret) {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}

	outcome, err := h.services.Dispatch.DispatchOnce(c.Request.Context())
	switch {
	case errors.Is(err, service.ErrJobFailed):
		c.String(http.StatusInternalServerError, outcome.Message)
	case err != nil:
		h.logger.Error("Dispatch failed", zap.Error(err))
		c.String(http.StatusInternalServerError, "dispatch error")
	default:
		c.String(http.StatusOK, outcome.Message)
	}
}

// ListInvoices handles GET /api/invoices
func (h *Handlers) ListInvoices(c *gin.Context) {
	invoices, err := h.services.Invoices.List(c.Request.Context(), ownerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"invoices": nonNil(invoices)})
}

// AddInvoice handles POST /api/invoices
func (h *Handlers) AddInvoice(c *gin.Context) {
	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		h.fail(c, fmt.Errorf("%w: invalid invoice body", entity.ErrValidation))
		return
	}

	id, err := h.services.Invoices.AddManual(c.Request.Context(), ownerID(c), raw)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"id": id})
}

// GetInvoice handles GET /api/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	id, err := invoiceID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	invoice, err := h.services.Invoices.Get(c.Request.Context(), id, ownerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"invoice": invoice})
}

// DeleteInvoice handles DELETE /api/invoices/:id
func (h *Handlers) DeleteInvoice(c *gin.Context) {
	id, err := invoiceID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.services.Invoices.Delete(c.Request.Context(), id, ownerID(c)); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"message": "invoice deleted"})
}

// UpdateNotes handles PUT /api/invoices/:id/notes
func (h *Handlers) UpdateNotes(c *gin.Context) {
	id, err := invoiceID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, fmt.Errorf("%w: invalid body", entity.ErrValidation))
		return
	}
	raw, present := body["notas"]
	if !present {
		h.fail(c, fmt.Errorf("%w: missing field 'notas'", entity.ErrValidation))
		return
	}
	notes, isString := raw.(string)
	if raw != nil && !isString {
		h.fail(c, fmt.Errorf("%w: 'notas' must be a string", entity.ErrValidation))
		return
	}

	if err := h.services.Invoices.UpdateNotes(c.Request.Context(), id, ownerID(c), notes); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

// InvoiceFile handles GET /api/invoices/:id/file
func (h *Handlers) InvoiceFile(c *gin.Context) {
	id, err := invoiceID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	url, err := h.services.Invoices.FileURL(c.Request.Context(), id, ownerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"url": url})
}

// MonthlySummary handles GET /api/invoices/summary
func (h *Handlers) MonthlySummary(c *gin.Context) {
	months, err := h.services.Invoices.MonthlySummary(c.Request.Context(), ownerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"months": nonNil(months)})
}

// ExportInvoices handles GET /api/invoices/export
func (h *Handlers) ExportInvoices(c *gin.Context) {
	data, err := h.services.Invoices.Export(c.Request.Context(), ownerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	filename := fmt.Sprintf("facturas-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// Search handles POST /api/search
func (h *Handlers) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: invalid search body", entity.ErrValidation))
		return
	}

	invoices, err := h.services.Invoices.Search(c.Request.Context(), ownerID(c), service.SearchQuery{
		Text:     req.TextQuery,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"invoices": nonNil(invoices)})
}

// Ask handles POST /api/ask
func (h *Handlers) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		h.fail(c, fmt.Errorf("%w: no question provided", entity.ErrValidation))
		return
	}

	answer, err := h.services.Assistant.Ask(c.Request.Context(), ownerID(c), req.Query)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"answer": answer})
}

// DownloadFile handles GET /files/*key for locally stored originals
func (h *Handlers) DownloadFile(c *gin.Context) {
	if h.services.Files == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	key := strings.TrimPrefix(c.Param("key"), "/")
	data, err := h.services.Files.Open(key, c.Query("exp"), c.Query("sig"))
	if errors.Is(err, storage.ErrInvalidSignature) {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	if err != nil {
		h.logger.Warn("File download failed", zap.String("key", key), zap.Error(err))
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	c.Data(http.StatusOK, contentType, data)
}

func invoiceID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid invoice id", entity.ErrValidation)
	}
	return id, nil
}

// nonNil keeps empty lists serialized as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
