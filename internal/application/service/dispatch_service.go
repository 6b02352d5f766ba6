package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/extraction"
	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/application/reconciler"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"github.com/facturia/invoice-pipeline/internal/domain/event"
	"go.uber.org/zap"
)

// Extractor is the part of the extraction adapter the dispatcher needs
type Extractor interface {
	Extract(ctx context.Context, kind entity.DocumentKind, data []byte) (*extraction.Result, error)
}

// DispatchOutcome describes what one dispatch invocation did
type DispatchOutcome struct {
	JobID     string
	Status    string
	InvoiceID int64
	Message   string
}

// DispatchService claims and fully processes at most one job per call
type DispatchService interface {
	DispatchOnce(ctx context.Context) (*DispatchOutcome, error)
}

// DispatchConfig holds dispatcher settings
type DispatchConfig struct {
	// StaleAfter fails jobs left processing longer than this; 0 disables the sweep
	StaleAfter time.Duration
}

type dispatchServiceImpl struct {
	jobs       port.JobRepository
	invoices   port.InvoiceRepository
	extractor  Extractor
	reconciler *reconciler.Reconciler
	files      port.FileStore
	events     port.EventPublisher
	cfg        DispatchConfig
	logger     *zap.Logger
}

// NewDispatchService creates a new DispatchService. files and events may be nil.
func NewDispatchService(
	jobs port.JobRepository,
	invoices port.InvoiceRepository,
	extractor Extractor,
	rec *reconciler.Reconciler,
	files port.FileStore,
	events port.EventPublisher,
	cfg DispatchConfig,
	logger *zap.Logger,
) DispatchService {
	return &dispatchServiceImpl{
		jobs:       jobs,
		invoices:   invoices,
		extractor:  extractor,
		reconciler: rec,
		files:      files,
		events:     events,
		cfg:        cfg,
		logger:     logger,
	}
}

// ErrJobFailed is returned by DispatchOnce when the claimed job ended in failed
var ErrJobFailed = errors.New("job failed")

// DispatchOnce sweeps stale jobs, claims the oldest pending job and runs it through
// extraction, reconciliation and persistence. The claim commits before extraction
// starts so no lock is held while the model is called.
func (s *dispatchServiceImpl) DispatchOnce(ctx context.Context) (*DispatchOutcome, error) {
	if s.cfg.StaleAfter > 0 {
		reason := fmt.Sprintf("stale: worker did not finish within %s", s.cfg.StaleAfter)
		n, err := s.jobs.FailStale(ctx, s.cfg.StaleAfter, reason)
		if err != nil {
			// the sweep is housekeeping; a failure must not block fresh work
			s.logger.Error("Stale job sweep failed", zap.Error(err))
		} else if n > 0 {
			s.publish(ctx, event.NewEvent(event.TypeJobsExpired, nil, map[string]interface{}{
				event.KeyCount:  n,
				event.KeyReason: reason,
			}))
		}
	}

	job, err := s.jobs.ClaimNext(ctx)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return &DispatchOutcome{Message: "no pending jobs"}, nil
	}
	s.publish(ctx, event.NewEvent(event.TypeJobClaimed, job, nil))

	invoiceID, err := s.process(ctx, job)
	if err != nil {
		reason := err.Error()
		s.logger.Error("Job failed",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.String("owner_id", job.OwnerID),
			zap.Error(err))

		// the request context may already be cancelled; the terminal write must still land
		finishCtx := context.WithoutCancel(ctx)
		if _, markErr := s.jobs.MarkFailed(finishCtx, job.ID, reason); markErr != nil {
			s.logger.Error("Failed to mark job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		// chat delivery may be slow; it must not hold up the dispatch response
		if s.events != nil {
			s.events.PublishAsync(finishCtx, event.NewEvent(event.TypeJobFailed, job,
				map[string]interface{}{event.KeyReason: reason}))
		}

		return &DispatchOutcome{
			JobID:   job.ID,
			Status:  entity.JobStatusFailed,
			Message: fmt.Sprintf("job %s failed: %s", job.ID, reason),
		}, fmt.Errorf("%w: %s", ErrJobFailed, reason)
	}

	s.publish(ctx, event.NewEvent(event.TypeJobCompleted, job,
		map[string]interface{}{event.KeyInvoiceID: invoiceID}))

	return &DispatchOutcome{
		JobID:     job.ID,
		Status:    entity.JobStatusCompleted,
		InvoiceID: invoiceID,
		Message:   fmt.Sprintf("job %s processed", job.ID),
	}, nil
}

// process never lets a panic escape; it becomes the job's failure reason
func (s *dispatchServiceImpl) process(ctx context.Context, job *entity.Job) (invoiceID int64, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("Job processing panicked", zap.String("job_id", job.ID), zap.Any("panic", p))
			err = fmt.Errorf("internal error: %v", p)
		}
	}()

	res, err := s.extractor.Extract(ctx, job.Kind, job.Payload)
	if err != nil {
		return 0, err
	}

	invoice := s.reconciler.Reconcile(res.Fields, res.Method)
	invoice.File = s.retainOriginal(ctx, job)

	invoiceID, err = s.invoices.Add(ctx, job.OwnerID, invoice)
	if err != nil {
		s.discardOriginal(context.WithoutCancel(ctx), job, invoice.File)
		return 0, fmt.Errorf("%w: invoice could not be saved", entity.ErrPersistence)
	}

	result, err := json.Marshal(struct {
		InvoiceID int64           `json:"invoice_id"`
		Invoice   *entity.Invoice `json:"invoice"`
	}{invoiceID, invoice})
	if err != nil {
		return 0, fmt.Errorf("failed to encode job result: %w", err)
	}

	// the invoice is already committed; a missed status update leaves a
	// processing row that the stale sweep will close
	done, err := s.jobs.MarkCompleted(context.WithoutCancel(ctx), job.ID, result)
	if err != nil {
		s.logger.Error("Failed to mark job completed",
			zap.String("job_id", job.ID),
			zap.Int64("invoice_id", invoiceID),
			zap.Error(err))
	} else if !done {
		s.logger.Warn("Job was no longer processing when completed", zap.String("job_id", job.ID))
	}

	return invoiceID, nil
}

// retainOriginal stores the document bytes; failure is logged and tolerated
func (s *dispatchServiceImpl) retainOriginal(ctx context.Context, job *entity.Job) *entity.FileRef {
	if s.files == nil {
		return nil
	}

	contentType, ext := documentFormat(job.Kind, job.Payload)
	key := fmt.Sprintf("users/%s/invoices/%s.%s", safeSegment(job.OwnerID), job.ID, ext)

	ref, err := s.files.Put(ctx, key, job.Payload, contentType)
	if err != nil {
		s.logger.Warn("Failed to retain original document",
			zap.String("job_id", job.ID),
			zap.String("key", key),
			zap.Error(err))
		return nil
	}
	ref.ResourceKind = string(job.Kind)
	return ref
}

// discardOriginal removes a retained document whose invoice was never saved
func (s *dispatchServiceImpl) discardOriginal(ctx context.Context, job *entity.Job, ref *entity.FileRef) {
	if s.files == nil || ref == nil {
		return
	}
	if err := s.files.Delete(ctx, ref); err != nil {
		s.logger.Warn("Failed to remove orphaned document",
			zap.String("job_id", job.ID),
			zap.String("locator", ref.Locator),
			zap.Error(err))
	}
}

// publish delivers evt; subscriber errors never change the job outcome
func (s *dispatchServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("Failed to publish job event",
			zap.String("event_type", evt.Type.String()),
			zap.String("job_id", evt.JobID()),
			zap.Error(err))
	}
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// safeSegment makes an owner id usable as one path segment
func safeSegment(s string) string {
	s = unsafeSegment.ReplaceAllString(s, "_")
	if s == "" {
		return "_"
	}
	return s
}

func documentFormat(kind entity.DocumentKind, data []byte) (contentType, ext string) {
	if kind == entity.DocumentPDF {
		return "application/pdf", "pdf"
	}
	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg":
		return ct, "jpg"
	case "image/png":
		return ct, "png"
	case "image/gif":
		return ct, "gif"
	case "image/webp":
		return ct, "webp"
	default:
		if isHEIC(data) {
			return "image/heic", "heic"
		}
		return "application/octet-stream", "bin"
	}
}

func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}
