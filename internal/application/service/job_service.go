package service

import (
	"context"
	"fmt"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"go.uber.org/zap"
)

// JobService is the submission and status-polling side of the job queue
type JobService interface {
	// Submit enqueues a document and returns its job id without waiting for extraction
	Submit(ctx context.Context, ownerID string, kind entity.DocumentKind, data []byte) (string, error)

	// Status returns the owner's job or ErrNotFoundOrForbidden
	Status(ctx context.Context, jobID, ownerID string) (*entity.Job, error)
}

type jobServiceImpl struct {
	jobs            port.JobRepository
	maxPayloadBytes int
	logger          *zap.Logger
}

// NewJobService creates a new JobService. maxPayloadBytes <= 0 disables the size check.
func NewJobService(jobs port.JobRepository, maxPayloadBytes int, logger *zap.Logger) JobService {
	return &jobServiceImpl{
		jobs:            jobs,
		maxPayloadBytes: maxPayloadBytes,
		logger:          logger,
	}
}

func (s *jobServiceImpl) Submit(ctx context.Context, ownerID string, kind entity.DocumentKind, data []byte) (string, error) {
	if ownerID == "" {
		return "", entity.ErrUnauthorized
	}
	if kind != entity.DocumentImage && kind != entity.DocumentPDF {
		return "", fmt.Errorf("%w: unknown document kind %q", entity.ErrValidation, kind)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: no document was sent", entity.ErrValidation)
	}
	if s.maxPayloadBytes > 0 && len(data) > s.maxPayloadBytes {
		return "", fmt.Errorf("%w: document is %d bytes, limit is %d", entity.ErrValidation, len(data), s.maxPayloadBytes)
	}

	id, err := s.jobs.Enqueue(ctx, kind, data, ownerID)
	if err != nil {
		return "", fmt.Errorf("%w: could not create job: %v", entity.ErrPersistence, err)
	}
	return id, nil
}

func (s *jobServiceImpl) Status(ctx context.Context, jobID, ownerID string) (*entity.Job, error) {
	job, err := s.jobs.GetByIDForOwner(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, entity.ErrNotFoundOrForbidden
	}
	return job, nil
}
