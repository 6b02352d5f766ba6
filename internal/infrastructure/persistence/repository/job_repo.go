package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"github.com/facturia/invoice-pipeline/internal/domain/workflow"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/persistence/sqldb"
	"github.com/facturia/invoice-pipeline/pkg/database"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobRepository implements port.JobRepository
type JobRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *sqldb.DB, logger *zap.Logger) *JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue inserts a pending job
func (r *JobRepository) Enqueue(ctx context.Context, kind entity.DocumentKind, payload []byte, ownerID string) (string, error) {
	id := uuid.NewString()

	query := r.db.Rebind(`
		INSERT INTO jobs (id, kind, status, owner_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		id, string(kind), workflow.StatePending.String(), ownerID, payload, r.now())
	if err != nil {
		r.logger.Error("Failed to enqueue job",
			zap.String("kind", string(kind)),
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	r.logger.Info("Job enqueued",
		zap.String("job_id", id),
		zap.String("kind", string(kind)),
		zap.String("owner_id", ownerID),
		zap.Int("payload_bytes", len(payload)))
	return id, nil
}

// claimQuery selects the oldest job in a state. On Postgres the row lock
// skips jobs another transaction is claiming.
func claimQuery(d database.Dialect) string {
	return database.Rebind(d, `
			SELECT id, kind, status, owner_id, payload, created_at
			FROM jobs
			WHERE status = ?
			ORDER BY created_at ASC, id ASC
			LIMIT 1`+d.LockClause())
}

// ClaimNext selects the oldest pending job and moves it to processing in one transaction.
// On postgres the select takes a SKIP LOCKED row lock; on sqlite the transaction is
// opened IMMEDIATE so claimers serialize, and the status guard on the update keeps a
// late claimer from taking a row another transaction already moved.
func (r *JobRepository) ClaimNext(ctx context.Context) (*entity.Job, error) {
	var claimed *entity.Job

	err := r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		from, to, err := workflow.Jobs.Edge(workflow.TriggerClaim)
		if err != nil {
			return err
		}

		job := &entity.Job{}
		var kind string
		err = exec.QueryRowContext(txCtx, claimQuery(r.db.Dialect()), from.String()).Scan(
			&job.ID, &kind, &job.Status, &job.OwnerID, &job.Payload, &job.CreatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to select pending job: %w", err)
		}
		job.Kind = entity.DocumentKind(kind)

		startedAt := r.now()
		updateQuery := r.db.Rebind(`
			UPDATE jobs SET status = ?, started_at = ?
			WHERE id = ? AND status = ?
		`)
		res, err := exec.ExecContext(txCtx, updateQuery,
			to.String(), startedAt, job.ID, from.String())
		if err != nil {
			return fmt.Errorf("failed to mark job processing: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		job.Status = to.String()
		job.StartedAt = &startedAt
		job.HasPayload = job.Payload != nil
		claimed = job
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to claim job", zap.Error(err))
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if claimed != nil {
		r.logger.Info("Job claimed",
			zap.String("job_id", claimed.ID),
			zap.String("kind", string(claimed.Kind)),
			zap.String("owner_id", claimed.OwnerID))
	}
	return claimed, nil
}

// MarkCompleted finishes a processing job with its result
func (r *JobRepository) MarkCompleted(ctx context.Context, id string, result json.RawMessage) (bool, error) {
	var resultText sql.NullString
	if len(result) > 0 {
		resultText = sql.NullString{String: string(result), Valid: true}
	}
	return r.finish(ctx, id, workflow.TriggerComplete, resultText, sql.NullString{})
}

// MarkFailed finishes a processing job with an error description
func (r *JobRepository) MarkFailed(ctx context.Context, id string, reason string) (bool, error) {
	return r.finish(ctx, id, workflow.TriggerFail, sql.NullString{}, sql.NullString{String: reason, Valid: true})
}

func (r *JobRepository) finish(ctx context.Context, id string, trigger workflow.Trigger, result, errText sql.NullString) (bool, error) {
	from, to, err := workflow.Jobs.Edge(trigger)
	if err != nil {
		return false, err
	}
	status := to.String()

	query := r.db.Rebind(`
		UPDATE jobs
		SET status = ?, result = ?, error = ?, payload = NULL, finished_at = ?
		WHERE id = ? AND status = ?
	`)

	res, err := r.db.Executor(ctx).ExecContext(ctx, query,
		status, result, errText, r.now(), id, from.String())
	if err != nil {
		r.logger.Error("Failed to finish job",
			zap.String("job_id", id),
			zap.String("status", status),
			zap.Error(err))
		return false, fmt.Errorf("failed to mark job %s: %w", status, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		r.logger.Warn("Job not in processing, terminal transition skipped",
			zap.String("job_id", id),
			zap.String("status", status))
		return false, nil
	}

	r.logger.Info("Job finished",
		zap.String("job_id", id),
		zap.String("status", status))
	return true, nil
}

// GetByIDForOwner returns the job status snapshot without its payload
func (r *JobRepository) GetByIDForOwner(ctx context.Context, id, ownerID string) (*entity.Job, error) {
	query := r.db.Rebind(`
		SELECT id, kind, status, owner_id, payload IS NOT NULL, result, error,
			created_at, started_at, finished_at
		FROM jobs
		WHERE id = ? AND owner_id = ?
	`)

	job := &entity.Job{}
	var kind string
	var result, errText sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := r.db.Executor(ctx).QueryRowContext(ctx, query, id, ownerID).Scan(
		&job.ID, &kind, &job.Status, &job.OwnerID, &job.HasPayload, &result, &errText,
		&job.CreatedAt, &startedAt, &finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get job", zap.String("job_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.Kind = entity.DocumentKind(kind)
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	job.Error = errText.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return job, nil
}

// FailStale moves jobs stuck in processing past olderThan to failed
func (r *JobRepository) FailStale(ctx context.Context, olderThan time.Duration, reason string) (int64, error) {
	from, to, err := workflow.Jobs.Edge(workflow.TriggerExpire)
	if err != nil {
		return 0, err
	}

	now := r.now()
	query := r.db.Rebind(`
		UPDATE jobs
		SET status = ?, error = ?, payload = NULL, finished_at = ?
		WHERE status = ? AND started_at < ?
	`)

	res, err := r.db.Executor(ctx).ExecContext(ctx, query,
		to.String(), reason, now, from.String(), now.Add(-olderThan))
	if err != nil {
		r.logger.Error("Failed to fail stale jobs", zap.Error(err))
		return 0, fmt.Errorf("failed to fail stale jobs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		r.logger.Warn("Stale jobs failed",
			zap.Int64("count", n),
			zap.Duration("older_than", olderThan))
	}
	return n, nil
}

// Verify interface compliance
var _ port.JobRepository = (*JobRepository)(nil)
