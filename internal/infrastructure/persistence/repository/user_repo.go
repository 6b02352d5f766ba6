package repository

import (
	"context"
	"fmt"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqldb.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetOrCreate inserts the user if the external id is new, then reads the stored row.
// Concurrent first contacts race on the unique key; the loser reads the winner's row.
func (r *UserRepository) GetOrCreate(ctx context.Context, user *entity.User) (*entity.User, error) {
	exec := r.db.Executor(ctx)

	insert := r.db.Rebind(`
		INSERT INTO users (external_id, email, trial_start, trial_end, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING
	`)
	if _, err := exec.ExecContext(ctx, insert,
		user.ExternalID, user.Email, user.TrialStart, user.TrialEnd, user.Status, user.CreatedAt,
	); err != nil {
		r.logger.Error("Failed to create user",
			zap.String("external_id", user.ExternalID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	query := r.db.Rebind(`
		SELECT id, external_id, email, trial_start, trial_end, status, created_at
		FROM users WHERE external_id = ?
	`)
	stored := &entity.User{}
	if err := exec.QueryRowContext(ctx, query, user.ExternalID).Scan(
		&stored.ID,
		&stored.ExternalID,
		&stored.Email,
		&stored.TrialStart,
		&stored.TrialEnd,
		&stored.Status,
		&stored.CreatedAt,
	); err != nil {
		r.logger.Error("Failed to get user",
			zap.String("external_id", user.ExternalID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return stored, nil
}

// UpdateStatus sets the subscription status of a user
func (r *UserRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := r.db.Rebind(`UPDATE users SET status = ? WHERE id = ?`)

	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, status, id); err != nil {
		r.logger.Error("Failed to update user status",
			zap.Int64("user_id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update user status: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
