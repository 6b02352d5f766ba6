package service

import (
	"context"
	"time"

	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"go.uber.org/zap"
)

// UserService maintains the trial record of authenticated callers
type UserService interface {
	// Touch creates the user on first contact and expires lapsed trials
	Touch(ctx context.Context, identity *port.Identity) (*entity.User, error)
}

type userServiceImpl struct {
	users     port.UserRepository
	trialDays int
	now       func() time.Time
	logger    *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(users port.UserRepository, trialDays int, logger *zap.Logger) UserService {
	if trialDays <= 0 {
		trialDays = 14
	}
	return &userServiceImpl{
		users:     users,
		trialDays: trialDays,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

func (s *userServiceImpl) Touch(ctx context.Context, identity *port.Identity) (*entity.User, error) {
	now := s.now()
	user, err := s.users.GetOrCreate(ctx, &entity.User{
		ExternalID: identity.Subject,
		Email:      identity.Email,
		TrialStart: now,
		TrialEnd:   now.AddDate(0, 0, s.trialDays),
		Status:     entity.UserStatusTrial,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, err
	}

	if user.TrialLapsed(now) {
		if err := s.users.UpdateStatus(ctx, user.ID, entity.UserStatusTrialExpired); err != nil {
			return nil, err
		}
		user.Status = entity.UserStatusTrialExpired
		s.logger.Info("Trial expired", zap.String("external_id", user.ExternalID))
	}
	return user, nil
}
