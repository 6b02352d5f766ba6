package entity

import "time"

// User subscription status constants
const (
	UserStatusTrial        = "trial"
	UserStatusTrialExpired = "trial_expired"
	UserStatusActive       = "active"
)

// User tracks the entitlement window of one external identity
type User struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	TrialStart time.Time `json:"trial_start"`
	TrialEnd   time.Time `json:"trial_end"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// CanSubmit reports whether the user may create new work
func (u *User) CanSubmit() bool {
	return u.Status != UserStatusTrialExpired
}

// TrialLapsed reports whether a trial user's window has closed at now
func (u *User) TrialLapsed(now time.Time) bool {
	return u.Status == UserStatusTrial && now.After(u.TrialEnd)
}
