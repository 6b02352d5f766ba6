package workflow

// Trigger is an action that moves a job between states
type Trigger string

const (
	TriggerClaim    Trigger = "CLAIM"
	TriggerComplete Trigger = "COMPLETE"
	TriggerFail     Trigger = "FAIL"
	// TriggerExpire is fired by the stale sweep
	TriggerExpire Trigger = "EXPIRE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
