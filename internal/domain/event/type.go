package event

// Type identifies the type of job lifecycle event
type Type string

const (
	TypeJobClaimed   Type = "job.claimed"
	TypeJobCompleted Type = "job.completed"
	TypeJobFailed    Type = "job.failed"
	TypeJobsExpired  Type = "jobs.expired"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeJobClaimed,
		TypeJobCompleted,
		TypeJobFailed,
		TypeJobsExpired:
		return true
	default:
		return false
	}
}
