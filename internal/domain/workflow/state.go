package workflow

import "github.com/facturia/invoice-pipeline/internal/domain/entity"

// State is a job status as stored in the jobs table
type State string

const (
	StatePending    State = entity.JobStatusPending
	StateProcessing State = entity.JobStatusProcessing
	StateCompleted  State = entity.JobStatusCompleted
	StateFailed     State = entity.JobStatusFailed
)

var validStates = map[State]bool{
	StatePending:    true,
	StateProcessing: true,
	StateCompleted:  true,
	StateFailed:     true,
}

var terminalStates = map[State]bool{
	StateCompleted: true,
	StateFailed:    true,
}

// IsTerminal returns true if no transition leaves the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known job status
func (s State) IsValid() bool {
	return validStates[s]
}
