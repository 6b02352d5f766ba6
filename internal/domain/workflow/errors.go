package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a trigger is not permitted from a state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrAmbiguousTrigger is returned by Edge when a trigger leaves more than one state
	ErrAmbiguousTrigger = errors.New("trigger permitted from several states")
)
