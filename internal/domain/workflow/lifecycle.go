package workflow

import (
	"fmt"
	"sort"
)

// Lifecycle is an immutable transition table
type Lifecycle struct {
	transitions map[State]map[Trigger]State
}

// Builder collects transitions for a Lifecycle
type Builder struct {
	transitions map[State]map[Trigger]State
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{transitions: make(map[State]map[Trigger]State)}
}

// Permit allows trigger to move a job from one state to another.
// It panics on unknown states or a terminal source, which are programming errors.
func (b *Builder) Permit(from State, trigger Trigger, to State) *Builder {
	if !from.IsValid() || !to.IsValid() {
		panic(fmt.Sprintf("invalid transition %s --%s--> %s", from, trigger, to))
	}
	if from.IsTerminal() {
		panic(fmt.Sprintf("terminal state %s cannot have transitions", from))
	}
	if b.transitions[from] == nil {
		b.transitions[from] = make(map[Trigger]State)
	}
	b.transitions[from][trigger] = to
	return b
}

// Build freezes the collected transitions
func (b *Builder) Build() *Lifecycle {
	cp := make(map[State]map[Trigger]State, len(b.transitions))
	for from, byTrigger := range b.transitions {
		inner := make(map[Trigger]State, len(byTrigger))
		for trigger, to := range byTrigger {
			inner[trigger] = to
		}
		cp[from] = inner
	}
	return &Lifecycle{transitions: cp}
}

// Jobs is the job lifecycle: pending jobs are claimed exactly once, and a
// processing job ends completed, failed, or failed by the stale sweep.
var Jobs = NewBuilder().
	Permit(StatePending, TriggerClaim, StateProcessing).
	Permit(StateProcessing, TriggerComplete, StateCompleted).
	Permit(StateProcessing, TriggerFail, StateFailed).
	Permit(StateProcessing, TriggerExpire, StateFailed).
	Build()

// Next returns the state trigger leads to from the given state
func (l *Lifecycle) Next(from State, trigger Trigger) (State, error) {
	to, ok := l.transitions[from][trigger]
	if !ok {
		return "", fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, from)
	}
	return to, nil
}

// CanFire reports whether trigger is permitted from the given state
func (l *Lifecycle) CanFire(from State, trigger Trigger) bool {
	_, ok := l.transitions[from][trigger]
	return ok
}

// Edge returns the single source and target state of trigger. Conditional
// updates use it to guard on the source state.
func (l *Lifecycle) Edge(trigger Trigger) (from, to State, err error) {
	found := 0
	for state, byTrigger := range l.transitions {
		if target, ok := byTrigger[trigger]; ok {
			from, to = state, target
			found++
		}
	}
	switch found {
	case 0:
		return "", "", fmt.Errorf("%w: %s is never permitted", ErrInvalidTransition, trigger)
	case 1:
		return from, to, nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrAmbiguousTrigger, trigger)
	}
}

// PermittedTriggers returns the triggers allowed from a state, sorted
func (l *Lifecycle) PermittedTriggers(from State) []Trigger {
	triggers := make([]Trigger, 0, len(l.transitions[from]))
	for trigger := range l.transitions[from] {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
