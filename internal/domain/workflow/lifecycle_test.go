package workflow

import (
	"errors"
	"reflect"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, false},
		{StateProcessing, false},
		{StateCompleted, true},
		{StateFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	if !StateProcessing.IsValid() {
		t.Error("processing should be valid")
	}
	if State("PROCESSING").IsValid() {
		t.Error("states are lowercase job statuses")
	}
	if State("").IsValid() {
		t.Error("empty state should be invalid")
	}
}

func TestJobs_Next(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		trigger Trigger
		want    State
		wantErr bool
	}{
		{"claim pending", StatePending, TriggerClaim, StateProcessing, false},
		{"complete processing", StateProcessing, TriggerComplete, StateCompleted, false},
		{"fail processing", StateProcessing, TriggerFail, StateFailed, false},
		{"expire processing", StateProcessing, TriggerExpire, StateFailed, false},
		{"claim twice", StateProcessing, TriggerClaim, "", true},
		{"complete pending", StatePending, TriggerComplete, "", true},
		{"fail completed", StateCompleted, TriggerFail, "", true},
		{"complete failed", StateFailed, TriggerComplete, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Jobs.Next(tt.from, tt.trigger)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("Next() error = %v, want ErrInvalidTransition", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Next() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJobs_Edge(t *testing.T) {
	from, to, err := Jobs.Edge(TriggerComplete)
	if err != nil {
		t.Fatalf("Edge() unexpected error: %v", err)
	}
	if from != StateProcessing || to != StateCompleted {
		t.Errorf("Edge() = %s -> %s", from, to)
	}

	if _, _, err := Jobs.Edge(Trigger("RETRY")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Edge(unknown) error = %v", err)
	}
}

func TestLifecycle_EdgeAmbiguous(t *testing.T) {
	l := NewBuilder().
		Permit(StatePending, TriggerFail, StateFailed).
		Permit(StateProcessing, TriggerFail, StateFailed).
		Build()

	if _, _, err := l.Edge(TriggerFail); !errors.Is(err, ErrAmbiguousTrigger) {
		t.Errorf("Edge() error = %v, want ErrAmbiguousTrigger", err)
	}
}

func TestJobs_PermittedTriggers(t *testing.T) {
	got := Jobs.PermittedTriggers(StateProcessing)
	want := []Trigger{TriggerComplete, TriggerExpire, TriggerFail}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PermittedTriggers() = %v, want %v", got, want)
	}
	if len(Jobs.PermittedTriggers(StateCompleted)) != 0 {
		t.Error("terminal states permit nothing")
	}
}

func TestBuilder_BuildIsIsolated(t *testing.T) {
	b := NewBuilder().Permit(StatePending, TriggerClaim, StateProcessing)
	l := b.Build()
	b.Permit(StatePending, TriggerFail, StateFailed)

	if l.CanFire(StatePending, TriggerFail) {
		t.Error("built lifecycle changed after Build")
	}
}

func TestBuilder_PanicsOnTerminalSource(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewBuilder().Permit(StateCompleted, TriggerFail, StateFailed)
}
