package event

import (
	"testing"

	"github.com/facturia/invoice-pipeline/internal/domain/entity"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"claimed", TypeJobClaimed, true},
		{"completed", TypeJobCompleted, true},
		{"failed", TypeJobFailed, true},
		{"expired", TypeJobsExpired, true},
		{"unknown", Type("job.retried"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent_SnapshotDropsPayload(t *testing.T) {
	job := &entity.Job{ID: "j1", Kind: entity.DocumentPDF, OwnerID: "alice", Payload: []byte("%PDF")}

	evt := NewEvent(TypeJobFailed, job, map[string]interface{}{KeyReason: "boom"})

	if evt.ID == "" {
		t.Fatal("expected generated id")
	}
	if evt.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
	if evt.JobID() != "j1" {
		t.Errorf("JobID() = %q, want j1", evt.JobID())
	}
	if evt.Job.Payload != nil {
		t.Error("event job must not carry document bytes")
	}
	if job.Payload == nil {
		t.Error("original job must keep its payload")
	}
	if got := evt.GetPayloadString(KeyReason); got != "boom" {
		t.Errorf("GetPayloadString() = %q, want boom", got)
	}
}

func TestNewEvent_WithoutJob(t *testing.T) {
	evt := NewEvent(TypeJobsExpired, nil, nil)

	if evt.JobID() != "" {
		t.Errorf("JobID() = %q, want empty", evt.JobID())
	}
	if evt.Payload == nil {
		t.Fatal("payload must be initialized")
	}
	if got := evt.GetPayloadInt(KeyCount); got != 0 {
		t.Errorf("GetPayloadInt() on missing key = %d, want 0", got)
	}
}

func TestEvent_WithPayloadIsImmutable(t *testing.T) {
	original := NewEvent(TypeJobCompleted, &entity.Job{ID: "j2"}, map[string]interface{}{KeyInvoiceID: int64(7)})

	updated := original.WithPayload(KeyReason, "late")

	if _, ok := original.Payload[KeyReason]; ok {
		t.Error("original payload was modified")
	}
	if updated.GetPayloadString(KeyReason) != "late" {
		t.Error("updated payload missing key")
	}
	if updated.ID != original.ID || updated.Type != original.Type {
		t.Error("identity fields must be preserved")
	}
	if got := updated.GetPayloadInt(KeyInvoiceID); got != 7 {
		t.Errorf("GetPayloadInt() = %d, want 7", got)
	}
}

func TestEvent_GetPayloadIntConversions(t *testing.T) {
	evt := NewEvent(TypeJobsExpired, nil, map[string]interface{}{
		"i":   3,
		"f":   float64(4),
		"s":   "5",
		"i64": int64(6),
	})

	cases := map[string]int64{"i": 3, "f": 4, "s": 0, "i64": 6}
	for key, want := range cases {
		if got := evt.GetPayloadInt(key); got != want {
			t.Errorf("GetPayloadInt(%q) = %d, want %d", key, got, want)
		}
	}
}
