package event

import (
	"time"

	"github.com/facturia/invoice-pipeline/internal/domain/entity"
	"github.com/google/uuid"
)

// Payload keys
const (
	KeyReason    = "reason"
	KeyInvoiceID = "invoice_id"
	KeyCount     = "count"
)

// Event is something that happened to a job. Job is a snapshot without the
// document bytes; it is nil for events that cover several jobs.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Job       *entity.Job            `json:"job,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent creates an event with a fresh ID and timestamp
func NewEvent(eventType Type, job *entity.Job, payload map[string]interface{}) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Job:       snapshot(job),
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// JobID returns the id of the job the event is about, or ""
func (e *Event) JobID() string {
	if e.Job == nil {
		return ""
	}
	return e.Job.ID
}

// WithPayload returns a copy of the event with key set
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if str, ok := e.Payload[key].(string); ok {
		return str
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func snapshot(job *entity.Job) *entity.Job {
	if job == nil {
		return nil
	}
	cp := *job
	cp.Payload = nil
	return &cp
}
