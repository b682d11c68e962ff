package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// Event represents a domain event about one document
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	DocNumber     string                 `json:"document_number"`
	Kind          workflow.Kind          `json:"kind"`
	OldStatus     workflow.Status        `json:"old_status,omitempty"`
	NewStatus     workflow.Status        `json:"new_status,omitempty"`
	Actor         string                 `json:"actor"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewStatusChanged creates the event emitted after a committed transition
func NewStatusChanged(docNumber string, kind workflow.Kind, from, to workflow.Status, actor string, at time.Time) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          TypeStatusChanged,
		DocNumber:     docNumber,
		Kind:          kind,
		OldStatus:     from,
		NewStatus:     to,
		Actor:         actor,
		Payload:       map[string]interface{}{},
		Timestamp:     at,
		CorrelationID: id,
	}
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	c := *e
	c.Payload = newPayload
	return &c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// Entered reports whether the transition moved into status
func (e *Event) Entered(status workflow.Status) bool {
	return e.NewStatus == status && e.OldStatus != status
}

// Left reports whether the transition moved out of status
func (e *Event) Left(status workflow.Status) bool {
	return e.OldStatus == status && e.NewStatus != status
}
