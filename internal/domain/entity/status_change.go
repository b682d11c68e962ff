package entity

import (
	"time"

	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// ActionStatusChange is the audit action recorded for every transition
const ActionStatusChange = "Status Change"

// StatusChangeRecord is the immutable audit entry of one transition
type StatusChangeRecord struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	DocNumber string          `json:"document_number"`
	Kind      workflow.Kind   `json:"kind"`
	Details   string          `json:"details"`
	OldStatus workflow.Status `json:"old_status"`
	NewStatus workflow.Status `json:"new_status"`
	Notes     string          `json:"notes,omitempty"`
}
