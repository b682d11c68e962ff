package workflow

import (
	"context"
	"time"

	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// ProcurementRole is the role required to change a document status
const ProcurementRole = "procurement"

// WorkflowEngine applies status transitions to procurement documents
type WorkflowEngine interface {
	// RequestTransition validates and applies a status change, then runs
	// post-transition processing outside the document lock
	RequestTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)

	// AllowedTransitions returns the current status and its permitted targets
	AllowedTransitions(ctx context.Context, docNumber string) (domainwf.Status, []domainwf.Status, error)
}

// TransitionRequest is one caller's request to move a document
type TransitionRequest struct {
	DocNumber string
	NewStatus domainwf.Status
	Notes     string
	Actor     string
	// SkipValidation bypasses table, required-field and business-rule checks.
	// Reserved for automated drivers that check the current status themselves.
	SkipValidation bool
	// ExpectedStatus, when set, rejects the request unless the document is
	// still in that status once the lock is held
	ExpectedStatus domainwf.Status
}

// TransitionResult describes a committed transition
type TransitionResult struct {
	Success   bool            `json:"success"`
	DocNumber string          `json:"document_number"`
	Kind      domainwf.Kind   `json:"kind"`
	OldStatus domainwf.Status `json:"old_status"`
	Status    domainwf.Status `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	AuditID   string          `json:"audit_id"`
	// Warnings lists failures of load-bearing post-transition steps
	Warnings []string `json:"warnings,omitempty"`
}

// Observer receives transition outcomes and lock wait times
type Observer interface {
	TransitionObserved(kind, from, to, outcome string)
	LockWaited(d time.Duration)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
