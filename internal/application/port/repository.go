package port

import (
	"context"
	"errors"

	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

var (
	// ErrNotFound is returned by stores when no row matches
	ErrNotFound = errors.New("not found")

	// ErrStaleRow is returned when a row changed between read and replace
	ErrStaleRow = errors.New("row changed since it was read")

	// ErrDuplicate is returned when appending a number that already exists
	ErrDuplicate = errors.New("duplicate document number")
)

// RowRef locates a document row and the version it was read at
type RowRef struct {
	ID      int64
	Version int64
}

// DocumentStore is the row-oriented register of PRs and POs
type DocumentStore interface {
	// FindByNumber returns the document and its row reference, or ErrNotFound
	FindByNumber(ctx context.Context, number string) (*entity.Document, RowRef, error)

	// ReplaceRow atomically rewrites the row read at ref. The columns written
	// by UpdateTracking, other than the queue position, keep their stored values.
	ReplaceRow(ctx context.Context, ref RowRef, doc *entity.Document) error

	// AppendRow adds a new document of the given kind
	AppendRow(ctx context.Context, kind workflow.Kind, doc *entity.Document) error

	// ListByStatus returns the documents of a kind in any of the statuses, in row order
	ListByStatus(ctx context.Context, kind workflow.Kind, statuses ...workflow.Status) ([]*entity.Document, error)

	// UpdateTracking writes only the non-nil tracking columns of a row
	UpdateTracking(ctx context.Context, number string, update entity.TrackingUpdate) error
}

// AuditLog is the append-only status change history
type AuditLog interface {
	Append(ctx context.Context, record *entity.StatusChangeRecord) error
	ListByDocument(ctx context.Context, number string) ([]*entity.StatusChangeRecord, error)
}

// ReminderStore persists delivery reminder schedules
type ReminderStore interface {
	ListByDocument(ctx context.Context, number string) ([]*entity.ReminderEntry, error)
	Upsert(ctx context.Context, entry *entity.ReminderEntry) error
	Delete(ctx context.Context, number string, condition entity.BlockingCondition) error
	DeleteByDocument(ctx context.Context, number string) error
}

// VendorDirectory answers whether a vendor is pre-approved
type VendorDirectory interface {
	IsApproved(ctx context.Context, vendor string) (bool, error)
}
