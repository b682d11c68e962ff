package sheet

import (
	"context"
	"fmt"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

func auditHeaders() []string {
	return []string{
		"ID", "Timestamp", "Actor", "Action", "Document Number", "Kind",
		"Details", "Old Status", "New Status", "Notes",
	}
}

// AuditLog implements port.AuditLog on the Audit Log sheet
type AuditLog struct {
	wb *Workbook
}

// NewAuditLog creates an audit log over wb
func NewAuditLog(wb *Workbook) *AuditLog {
	return &AuditLog{wb: wb}
}

// Append adds one record below the last used row
func (a *AuditLog) Append(ctx context.Context, rec *entity.StatusChangeRecord) error {
	a.wb.mu.Lock()
	defer a.wb.mu.Unlock()

	last, err := a.wb.lastRow(AuditSheet)
	if err != nil {
		return err
	}

	values := map[string]string{
		"ID":              rec.ID,
		"Timestamp":       formatTime(rec.Timestamp),
		"Actor":           rec.Actor,
		"Action":          rec.Action,
		"Document Number": rec.DocNumber,
		"Kind":            string(rec.Kind),
		"Details":         rec.Details,
		"Old Status":      string(rec.OldStatus),
		"New Status":      string(rec.NewStatus),
		"Notes":           rec.Notes,
	}
	return a.wb.commitRow(AuditSheet, last+1, values)
}

// ListByDocument returns the records of a document in sheet order
func (a *AuditLog) ListByDocument(ctx context.Context, number string) ([]*entity.StatusChangeRecord, error) {
	a.wb.mu.Lock()
	defer a.wb.mu.Unlock()

	rows, err := a.wb.rows(AuditSheet)
	if err != nil {
		return nil, err
	}

	var records []*entity.StatusChangeRecord
	for _, r := range rows {
		if r.get("Document Number") != number {
			continue
		}
		ts, err := parseTime(r.get("Timestamp"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r.row, err)
		}
		records = append(records, &entity.StatusChangeRecord{
			ID:        r.get("ID"),
			Timestamp: ts,
			Actor:     r.get("Actor"),
			Action:    r.get("Action"),
			DocNumber: r.get("Document Number"),
			Kind:      workflow.Kind(r.get("Kind")),
			Details:   r.values["Details"],
			OldStatus: workflow.Status(r.get("Old Status")),
			NewStatus: workflow.Status(r.get("New Status")),
			Notes:     r.values["Notes"],
		})
	}
	return records, nil
}

// Verify interface compliance
var _ port.AuditLog = (*AuditLog)(nil)
