package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// AuditRepository implements port.AuditLog
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append records one status change. Records are never updated.
func (r *AuditRepository) Append(ctx context.Context, record *entity.StatusChangeRecord) error {
	query := `
		INSERT INTO audit_log (
			id, timestamp, actor, action, document_number, kind,
			details, old_status, new_status, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		record.ID,
		timeToDB(record.Timestamp),
		record.Actor,
		record.Action,
		record.DocNumber,
		string(record.Kind),
		record.Details,
		string(record.OldStatus),
		string(record.NewStatus),
		record.Notes,
	)
	if err != nil {
		r.logger.Error("Failed to append audit record",
			zap.String("document_number", record.DocNumber),
			zap.String("id", record.ID),
			zap.Error(err))
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// ListByDocument returns the records of a document, oldest first
func (r *AuditRepository) ListByDocument(ctx context.Context, number string) ([]*entity.StatusChangeRecord, error) {
	query := `
		SELECT id, timestamp, actor, action, document_number, kind,
			details, old_status, new_status, notes
		FROM audit_log
		WHERE document_number = ?
		ORDER BY seq
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, number)
	if err != nil {
		r.logger.Error("Failed to list audit records", zap.String("document_number", number), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*entity.StatusChangeRecord
	for rows.Next() {
		var rec entity.StatusChangeRecord
		var ts, kind, oldStatus, newStatus string
		if err := rows.Scan(&rec.ID, &ts, &rec.Actor, &rec.Action, &rec.DocNumber, &kind,
			&rec.Details, &oldStatus, &newStatus, &rec.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if rec.Timestamp, err = timeFromDB(ts); err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp: %w", err)
		}
		rec.Kind = workflow.Kind(kind)
		rec.OldStatus = workflow.Status(oldStatus)
		rec.NewStatus = workflow.Status(newStatus)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Verify interface compliance
var _ port.AuditLog = (*AuditRepository)(nil)
