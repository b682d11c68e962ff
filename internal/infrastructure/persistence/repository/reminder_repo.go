package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
)

// ReminderRepository implements port.ReminderStore
type ReminderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReminderRepository creates a new reminder repository
func NewReminderRepository(db *sql.DB, logger *zap.Logger) *ReminderRepository {
	return &ReminderRepository{
		db:     db,
		logger: logger,
	}
}

// ListByDocument returns every schedule of a document
func (r *ReminderRepository) ListByDocument(ctx context.Context, number string) ([]*entity.ReminderEntry, error) {
	query := `
		SELECT document_number, condition, interval_days, next_due, sent_count, created_at, updated_at
		FROM reminders
		WHERE document_number = ?
		ORDER BY condition
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, number)
	if err != nil {
		r.logger.Error("Failed to list reminders", zap.String("document_number", number), zap.Error(err))
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	var entries []*entity.ReminderEntry
	for rows.Next() {
		var e entity.ReminderEntry
		var condition, nextDue, created, updated string
		if err := rows.Scan(&e.DocNumber, &condition, &e.IntervalDays, &nextDue, &e.SentCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		e.Condition = entity.BlockingCondition(condition)
		if e.NextDue, err = timeFromDB(nextDue); err != nil {
			return nil, fmt.Errorf("failed to parse next due: %w", err)
		}
		if e.CreatedAt, err = timeFromDB(created); err != nil {
			return nil, fmt.Errorf("failed to parse created at: %w", err)
		}
		if e.UpdatedAt, err = timeFromDB(updated); err != nil {
			return nil, fmt.Errorf("failed to parse updated at: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Upsert creates or replaces the schedule of a document and condition
func (r *ReminderRepository) Upsert(ctx context.Context, entry *entity.ReminderEntry) error {
	query := `
		INSERT INTO reminders (
			document_number, condition, interval_days, next_due, sent_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_number, condition) DO UPDATE SET
			interval_days = excluded.interval_days,
			next_due = excluded.next_due,
			sent_count = excluded.sent_count,
			updated_at = excluded.updated_at
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.DocNumber,
		string(entry.Condition),
		entry.IntervalDays,
		timeToDB(entry.NextDue),
		entry.SentCount,
		timeToDB(entry.CreatedAt),
		timeToDB(entry.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to upsert reminder",
			zap.String("document_number", entry.DocNumber),
			zap.String("condition", string(entry.Condition)),
			zap.Error(err))
		return fmt.Errorf("failed to upsert reminder: %w", err)
	}
	return nil
}

// Delete removes one schedule
func (r *ReminderRepository) Delete(ctx context.Context, number string, condition entity.BlockingCondition) error {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM reminders WHERE document_number = ? AND condition = ?`, number, string(condition))
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	return nil
}

// DeleteByDocument removes every schedule of a document
func (r *ReminderRepository) DeleteByDocument(ctx context.Context, number string) error {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM reminders WHERE document_number = ?`, number)
	if err != nil {
		r.logger.Error("Failed to delete reminders", zap.String("document_number", number), zap.Error(err))
		return fmt.Errorf("failed to delete reminders: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.ReminderStore = (*ReminderRepository)(nil)
