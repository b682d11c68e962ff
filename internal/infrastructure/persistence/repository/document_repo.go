package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

const documentColumns = `
	number, kind, status, linked_number, amount, currency,
	vendor, requester, approver, description,
	submitted_at, deadline, po_approved_date, payment_date, expected_landing_date,
	landed_date, customs_submission_date, quotes_date, adjudication_date, ordered_date,
	quotes_link, proof_of_purchase_link,
	urgent, customs_required, shipped, customs_cleared, goods_landed,
	notes, adjudication_notes, days_open, completion_pct, queue_position,
	last_modified, last_modified_by`

// DocumentRepository implements port.DocumentStore on sqlite
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// FindByNumber retrieves a document and the version it was read at
func (r *DocumentRepository) FindByNumber(ctx context.Context, number string) (*entity.Document, port.RowRef, error) {
	query := `SELECT id, version, ` + documentColumns + ` FROM documents WHERE number = ?`

	var ref port.RowRef
	doc, err := scanDocument(r.getExecutor(ctx).QueryRowContext(ctx, query, number), &ref.ID, &ref.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.RowRef{}, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get document", zap.String("number", number), zap.Error(err))
		return nil, port.RowRef{}, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, ref, nil
}

// ReplaceRow rewrites the row read at ref. The row must still carry the
// version it was read at. Columns owned by UpdateTracking are left as they
// are, apart from the queue position.
func (r *DocumentRepository) ReplaceRow(ctx context.Context, ref port.RowRef, doc *entity.Document) error {
	query := `
		UPDATE documents SET
			number = ?, kind = ?, status = ?, amount = ?, currency = ?,
			vendor = ?, requester = ?, approver = ?, description = ?,
			submitted_at = ?, deadline = ?, po_approved_date = ?, payment_date = ?, expected_landing_date = ?,
			landed_date = ?, customs_submission_date = ?, quotes_date = ?, adjudication_date = ?,
			quotes_link = ?, proof_of_purchase_link = ?,
			urgent = ?, customs_required = ?,
			notes = ?, adjudication_notes = ?, queue_position = ?,
			last_modified = ?, last_modified_by = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`

	args := append(replaceArgs(doc), ref.ID, ref.Version)
	result, err := r.getExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to replace document", zap.String("number", doc.Number), zap.Error(err))
		return fmt.Errorf("failed to replace document: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = r.getExecutor(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE id = ?`, ref.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check document row: %w", err)
	}
	if exists == 0 {
		return port.ErrNotFound
	}
	return port.ErrStaleRow
}

// AppendRow inserts a new document
func (r *DocumentRepository) AppendRow(ctx context.Context, kind workflow.Kind, doc *entity.Document) error {
	if doc.Kind == "" {
		doc.Kind = kind
	}
	if doc.Kind != kind {
		return fmt.Errorf("document %s is %s, not %s", doc.Number, doc.Kind, kind)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", 34), ", ")
	query := `INSERT INTO documents (` + documentColumns + `) VALUES (` + placeholders + `)`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query, documentArgs(doc)...)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return port.ErrDuplicate
		}
		r.logger.Error("Failed to append document", zap.String("number", doc.Number), zap.Error(err))
		return fmt.Errorf("failed to append document: %w", err)
	}
	return nil
}

// ListByStatus returns documents of kind in any of statuses, in insertion order
func (r *DocumentRepository) ListByStatus(ctx context.Context, kind workflow.Kind, statuses ...workflow.Status) ([]*entity.Document, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	args := []interface{}{string(kind)}
	for _, s := range statuses {
		args = append(args, string(s))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	query := `SELECT id, version, ` + documentColumns + `
		FROM documents
		WHERE kind = ? AND status IN (` + placeholders + `)
		ORDER BY id`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.String("kind", string(kind)), zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		var id, version int64
		doc, err := scanDocument(rows, &id, &version)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateTracking writes the non-nil tracking columns without bumping the version
func (r *DocumentRepository) UpdateTracking(ctx context.Context, number string, update entity.TrackingUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.QueuePosition != nil {
		add("queue_position", *update.QueuePosition)
	}
	if update.CompletionPct != nil {
		add("completion_pct", *update.CompletionPct)
	}
	if update.DaysOpen != nil {
		add("days_open", *update.DaysOpen)
	}
	if update.Shipped != nil {
		add("shipped", string(*update.Shipped))
	}
	if update.CustomsCleared != nil {
		add("customs_cleared", string(*update.CustomsCleared))
	}
	if update.GoodsLanded != nil {
		add("goods_landed", string(*update.GoodsLanded))
	}
	if update.OrderedDate != nil {
		add("ordered_date", timeToDB(*update.OrderedDate))
	}
	if update.LinkedNumber != nil {
		add("linked_number", *update.LinkedNumber)
	}

	query := `UPDATE documents SET ` + strings.Join(sets, ", ") + ` WHERE number = ?`
	args = append(args, number)

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update tracking", zap.String("number", number), zap.Error(err))
		return fmt.Errorf("failed to update tracking: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return port.ErrNotFound
	}
	return nil
}

func (r *DocumentRepository) getExecutor(ctx context.Context) executor {
	return getExecutor(ctx, r.db)
}

func documentArgs(d *entity.Document) []interface{} {
	return []interface{}{
		d.Number, string(d.Kind), string(d.Status), d.LinkedNumber, d.Amount, d.Currency,
		d.Vendor, d.Requester, d.ApproverRef, d.Description,
		timeToDB(d.SubmittedAt), timeToDB(d.Deadline), timeToDB(d.POApprovedDate),
		timeToDB(d.PaymentDate), timeToDB(d.ExpectedLandingDate),
		timeToDB(d.LandedDate), timeToDB(d.CustomsSubmissionDate), timeToDB(d.QuotesDate),
		timeToDB(d.AdjudicationDate), timeToDB(d.OrderedDate),
		d.QuotesLink, d.ProofOfPurchaseLink,
		string(d.Urgent), string(d.CustomsRequired), string(d.Shipped), string(d.CustomsCleared), string(d.GoodsLanded),
		d.Notes, d.AdjudicationNotes, d.DaysOpen, d.CompletionPct, d.QueuePosition,
		timeToDB(d.LastModified), d.LastModifiedBy,
	}
}

// replaceArgs matches the SET list of ReplaceRow
func replaceArgs(d *entity.Document) []interface{} {
	return []interface{}{
		d.Number, string(d.Kind), string(d.Status), d.Amount, d.Currency,
		d.Vendor, d.Requester, d.ApproverRef, d.Description,
		timeToDB(d.SubmittedAt), timeToDB(d.Deadline), timeToDB(d.POApprovedDate),
		timeToDB(d.PaymentDate), timeToDB(d.ExpectedLandingDate),
		timeToDB(d.LandedDate), timeToDB(d.CustomsSubmissionDate), timeToDB(d.QuotesDate),
		timeToDB(d.AdjudicationDate),
		d.QuotesLink, d.ProofOfPurchaseLink,
		string(d.Urgent), string(d.CustomsRequired),
		d.Notes, d.AdjudicationNotes, d.QueuePosition,
		timeToDB(d.LastModified), d.LastModifiedBy,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner, id, version *int64) (*entity.Document, error) {
	var d entity.Document
	var kind, status string
	var urgent, customsRequired, shipped, customsCleared, goodsLanded string
	var submitted, deadline, poApproved, payment, landing, landed, customsSubmission, quotes, adjudication, ordered, modified string

	err := row.Scan(
		id, version,
		&d.Number, &kind, &status, &d.LinkedNumber, &d.Amount, &d.Currency,
		&d.Vendor, &d.Requester, &d.ApproverRef, &d.Description,
		&submitted, &deadline, &poApproved, &payment, &landing,
		&landed, &customsSubmission, &quotes, &adjudication, &ordered,
		&d.QuotesLink, &d.ProofOfPurchaseLink,
		&urgent, &customsRequired, &shipped, &customsCleared, &goodsLanded,
		&d.Notes, &d.AdjudicationNotes, &d.DaysOpen, &d.CompletionPct, &d.QueuePosition,
		&modified, &d.LastModifiedBy,
	)
	if err != nil {
		return nil, err
	}

	d.Kind = workflow.Kind(kind)
	d.Status = workflow.Status(status)
	d.Urgent = entity.Flag(urgent)
	d.CustomsRequired = entity.Flag(customsRequired)
	d.Shipped = entity.Flag(shipped)
	d.CustomsCleared = entity.Flag(customsCleared)
	d.GoodsLanded = entity.Flag(goodsLanded)

	dates := []struct {
		raw string
		dst *time.Time
	}{
		{submitted, &d.SubmittedAt},
		{deadline, &d.Deadline},
		{poApproved, &d.POApprovedDate},
		{payment, &d.PaymentDate},
		{landing, &d.ExpectedLandingDate},
		{landed, &d.LandedDate},
		{customsSubmission, &d.CustomsSubmissionDate},
		{quotes, &d.QuotesDate},
		{adjudication, &d.AdjudicationDate},
		{ordered, &d.OrderedDate},
		{modified, &d.LastModified},
	}
	for _, f := range dates {
		t, err := timeFromDB(f.raw)
		if err != nil {
			return nil, fmt.Errorf("parse date %q of %s: %w", f.raw, d.Number, err)
		}
		*f.dst = t
	}

	return &d, nil
}

// Verify interface compliance
var _ port.DocumentStore = (*DocumentRepository)(nil)
