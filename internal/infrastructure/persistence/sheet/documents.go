package sheet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

const (
	colNumber  = "Number"
	colKind    = "Kind"
	colStatus  = "Status"
	colVersion = "Version"
)

// Columns written only through UpdateTracking. ReplaceRow leaves them alone.
var trackingHeaders = []string{
	"Completion %", "Days Open", "Shipped", "Customs Cleared", "Goods Landed", "Ordered Date", "Linked Number",
}

type column struct {
	header string
	get    func(d *entity.Document) string
	set    func(d *entity.Document, v string) error
}

func textColumn(header string, field func(d *entity.Document) *string) column {
	return column{
		header: header,
		get:    func(d *entity.Document) string { return *field(d) },
		set:    func(d *entity.Document, v string) error { *field(d) = v; return nil },
	}
}

func timeColumn(header string, field func(d *entity.Document) *time.Time) column {
	return column{
		header: header,
		get:    func(d *entity.Document) string { return formatTime(*field(d)) },
		set: func(d *entity.Document, v string) error {
			t, err := parseTime(v)
			if err != nil {
				return err
			}
			*field(d) = t
			return nil
		},
	}
}

func flagColumn(header string, field func(d *entity.Document) *entity.Flag) column {
	return column{
		header: header,
		get:    func(d *entity.Document) string { return string(*field(d)) },
		set:    func(d *entity.Document, v string) error { *field(d) = entity.ParseFlag(v); return nil },
	}
}

func intColumn(header string, field func(d *entity.Document) *int) column {
	return column{
		header: header,
		get:    func(d *entity.Document) string { return strconv.Itoa(*field(d)) },
		set: func(d *entity.Document, v string) error {
			if v == "" {
				*field(d) = 0
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*field(d) = n
			return nil
		},
	}
}

var documentColumns = []column{
	textColumn(colNumber, func(d *entity.Document) *string { return &d.Number }),
	{
		header: colKind,
		get:    func(d *entity.Document) string { return string(d.Kind) },
		set:    func(d *entity.Document, v string) error { d.Kind = workflow.Kind(v); return nil },
	},
	{
		header: colStatus,
		get:    func(d *entity.Document) string { return string(d.Status) },
		set:    func(d *entity.Document, v string) error { d.Status = workflow.Status(v); return nil },
	},
	textColumn("Linked Number", func(d *entity.Document) *string { return &d.LinkedNumber }),
	{
		header: "Amount",
		get: func(d *entity.Document) string {
			if !d.Amount.Valid {
				return ""
			}
			return d.Amount.Decimal.String()
		},
		set: func(d *entity.Document, v string) error {
			if v == "" {
				d.Amount = decimal.NullDecimal{}
				return nil
			}
			amount, err := decimal.NewFromString(v)
			if err != nil {
				return err
			}
			d.Amount = decimal.NewNullDecimal(amount)
			return nil
		},
	},
	textColumn("Currency", func(d *entity.Document) *string { return &d.Currency }),
	textColumn("Vendor", func(d *entity.Document) *string { return &d.Vendor }),
	textColumn("Requester", func(d *entity.Document) *string { return &d.Requester }),
	textColumn("Approver", func(d *entity.Document) *string { return &d.ApproverRef }),
	textColumn("Description", func(d *entity.Document) *string { return &d.Description }),
	timeColumn("Submitted At", func(d *entity.Document) *time.Time { return &d.SubmittedAt }),
	timeColumn("Deadline", func(d *entity.Document) *time.Time { return &d.Deadline }),
	timeColumn("PO Approved Date", func(d *entity.Document) *time.Time { return &d.POApprovedDate }),
	timeColumn("Payment Date", func(d *entity.Document) *time.Time { return &d.PaymentDate }),
	timeColumn("Expected Landing Date", func(d *entity.Document) *time.Time { return &d.ExpectedLandingDate }),
	timeColumn("Landed Date", func(d *entity.Document) *time.Time { return &d.LandedDate }),
	timeColumn("Customs Submission Date", func(d *entity.Document) *time.Time { return &d.CustomsSubmissionDate }),
	timeColumn("Quotes Date", func(d *entity.Document) *time.Time { return &d.QuotesDate }),
	timeColumn("Adjudication Date", func(d *entity.Document) *time.Time { return &d.AdjudicationDate }),
	timeColumn("Ordered Date", func(d *entity.Document) *time.Time { return &d.OrderedDate }),
	textColumn("Quotes Link", func(d *entity.Document) *string { return &d.QuotesLink }),
	textColumn("Proof of Purchase Link", func(d *entity.Document) *string { return &d.ProofOfPurchaseLink }),
	flagColumn("Urgent", func(d *entity.Document) *entity.Flag { return &d.Urgent }),
	flagColumn("Customs Required", func(d *entity.Document) *entity.Flag { return &d.CustomsRequired }),
	flagColumn("Shipped", func(d *entity.Document) *entity.Flag { return &d.Shipped }),
	flagColumn("Customs Cleared", func(d *entity.Document) *entity.Flag { return &d.CustomsCleared }),
	flagColumn("Goods Landed", func(d *entity.Document) *entity.Flag { return &d.GoodsLanded }),
	textColumn("Notes", func(d *entity.Document) *string { return &d.Notes }),
	textColumn("Adjudication Notes", func(d *entity.Document) *string { return &d.AdjudicationNotes }),
	intColumn("Days Open", func(d *entity.Document) *int { return &d.DaysOpen }),
	intColumn("Completion %", func(d *entity.Document) *int { return &d.CompletionPct }),
	intColumn("Queue Position", func(d *entity.Document) *int { return &d.QueuePosition }),
	timeColumn("Last Modified", func(d *entity.Document) *time.Time { return &d.LastModified }),
	textColumn("Last Modified By", func(d *entity.Document) *string { return &d.LastModifiedBy }),
}

func documentHeaders() []string {
	headers := make([]string, 0, len(documentColumns)+1)
	for _, c := range documentColumns {
		headers = append(headers, c.header)
	}
	return append(headers, colVersion)
}

func encodeDocument(d *entity.Document, version int64) map[string]string {
	values := make(map[string]string, len(documentColumns)+1)
	for _, c := range documentColumns {
		values[c.header] = c.get(d)
	}
	values[colVersion] = strconv.FormatInt(version, 10)
	return values
}

func decodeDocument(r record) (*entity.Document, port.RowRef, error) {
	var d entity.Document
	for _, c := range documentColumns {
		if err := c.set(&d, r.get(c.header)); err != nil {
			return nil, port.RowRef{}, fmt.Errorf("row %d column %q: %w", r.row, c.header, err)
		}
	}

	version := int64(1)
	if v := r.get(colVersion); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, port.RowRef{}, fmt.Errorf("row %d column %q: %w", r.row, colVersion, err)
		}
		version = n
	}
	return &d, port.RowRef{ID: int64(r.row), Version: version}, nil
}

// DocumentStore implements port.DocumentStore on the Documents sheet. The
// row reference is the sheet row number.
type DocumentStore struct {
	wb *Workbook
}

// NewDocumentStore creates a store over wb
func NewDocumentStore(wb *Workbook) *DocumentStore {
	return &DocumentStore{wb: wb}
}

func (s *DocumentStore) find(number string) (*entity.Document, port.RowRef, error) {
	rows, err := s.wb.rows(DocumentsSheet)
	if err != nil {
		return nil, port.RowRef{}, err
	}
	for _, r := range rows {
		if r.get(colNumber) == number {
			return decodeDocument(r)
		}
	}
	return nil, port.RowRef{}, port.ErrNotFound
}

// FindByNumber returns the document on the row with the given number
func (s *DocumentStore) FindByNumber(ctx context.Context, number string) (*entity.Document, port.RowRef, error) {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()
	return s.find(number)
}

// ReplaceRow rewrites the row at ref if it still holds the version read
func (s *DocumentStore) ReplaceRow(ctx context.Context, ref port.RowRef, doc *entity.Document) error {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()

	rows, err := s.wb.rows(DocumentsSheet)
	if err != nil {
		return err
	}

	var current *record
	for i := range rows {
		if int64(rows[i].row) == ref.ID {
			current = &rows[i]
			break
		}
	}
	if current == nil {
		return port.ErrNotFound
	}

	existing, currentRef, err := decodeDocument(*current)
	if err != nil {
		return err
	}
	if existing.Number != doc.Number || currentRef.Version != ref.Version {
		return port.ErrStaleRow
	}

	values := encodeDocument(doc, ref.Version+1)
	for _, h := range trackingHeaders {
		delete(values, h)
	}
	return s.wb.commitRow(DocumentsSheet, current.row, values)
}

// AppendRow adds a document below the last used row
func (s *DocumentStore) AppendRow(ctx context.Context, kind workflow.Kind, doc *entity.Document) error {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()

	if doc.Kind == "" {
		doc.Kind = kind
	}
	if doc.Kind != kind {
		return fmt.Errorf("document %s is %s, not %s", doc.Number, doc.Kind, kind)
	}

	if _, _, err := s.find(doc.Number); err == nil {
		return port.ErrDuplicate
	} else if !errors.Is(err, port.ErrNotFound) {
		return err
	}

	last, err := s.wb.lastRow(DocumentsSheet)
	if err != nil {
		return err
	}
	return s.wb.commitRow(DocumentsSheet, last+1, encodeDocument(doc, 1))
}

// ListByStatus returns the matching documents in sheet order
func (s *DocumentStore) ListByStatus(ctx context.Context, kind workflow.Kind, statuses ...workflow.Status) ([]*entity.Document, error) {
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()

	wanted := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		wanted[string(st)] = true
	}

	rows, err := s.wb.rows(DocumentsSheet)
	if err != nil {
		return nil, err
	}

	var docs []*entity.Document
	for _, r := range rows {
		if r.get(colKind) != string(kind) || !wanted[r.get(colStatus)] {
			continue
		}
		doc, _, err := decodeDocument(r)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// UpdateTracking writes only the tracking cells named by update
func (s *DocumentStore) UpdateTracking(ctx context.Context, number string, update entity.TrackingUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()

	doc, ref, err := s.find(number)
	if err != nil {
		return err
	}
	update.Apply(doc)

	values := make(map[string]string)
	set := func(header string) {
		for _, c := range documentColumns {
			if c.header == header {
				values[header] = c.get(doc)
				return
			}
		}
	}
	if update.QueuePosition != nil {
		set("Queue Position")
	}
	if update.CompletionPct != nil {
		set("Completion %")
	}
	if update.DaysOpen != nil {
		set("Days Open")
	}
	if update.Shipped != nil {
		set("Shipped")
	}
	if update.CustomsCleared != nil {
		set("Customs Cleared")
	}
	if update.GoodsLanded != nil {
		set("Goods Landed")
	}
	if update.OrderedDate != nil {
		set("Ordered Date")
	}
	if update.LinkedNumber != nil {
		set("Linked Number")
	}

	return s.wb.commitRow(DocumentsSheet, int(ref.ID), values)
}

// Verify interface compliance
var _ port.DocumentStore = (*DocumentStore)(nil)
