package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// Flag is a Y/N spreadsheet flag. The empty value means "not set".
type Flag string

const (
	FlagYes   Flag = "Y"
	FlagNo    Flag = "N"
	FlagUnset Flag = ""
)

// IsYes returns true for an affirmative flag
func (f Flag) IsYes() bool {
	return f == FlagYes
}

// ParseFlag normalises free-form input into a Flag
func ParseFlag(s string) Flag {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "Y", "YES", "TRUE", "1":
		return FlagYes
	case "N", "NO", "FALSE", "0":
		return FlagNo
	default:
		return FlagUnset
	}
}

// Document is one purchase requisition or purchase order row
type Document struct {
	Number       string          `json:"number"`
	Kind         workflow.Kind   `json:"kind"`
	Status       workflow.Status `json:"status"`
	LinkedNumber string          `json:"linked_number,omitempty"`

	Amount   decimal.NullDecimal `json:"amount"`
	Currency string              `json:"currency,omitempty"`

	Vendor      string `json:"vendor,omitempty"`
	Requester   string `json:"requester,omitempty"`
	ApproverRef string `json:"approver,omitempty"`
	Description string `json:"description,omitempty"`

	SubmittedAt           time.Time `json:"submitted_at"`
	Deadline              time.Time `json:"deadline,omitempty"`
	POApprovedDate        time.Time `json:"po_approved_date,omitempty"`
	PaymentDate           time.Time `json:"payment_date,omitempty"`
	ExpectedLandingDate   time.Time `json:"expected_landing_date,omitempty"`
	LandedDate            time.Time `json:"landed_date,omitempty"`
	CustomsSubmissionDate time.Time `json:"customs_submission_date,omitempty"`
	QuotesDate            time.Time `json:"quotes_date,omitempty"`
	AdjudicationDate      time.Time `json:"adjudication_date,omitempty"`
	OrderedDate           time.Time `json:"ordered_date,omitempty"`

	QuotesLink          string `json:"quotes_link,omitempty"`
	ProofOfPurchaseLink string `json:"proof_of_purchase_link,omitempty"`

	Urgent          Flag `json:"urgent"`
	CustomsRequired Flag `json:"customs_required"`
	Shipped         Flag `json:"shipped"`
	CustomsCleared  Flag `json:"customs_cleared"`
	GoodsLanded     Flag `json:"goods_landed"`

	Notes             string `json:"notes,omitempty"`
	AdjudicationNotes string `json:"adjudication_notes,omitempty"`

	DaysOpen      int `json:"days_open"`
	CompletionPct int `json:"completion_pct"`
	QueuePosition int `json:"queue_position,omitempty"`

	LastModified   time.Time `json:"last_modified"`
	LastModifiedBy string    `json:"last_modified_by,omitempty"`
}

// Clone returns a copy that can be mutated without touching d
func (d *Document) Clone() *Document {
	c := *d
	return &c
}

// IsUrgent returns true when the urgent flag is set
func (d *Document) IsUrgent() bool {
	return d.Urgent.IsYes()
}

// NoteTimeLayout is the timestamp prefix used for appended notes
const NoteTimeLayout = "2006-01-02 15:04"

// AppendNote returns existing with a timestamped entry appended.
// Blank notes leave the log unchanged.
func AppendNote(existing string, at time.Time, actor, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	entry := "[" + at.Format(NoteTimeLayout) + "] " + actor + ": " + note
	if strings.TrimSpace(existing) == "" {
		return entry
	}
	return existing + "\n" + entry
}

// TrackingUpdate is a column-scoped write used by post-transition processing.
// Nil fields are left untouched.
type TrackingUpdate struct {
	QueuePosition  *int
	CompletionPct  *int
	DaysOpen       *int
	Shipped        *Flag
	CustomsCleared *Flag
	GoodsLanded    *Flag
	OrderedDate    *time.Time
	LinkedNumber   *string
}

// IsEmpty returns true when the update would not change anything
func (u TrackingUpdate) IsEmpty() bool {
	return u.QueuePosition == nil && u.CompletionPct == nil && u.DaysOpen == nil &&
		u.Shipped == nil && u.CustomsCleared == nil && u.GoodsLanded == nil &&
		u.OrderedDate == nil && u.LinkedNumber == nil
}

// Apply writes the non-nil fields of u onto d
func (u TrackingUpdate) Apply(d *Document) {
	if u.QueuePosition != nil {
		d.QueuePosition = *u.QueuePosition
	}
	if u.CompletionPct != nil {
		d.CompletionPct = *u.CompletionPct
	}
	if u.DaysOpen != nil {
		d.DaysOpen = *u.DaysOpen
	}
	if u.Shipped != nil {
		d.Shipped = *u.Shipped
	}
	if u.CustomsCleared != nil {
		d.CustomsCleared = *u.CustomsCleared
	}
	if u.GoodsLanded != nil {
		d.GoodsLanded = *u.GoodsLanded
	}
	if u.OrderedDate != nil {
		d.OrderedDate = *u.OrderedDate
	}
	if u.LinkedNumber != nil {
		d.LinkedNumber = *u.LinkedNumber
	}
}

// PurchaseOrderNumber derives the PO number allocated for a PR
func PurchaseOrderNumber(prNumber string) string {
	if len(prNumber) >= 2 && strings.EqualFold(prNumber[:2], "PR") {
		return "PO" + prNumber[2:]
	}
	return "PO-" + prNumber
}

// NewPurchaseOrder creates the PO row allocated when a PR becomes ready
func NewPurchaseOrder(pr *Document, number string, now time.Time) *Document {
	return &Document{
		Number:            number,
		Kind:              workflow.KindPO,
		Status:            workflow.StatusSubmitted,
		LinkedNumber:      pr.Number,
		Amount:            pr.Amount,
		Currency:          pr.Currency,
		Vendor:            pr.Vendor,
		Requester:         pr.Requester,
		ApproverRef:       pr.ApproverRef,
		Description:       pr.Description,
		SubmittedAt:       now,
		Deadline:          pr.Deadline,
		QuotesDate:        pr.QuotesDate,
		QuotesLink:        pr.QuotesLink,
		AdjudicationDate:  pr.AdjudicationDate,
		AdjudicationNotes: pr.AdjudicationNotes,
		Urgent:            pr.Urgent,
		CustomsRequired:   pr.CustomsRequired,
		LastModified:      now,
		LastModifiedBy:    pr.LastModifiedBy,
	}
}
