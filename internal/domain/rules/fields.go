package rules

import (
	"strings"
	"time"

	"github.com/garyjia/procurement-tracker/internal/domain/entity"
)

// Field names as reported in MissingFields errors
const (
	FieldRequester           = "requester"
	FieldDescription         = "description"
	FieldAmount              = "amount"
	FieldVendor              = "vendor"
	FieldApprover            = "approver"
	FieldDeadline            = "deadline"
	FieldPOApprovedDate      = "po_approved_date"
	FieldQuotesLink          = "quotes_link"
	FieldQuotesDate          = "quotes_date"
	FieldAdjudicationNotes   = "adjudication_notes"
	FieldAdjudicationDate    = "adjudication_date"
	FieldProofOfPurchaseLink = "proof_of_purchase_link"
	FieldPaymentDate         = "payment_date"
	FieldExpectedLandingDate = "expected_landing_date"
	FieldLandedDate          = "landed_date"
)

// Field is a typed accessor that reports whether a document carries a value
type Field struct {
	Name   string
	Filled func(d *entity.Document) bool
}

func textField(name string, get func(d *entity.Document) string) Field {
	return Field{Name: name, Filled: func(d *entity.Document) bool {
		return strings.TrimSpace(get(d)) != ""
	}}
}

func dateField(name string, get func(d *entity.Document) time.Time) Field {
	return Field{Name: name, Filled: func(d *entity.Document) bool {
		return !get(d).IsZero()
	}}
}

// catalogue lists every requirable field in reporting order
var catalogue = []Field{
	textField(FieldRequester, func(d *entity.Document) string { return d.Requester }),
	textField(FieldDescription, func(d *entity.Document) string { return d.Description }),
	{Name: FieldAmount, Filled: func(d *entity.Document) bool { return d.Amount.Valid }},
	textField(FieldVendor, func(d *entity.Document) string { return d.Vendor }),
	textField(FieldApprover, func(d *entity.Document) string { return d.ApproverRef }),
	dateField(FieldDeadline, func(d *entity.Document) time.Time { return d.Deadline }),
	dateField(FieldPOApprovedDate, func(d *entity.Document) time.Time { return d.POApprovedDate }),
	textField(FieldQuotesLink, func(d *entity.Document) string { return d.QuotesLink }),
	dateField(FieldQuotesDate, func(d *entity.Document) time.Time { return d.QuotesDate }),
	textField(FieldAdjudicationNotes, func(d *entity.Document) string { return d.AdjudicationNotes }),
	dateField(FieldAdjudicationDate, func(d *entity.Document) time.Time { return d.AdjudicationDate }),
	textField(FieldProofOfPurchaseLink, func(d *entity.Document) string { return d.ProofOfPurchaseLink }),
	dateField(FieldPaymentDate, func(d *entity.Document) time.Time { return d.PaymentDate }),
	dateField(FieldExpectedLandingDate, func(d *entity.Document) time.Time { return d.ExpectedLandingDate }),
	dateField(FieldLandedDate, func(d *entity.Document) time.Time { return d.LandedDate }),
}

var catalogueIndex = func() map[string]int {
	idx := make(map[string]int, len(catalogue))
	for i, f := range catalogue {
		idx[f.Name] = i
	}
	return idx
}()

// LookupField returns the accessor for a field name
func LookupField(name string) (Field, bool) {
	i, ok := catalogueIndex[name]
	if !ok {
		return Field{}, false
	}
	return catalogue[i], true
}

// orderedUnion merges field name sets, deduplicated, in catalogue order
func orderedUnion(sets ...[]string) []string {
	seen := make(map[string]bool)
	for _, set := range sets {
		for _, name := range set {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for _, f := range catalogue {
		if seen[f.Name] {
			out = append(out, f.Name)
		}
	}
	return out
}
