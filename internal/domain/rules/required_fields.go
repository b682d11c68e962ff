package rules

import (
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

var staticRequirements = map[workflow.Status][]string{
	workflow.StatusInQueue:    {FieldRequester, FieldDescription, FieldAmount, FieldVendor},
	workflow.StatusPRReady:    {FieldApprover, FieldDeadline},
	workflow.StatusPOApproved: {FieldApprover, FieldPOApprovedDate},
	workflow.StatusOrdered:    {FieldProofOfPurchaseLink, FieldPaymentDate, FieldExpectedLandingDate},
	workflow.StatusPOOrdered:  {FieldProofOfPurchaseLink, FieldPaymentDate, FieldExpectedLandingDate},
	workflow.StatusCompleted:  {FieldLandedDate},
}

// gateStatuses also carry the conditional quotes and adjudication sets
var gateStatuses = map[workflow.Status]bool{
	workflow.StatusPRReady:    true,
	workflow.StatusPOApproved: true,
	workflow.StatusOrdered:    true,
	workflow.StatusPOOrdered:  true,
}

var (
	quotesFields       = []string{FieldQuotesLink, FieldQuotesDate}
	adjudicationFields = []string{FieldAdjudicationNotes, FieldAdjudicationDate}
)

// RequiredFieldValidator reports the fields a target status needs
type RequiredFieldValidator struct {
	policy Policy
}

// NewRequiredFieldValidator creates a validator bound to policy
func NewRequiredFieldValidator(policy Policy) *RequiredFieldValidator {
	return &RequiredFieldValidator{policy: policy}
}

// Required returns the full requirement set of target for doc
func (v *RequiredFieldValidator) Required(doc *entity.Document, target workflow.Status, vendorApproved bool) []string {
	sets := [][]string{staticRequirements[target]}
	if gateStatuses[target] {
		if v.policy.NeedsQuotes(doc, vendorApproved) {
			sets = append(sets, quotesFields)
		}
		if v.policy.NeedsAdjudication(doc) {
			sets = append(sets, adjudicationFields)
		}
	}
	return orderedUnion(sets...)
}

// Validate returns every required field that is absent or blank.
// An empty result means the document may enter target.
func (v *RequiredFieldValidator) Validate(doc *entity.Document, target workflow.Status, vendorApproved bool) []string {
	return missingOf(doc, v.Required(doc, target, vendorApproved))
}

func missingOf(doc *entity.Document, names []string) []string {
	missing := make([]string, 0)
	for _, name := range names {
		f, ok := LookupField(name)
		if !ok || !f.Filled(doc) {
			missing = append(missing, name)
		}
	}
	return missing
}
