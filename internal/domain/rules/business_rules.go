package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// Business rule identifiers
const (
	RuleQuotesRequired       = "quotes_required"
	RuleAdjudicationRequired = "adjudication_required"
	RuleLandingDateMissing   = "landing_date_missing"
	RuleLandingDateTooFar    = "landing_date_too_far"
)

// RuleViolation names the first business rule a transition broke
type RuleViolation struct {
	Rule    string
	Message string
}

func (e *RuleViolation) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

// BusinessRuleValidator evaluates the amount and date rules of a target status
type BusinessRuleValidator struct {
	policy Policy
}

// NewBusinessRuleValidator creates a validator bound to policy
func NewBusinessRuleValidator(policy Policy) *BusinessRuleValidator {
	return &BusinessRuleValidator{policy: policy}
}

// Validate returns the first violated rule as *RuleViolation, or nil
func (v *BusinessRuleValidator) Validate(doc *entity.Document, target workflow.Status, vendorApproved bool, now time.Time) error {
	switch {
	case target == workflow.StatusPRReady:
		return v.checkApprovalEvidence(doc, vendorApproved)
	case target.IsOrdered():
		return v.checkLandingDate(doc, now)
	}
	return nil
}

func (v *BusinessRuleValidator) checkApprovalEvidence(doc *entity.Document, vendorApproved bool) error {
	if v.policy.NeedsAdjudication(doc) {
		if strings.TrimSpace(doc.QuotesLink) == "" {
			return &RuleViolation{
				Rule:    RuleQuotesRequired,
				Message: fmt.Sprintf("amount %s exceeds %s, quotes link is required", doc.Amount.Decimal, v.policy.AdjudicationThreshold),
			}
		}
		if strings.TrimSpace(doc.AdjudicationNotes) == "" {
			return &RuleViolation{
				Rule:    RuleAdjudicationRequired,
				Message: fmt.Sprintf("amount %s exceeds %s, adjudication notes are required", doc.Amount.Decimal, v.policy.AdjudicationThreshold),
			}
		}
		return nil
	}

	if v.policy.NeedsQuotes(doc, vendorApproved) && strings.TrimSpace(doc.QuotesLink) == "" {
		return &RuleViolation{
			Rule:    RuleQuotesRequired,
			Message: fmt.Sprintf("amount %s exceeds %s and vendor %q is not pre-approved, quotes link is required", doc.Amount.Decimal, v.policy.QuotesThreshold, doc.Vendor),
		}
	}
	return nil
}

func (v *BusinessRuleValidator) checkLandingDate(doc *entity.Document, now time.Time) error {
	if doc.ExpectedLandingDate.IsZero() {
		return &RuleViolation{
			Rule:    RuleLandingDateMissing,
			Message: "expected landing date is required when ordering",
		}
	}

	latest := v.policy.LatestLandingDate(now)
	if startOfDay(doc.ExpectedLandingDate).After(latest) {
		return &RuleViolation{
			Rule: RuleLandingDateTooFar,
			Message: fmt.Sprintf("expected landing date %s is more than %d months ahead (latest %s)",
				doc.ExpectedLandingDate.Format(DateLayout), v.policy.MaxLandingMonths, latest.Format(DateLayout)),
		}
	}
	return nil
}
