// Package rules holds the pure procurement rules: required fields, business
// rules, completion, queue ordering and business-day arithmetic.
package rules

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement-tracker/internal/domain/entity"
)

// Policy carries the thresholds the validators evaluate against
type Policy struct {
	// QuotesThreshold triggers quotes for amounts above it from unapproved vendors
	QuotesThreshold decimal.Decimal
	// AdjudicationThreshold triggers quotes and adjudication for any vendor
	AdjudicationThreshold decimal.Decimal
	// MaxLandingMonths bounds how far ahead an expected landing date may be
	MaxLandingMonths int
}

// DefaultPolicy returns the standard procurement thresholds
func DefaultPolicy() Policy {
	return Policy{
		QuotesThreshold:       decimal.NewFromInt(5000),
		AdjudicationThreshold: decimal.NewFromInt(50000),
		MaxLandingMonths:      6,
	}
}

// NeedsQuotes reports whether the document must carry supplier quotes
func (p Policy) NeedsQuotes(doc *entity.Document, vendorApproved bool) bool {
	if !doc.Amount.Valid {
		return false
	}
	amount := doc.Amount.Decimal
	if amount.GreaterThan(p.AdjudicationThreshold) {
		return true
	}
	return amount.GreaterThan(p.QuotesThreshold) && !vendorApproved
}

// NeedsAdjudication reports whether the document must carry an adjudication
func (p Policy) NeedsAdjudication(doc *entity.Document) bool {
	return doc.Amount.Valid && doc.Amount.Decimal.GreaterThan(p.AdjudicationThreshold)
}

// LatestLandingDate returns the last acceptable expected landing date for today
func (p Policy) LatestLandingDate(now time.Time) time.Time {
	return startOfDay(now).AddDate(0, p.MaxLandingMonths, 0)
}
