package rules

import (
	"math"

	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// progressions are the happy paths of each kind
var progressions = map[workflow.Kind][]workflow.Status{
	workflow.KindPR: {
		workflow.StatusSubmitted,
		workflow.StatusInQueue,
		workflow.StatusPRReady,
		workflow.StatusOrdered,
		workflow.StatusCompleted,
	},
	workflow.KindPO: {
		workflow.StatusSubmitted,
		workflow.StatusInQueue,
		workflow.StatusPOApproved,
		workflow.StatusPOOrdered,
		workflow.StatusCompleted,
	},
}

// CompletionCalculator derives the completion percentage of a document
type CompletionCalculator struct {
	required *RequiredFieldValidator
}

// NewCompletionCalculator creates a calculator over the requirement sets of required
func NewCompletionCalculator(required *RequiredFieldValidator) *CompletionCalculator {
	return &CompletionCalculator{required: required}
}

// RequiredFields returns the fields counted for the document's current status:
// every requirement along the happy path up to the status after the current one.
func (c *CompletionCalculator) RequiredFields(doc *entity.Document, vendorApproved bool) []string {
	path := progressions[doc.Kind]
	targets := []workflow.Status{workflow.StatusInQueue}

	for i, s := range path {
		if s != doc.Status {
			continue
		}
		end := i + 2
		if end > len(path) {
			end = len(path)
		}
		targets = path[1:end]
		break
	}

	sets := make([][]string, 0, len(targets))
	for _, target := range targets {
		sets = append(sets, c.required.Required(doc, target, vendorApproved))
	}
	return orderedUnion(sets...)
}

// Compute returns round(100 * filled / required) in [0, 100].
// A document with nothing required is complete.
func (c *CompletionCalculator) Compute(doc *entity.Document, vendorApproved bool) int {
	required := c.RequiredFields(doc, vendorApproved)
	if len(required) == 0 {
		return 100
	}

	filled := len(required) - len(missingOf(doc, required))
	return int(math.Round(100 * float64(filled) / float64(len(required))))
}
