package rules

import (
	"sort"

	"github.com/garyjia/procurement-tracker/internal/domain/entity"
)

// QueueOrder sorts queued documents: urgent first, then oldest submission.
// Ties keep their input order.
func QueueOrder(docs []*entity.Document) []*entity.Document {
	out := make([]*entity.Document, len(docs))
	copy(out, docs)

	sort.SliceStable(out, func(i, j int) bool {
		ui, uj := out[i].IsUrgent(), out[j].IsUrgent()
		if ui != uj {
			return ui
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}
