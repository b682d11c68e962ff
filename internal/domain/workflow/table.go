package workflow

// Table is the immutable set of permitted transitions for every kind
type Table struct {
	transitions map[Kind]map[Status][]Status
}

// Allowed returns the statuses reachable from current for the kind.
// Unknown kinds and statuses yield an empty set.
func (t *Table) Allowed(kind Kind, current Status) []Status {
	targets := t.transitions[kind][current]
	out := make([]Status, len(targets))
	copy(out, targets)
	return out
}

// CanTransition reports whether from -> to is permitted for the kind
func (t *Table) CanTransition(kind Kind, from, to Status) bool {
	for _, s := range t.transitions[kind][from] {
		if s == to {
			return true
		}
	}
	return false
}

// Knows reports whether status belongs to the kind's vocabulary
func (t *Table) Knows(kind Kind, status Status) bool {
	_, ok := t.transitions[kind][status]
	return ok
}

// Statuses returns the vocabulary of a kind
func (t *Table) Statuses(kind Kind) []Status {
	out := make([]Status, 0, len(t.transitions[kind]))
	for s := range t.transitions[kind] {
		out = append(out, s)
	}
	return out
}

// DefaultTable builds the PR and PO transition tables
func DefaultTable() *Table {
	b := NewBuilder()

	b.Configure(KindPR, StatusSubmitted).
		Permit(StatusInQueue, StatusRevisionRequired, StatusRejected)
	// In Queue -> Ordered is a direct purchase with no PO raised. PR Ready is
	// the PO route. Both routes pass the quotes gate on Ordered.
	b.Configure(KindPR, StatusInQueue).
		Permit(StatusPRReady, StatusOrdered, StatusRevisionRequired, StatusRejected)
	b.Configure(KindPR, StatusRevisionRequired).
		Permit(StatusSubmitted)
	b.Configure(KindPR, StatusPRReady).
		Permit(StatusOrdered, StatusRevisionRequired)
	b.Configure(KindPR, StatusOrdered).
		Permit(StatusCompleted)
	b.Configure(KindPR, StatusCompleted)
	b.Configure(KindPR, StatusRejected)
	b.Configure(KindPR, StatusCanceled)

	b.Configure(KindPO, StatusSubmitted).
		Permit(StatusInQueue, StatusPOApproved, StatusRevisionRequired, StatusRejected)
	b.Configure(KindPO, StatusInQueue).
		Permit(StatusPOApproved, StatusRevisionRequired, StatusRejected)
	b.Configure(KindPO, StatusRevisionRequired).
		Permit(StatusSubmitted)
	b.Configure(KindPO, StatusPOApproved).
		Permit(StatusPOOrdered, StatusRevisionRequired)
	b.Configure(KindPO, StatusPOOrdered).
		Permit(StatusCompleted)
	b.Configure(KindPO, StatusCompleted)
	b.Configure(KindPO, StatusRejected)
	b.Configure(KindPO, StatusCanceled)

	return b.Build()
}
