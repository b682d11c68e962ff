package workflow

import (
	"fmt"
	"strings"
)

// Kind identifies the document family a status vocabulary belongs to
type Kind string

const (
	KindPR Kind = "PR"
	KindPO Kind = "PO"
)

// IsValid returns true if the kind is a known document kind
func (k Kind) IsValid() bool {
	return k == KindPR || k == KindPO
}

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// ParseKind converts user input into a Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Status represents a document status in the procurement lifecycle
type Status string

const (
	StatusSubmitted        Status = "Submitted"
	StatusInQueue          Status = "In Queue"
	StatusPRReady          Status = "PR Ready"
	StatusRevisionRequired Status = "Revision Required"
	StatusOrdered          Status = "Ordered"
	StatusPOApproved       Status = "PO Approved"
	StatusPOOrdered        Status = "PO Ordered"
	StatusCompleted        Status = "Completed"
	StatusRejected         Status = "Rejected"
	StatusCanceled         Status = "Canceled"
)

var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusRejected:  true,
	StatusCanceled:  true,
}

// IsTerminal returns true if the status has no outbound transitions
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsOrdered returns true for the statuses in which goods are on their way
func (s Status) IsOrdered() bool {
	return s == StatusOrdered || s == StatusPOOrdered
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// OrderedStatus returns the "goods ordered" status of a kind
func OrderedStatus(kind Kind) Status {
	if kind == KindPO {
		return StatusPOOrdered
	}
	return StatusOrdered
}
