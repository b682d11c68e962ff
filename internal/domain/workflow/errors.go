package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized is returned when the actor lacks the procurement role
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when no document carries the requested number
	ErrNotFound = errors.New("document not found")

	// ErrLockTimeout is returned when the update lock could not be acquired in time
	ErrLockTimeout = errors.New("lock wait timed out")

	// ErrInvalidTransition is returned when the target is not reachable from the current status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMissingFields is returned when the target status requires fields that are blank
	ErrMissingFields = errors.New("missing required fields")

	// ErrBusinessRule is returned when a business rule rejects the transition
	ErrBusinessRule = errors.New("business rule violation")

	// ErrPersistence is returned when the document store rejected the write
	ErrPersistence = errors.New("persistence failure")

	// ErrSideEffect marks a failure in post-transition processing
	ErrSideEffect = errors.New("side effect failure")

	// ErrUnknownKind is returned when parsing an unsupported document kind
	ErrUnknownKind = errors.New("unknown document kind")
)

// ErrorKind classifies transition failures
type ErrorKind string

const (
	ErrorUnauthorized                 ErrorKind = "Unauthorized"
	ErrorNotFound                     ErrorKind = "NotFound"
	ErrorLockTimeout                  ErrorKind = "LockTimeout"
	ErrorInvalidTransition            ErrorKind = "InvalidTransition"
	ErrorMissingFields                ErrorKind = "MissingFields"
	ErrorBusinessRuleViolation        ErrorKind = "BusinessRuleViolation"
	ErrorPersistenceFailure           ErrorKind = "PersistenceFailure"
	ErrorNonCriticalSideEffectFailure ErrorKind = "NonCriticalSideEffectFailure"
)

var sentinels = map[ErrorKind]error{
	ErrorUnauthorized:                 ErrUnauthorized,
	ErrorNotFound:                     ErrNotFound,
	ErrorLockTimeout:                  ErrLockTimeout,
	ErrorInvalidTransition:            ErrInvalidTransition,
	ErrorMissingFields:                ErrMissingFields,
	ErrorBusinessRuleViolation:        ErrBusinessRule,
	ErrorPersistenceFailure:           ErrPersistence,
	ErrorNonCriticalSideEffectFailure: ErrSideEffect,
}

// TransitionError is the typed failure returned by a transition request.
// errors.Is matches it against the sentinel of its kind.
type TransitionError struct {
	Kind          ErrorKind
	DocNumber     string
	Message       string
	Allowed       []Status
	MissingFields []string
	Rule          string
	Err           error
}

func (e *TransitionError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.DocNumber != "" {
		b.WriteString(" [")
		b.WriteString(e.DocNumber)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the sentinel error of the same kind
func (e *TransitionError) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from err, or "" when err is not a TransitionError
func KindOf(err error) ErrorKind {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// NewUnauthorized reports that actor lacks role
func NewUnauthorized(docNumber, actor, role string) *TransitionError {
	return &TransitionError{
		Kind:      ErrorUnauthorized,
		DocNumber: docNumber,
		Message:   fmt.Sprintf("actor %q does not hold role %q", actor, role),
	}
}

// NewNotFound reports an unknown document number
func NewNotFound(docNumber string) *TransitionError {
	return &TransitionError{
		Kind:      ErrorNotFound,
		DocNumber: docNumber,
		Message:   "no document with this number",
	}
}

// NewLockTimeout reports that the update lock was not acquired
func NewLockTimeout(docNumber string, err error) *TransitionError {
	return &TransitionError{
		Kind:      ErrorLockTimeout,
		DocNumber: docNumber,
		Message:   "another update is in progress, retry later",
		Err:       err,
	}
}

// NewInvalidTransition reports a transition outside the table
func NewInvalidTransition(docNumber string, from, to Status, allowed []Status) *TransitionError {
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return &TransitionError{
		Kind:      ErrorInvalidTransition,
		DocNumber: docNumber,
		Message:   fmt.Sprintf("cannot move from %q to %q (allowed: %s)", from, to, strings.Join(names, ", ")),
		Allowed:   allowed,
	}
}

// NewMissingFields reports every blank field the target requires
func NewMissingFields(docNumber string, to Status, missing []string) *TransitionError {
	return &TransitionError{
		Kind:          ErrorMissingFields,
		DocNumber:     docNumber,
		Message:       fmt.Sprintf("%q requires: %s", to, strings.Join(missing, ", ")),
		MissingFields: missing,
	}
}

// NewBusinessRuleViolation reports the first rule that rejected the transition
func NewBusinessRuleViolation(docNumber, rule, message string) *TransitionError {
	return &TransitionError{
		Kind:      ErrorBusinessRuleViolation,
		DocNumber: docNumber,
		Message:   message,
		Rule:      rule,
	}
}

// NewPersistenceFailure wraps a store error
func NewPersistenceFailure(docNumber string, err error) *TransitionError {
	return &TransitionError{
		Kind:      ErrorPersistenceFailure,
		DocNumber: docNumber,
		Message:   "could not write document",
		Err:       err,
	}
}

// NewSideEffectFailure wraps a failure of post-transition processing
func NewSideEffectFailure(docNumber, effect string, err error) *TransitionError {
	return &TransitionError{
		Kind:      ErrorNonCriticalSideEffectFailure,
		DocNumber: docNumber,
		Message:   fmt.Sprintf("effect %s failed", effect),
		Err:       err,
	}
}
