package dispatcher

import (
	"context"
	"errors"

	"github.com/garyjia/procurement-tracker/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
	// Critical failures are surfaced to the caller instead of only logged
	Critical bool
}

// Failure records one handler that returned an error or panicked
type Failure struct {
	Handler  string
	Critical bool
	Err      error
}

// Report summarises one dispatch. Every handler runs regardless of
// earlier failures.
type Report struct {
	EventID  string
	Ran      []string
	Failures []Failure
}

// CriticalErr joins the errors of failed critical handlers, or nil
func (r *Report) CriticalErr() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, f := range r.Failures {
		if f.Critical {
			errs = append(errs, f.Err)
		}
	}
	return errors.Join(errs...)
}

// Failed returns true if any handler failed
func (r *Report) Failed() bool {
	return r != nil && len(r.Failures) > 0
}
