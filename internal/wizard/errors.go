package wizard

import (
	"errors"
	"fmt"

	"github.com/wolfman30/medspa-booking-wizard/internal/session"
)

var (
	// ErrStaleResponse means a fetch finished after its triggering selection
	// changed; its result was discarded.
	ErrStaleResponse = errors.New("wizard: stale response discarded")
	// ErrWrongStep means an action was sent for a step the flow is not on.
	ErrWrongStep     = errors.New("wizard: action not allowed on current step")
)

// BootstrapError is terminal for a session.
type BootstrapError = session.BootstrapError

// ValidationError blocks a single transition because a required field is missing.
type ValidationError struct {
	Step    Step
	Field   Field
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, e.Message)
}

// RemoteCallError wraps a failed practice API call. The flow stays on its step.
type RemoteCallError struct {
	Op  string
	Err error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// BookingFailure means the booking endpoint rejected the submission. The draft
// is preserved for resubmission.
type BookingFailure struct {
	Message string
	Err     error
}

func (e *BookingFailure) Error() string { return e.Message }

func (e *BookingFailure) Unwrap() error { return e.Err }

func remote(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteCallError{Op: op, Err: err}
}
