package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when an order id does not resolve.
	ErrNotFound = errors.New("order not found")
	// ErrForbidden is returned when the principal lacks scope over the
	// order or restaurant.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidPhase is returned for unknown phases and backward transitions.
	ErrInvalidPhase = errors.New("invalid delivery phase")
	// ErrUpstreamTimeout is returned when the payment provider did not answer
	// in time. Callers may retry.
	ErrUpstreamTimeout = errors.New("payment provider timeout")
	// ErrConflict is returned when a concurrent write invalidated the
	// version the update was based on.
	ErrConflict = errors.New("concurrent update conflict")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransitionError describes a rejected phase change.
type TransitionError struct {
	From Phase
	To   Phase
}

func (e *TransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("unknown delivery phase %q", e.To)
	}
	return fmt.Sprintf("cannot move delivery phase from %s to %s", e.From, e.To)
}

// Is makes TransitionError match ErrInvalidPhase.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidPhase
}
