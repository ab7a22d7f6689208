package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrInvalidInput signals the caller provided invalid data.
	ErrInvalidInput = errors.New("order: invalid input")
	// ErrInvalidAddress indicates the shipping address is incomplete.
	ErrInvalidAddress = errors.New("order: invalid address")
	// ErrInvalidTransition indicates the requested status is not reachable.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrAlreadyDelivered indicates the order reached the terminal status.
	ErrAlreadyDelivered = errors.New("order: already delivered")
	// ErrForbidden indicates the actor may not perform the action.
	ErrForbidden = errors.New("order: forbidden")
	// ErrConflict indicates a uniqueness violation on insert.
	ErrConflict = errors.New("order: conflict")
)

// TransitionError carries the rejected edge of the status graph.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
