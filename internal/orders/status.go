package orders

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending            Status = "pending"
	StatusAwaitingProcessing Status = "awaiting_processing"
	StatusOrderConfirmation  Status = "order_confirmation"
	StatusApproved           Status = "approved"
	StatusShipped            Status = "shipped"
	StatusDelivered          Status = "delivered"
	StatusRefused            Status = "refused"
	StatusCancelled          Status = "cancelled"
)

// rank is the forward-only ordering used when no explicit rule matches.
var rank = map[Status]int{
	StatusPending:            0,
	StatusAwaitingProcessing: 1,
	StatusOrderConfirmation:  2,
	StatusApproved:           2,
	StatusShipped:            3,
	StatusDelivered:          4,
	StatusRefused:            1,
	StatusCancelled:          0,
}

// explicitNext lists targets allowed regardless of rank. The table is not a
// DAG: approved -> order_confirmation is an admin override.
var explicitNext = map[Status]map[Status]bool{
	StatusApproved: {
		StatusShipped: true, StatusDelivered: true, StatusRefused: true, StatusCancelled: true,
		StatusAwaitingProcessing: true, StatusOrderConfirmation: true,
	},
	StatusRefused: {
		StatusAwaitingProcessing: true, StatusOrderConfirmation: true, StatusApproved: true, StatusCancelled: true,
	},
	StatusOrderConfirmation: {
		StatusApproved: true, StatusShipped: true, StatusDelivered: true, StatusRefused: true,
		StatusCancelled: true, StatusAwaitingProcessing: true,
	},
	StatusAwaitingProcessing: {
		StatusOrderConfirmation: true, StatusApproved: true, StatusShipped: true, StatusDelivered: true,
		StatusRefused: true, StatusCancelled: true,
	},
}

// releasingFromApproved are the targets that hand reserved stock back when
// the order leaves approved.
var releasingFromApproved = map[Status]bool{
	StatusAwaitingProcessing: true,
	StatusOrderConfirmation:  true,
	StatusRefused:            true,
	StatusCancelled:          true,
}

// ParseStatus normalises s and rejects values outside the lifecycle.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

func (s Status) Terminal() bool { return s == StatusDelivered }

// CanTransition reports whether current -> requested is legal and whether
// the move must release stock reserved by a previous approval.
func CanTransition(current, requested Status) (allowed, requiresStockRelease bool) {
	if current.Terminal() || !current.Valid() || !requested.Valid() {
		return false, false
	}
	release := current == StatusApproved && releasingFromApproved[requested]
	if requested == StatusCancelled {
		return true, release
	}
	if explicitNext[current][requested] {
		return true, release
	}
	return rank[requested] >= rank[current], false
}

// Transition is the validated outcome of a requested status change.
type Transition struct {
	From                 Status
	To                   Status
	RequiresStockRelease bool
}

// Changed is false for same-status requests.
func (t Transition) Changed() bool { return t.From != t.To }

// ValidateTransition wraps CanTransition with the error taxonomy: leaving
// delivered yields ErrAlreadyDelivered, any other illegal move a
// *TransitionError.
func ValidateTransition(current, requested Status) (Transition, error) {
	if current.Terminal() {
		return Transition{}, fmt.Errorf("%w: order is %s", ErrAlreadyDelivered, current)
	}
	allowed, release := CanTransition(current, requested)
	if !allowed {
		return Transition{}, &TransitionError{From: current, To: requested}
	}
	return Transition{From: current, To: requested, RequiresStockRelease: release}, nil
}
