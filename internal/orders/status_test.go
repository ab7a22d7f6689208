package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
		release  bool
	}{
		{StatusPending, StatusAwaitingProcessing, true, false},
		{StatusPending, StatusApproved, true, false},
		{StatusPending, StatusPending, true, false},
		{StatusApproved, StatusShipped, true, false},
		{StatusApproved, StatusDelivered, true, false},
		{StatusApproved, StatusRefused, true, true},
		{StatusApproved, StatusCancelled, true, true},
		{StatusApproved, StatusAwaitingProcessing, true, true},
		{StatusApproved, StatusOrderConfirmation, true, true},
		{StatusApproved, StatusPending, false, false},
		{StatusRefused, StatusApproved, true, false},
		{StatusRefused, StatusAwaitingProcessing, true, false},
		{StatusRefused, StatusPending, false, false},
		{StatusOrderConfirmation, StatusAwaitingProcessing, true, false},
		{StatusAwaitingProcessing, StatusOrderConfirmation, true, false},
		{StatusShipped, StatusDelivered, true, false},
		{StatusShipped, StatusApproved, false, false},
		{StatusShipped, StatusCancelled, true, false},
		{StatusCancelled, StatusPending, true, false},
		{StatusCancelled, StatusApproved, true, false},
		{StatusDelivered, StatusCancelled, false, false},
		{StatusDelivered, StatusDelivered, false, false},
		{StatusPending, Status("lost"), false, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			allowed, release := CanTransition(tc.from, tc.to)
			assert.Equal(t, tc.allowed, allowed)
			assert.Equal(t, tc.release, release)
		})
	}
}

func TestValidateTransitionErrors(t *testing.T) {
	_, err := ValidateTransition(StatusDelivered, StatusShipped)
	assert.ErrorIs(t, err, ErrAlreadyDelivered)

	_, err = ValidateTransition(StatusShipped, StatusPending)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusShipped, te.From)
	assert.Equal(t, StatusPending, te.To)

	tr, err := ValidateTransition(StatusApproved, StatusRefused)
	require.NoError(t, err)
	assert.True(t, tr.Changed())
	assert.True(t, tr.RequiresStockRelease)

	tr, err = ValidateTransition(StatusShipped, StatusShipped)
	require.NoError(t, err)
	assert.False(t, tr.Changed())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("  Order_Confirmation ")
	require.NoError(t, err)
	assert.Equal(t, StatusOrderConfirmation, s)

	_, err = ParseStatus("returned")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
