package appointment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanEnter(t *testing.T) {
	assert.True(t, CanEnter(StatusPending))
	assert.True(t, CanEnter(StatusScheduled))
	assert.False(t, CanEnter(StatusInProgress))
	assert.False(t, CanEnter(StatusCompleted))
	assert.False(t, CanEnter(StatusCancelled))
	assert.False(t, CanEnter(StatusNoShow))
}

func TestTransition_LegalMoves(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusPending, StatusScheduled},
		{StatusPending, StatusCancelled},
		{StatusScheduled, StatusInProgress},
		{StatusScheduled, StatusCancelled},
		{StatusScheduled, StatusNoShow},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusCancelled},
	}
	for _, tc := range legal {
		got, err := Transition(tc.from, tc.to)
		require.NoError(t, err, "%s -> %s", tc.from, tc.to)
		assert.Equal(t, tc.to, got)
	}
}

func TestTransition_IllegalMoves(t *testing.T) {
	illegal := []struct{ from, to Status }{
		{StatusPending, StatusInProgress},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusNoShow},
		{StatusScheduled, StatusCompleted},
		{StatusScheduled, StatusPending},
		{StatusInProgress, StatusNoShow},
		{StatusInProgress, StatusScheduled},
	}
	for _, tc := range illegal {
		got, err := Transition(tc.from, tc.to)
		require.Error(t, err, "%s -> %s", tc.from, tc.to)
		assert.Equal(t, tc.from, got, "status must not move on a rejected transition")

		var ite *IllegalTransitionError
		require.True(t, errors.As(err, &ite))
		assert.Equal(t, tc.from, ite.From)
		assert.Equal(t, tc.to, ite.To)
	}
}

func TestTransition_TerminalStatesAreFinal(t *testing.T) {
	all := []Status{
		StatusPending, StatusScheduled, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow,
	}
	for _, from := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		require.True(t, from.Terminal())
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s must not leave terminal state", from)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusScheduled.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
}
