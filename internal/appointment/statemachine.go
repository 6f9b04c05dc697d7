package appointment

import "fmt"

// IllegalTransitionError reports a lifecycle move the state machine forbids.
// It signals a caller bug, not a user-correctable condition.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal appointment transition %s -> %s", e.From, e.To)
}

// legalTransitions is the full lifecycle. Rescheduling is not a transition:
// it changes date/time in place and leaves the status untouched.
var legalTransitions = map[Status][]Status{
	StatusPending:    {StatusScheduled, StatusCancelled},
	StatusScheduled:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusNoShow:     {},
}

// entryStatuses are the valid states for a newly created appointment:
// pending for patient self-service, scheduled for direct staff booking.
var entryStatuses = map[Status]bool{
	StatusPending:   true,
	StatusScheduled: true,
}

// CanEnter reports whether s is a valid creation state.
func CanEnter(s Status) bool {
	return entryStatuses[s]
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to, returning the target status or an
// IllegalTransitionError.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, &IllegalTransitionError{From: from, To: to}
	}
	return to, nil
}
