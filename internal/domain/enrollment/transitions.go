package domain

// allowedTransitions maps each enrollment status to the statuses it may move
// to. Terminal statuses have no successors; DROPPED of an already-DROPPED
// enrollment is rejected rather than treated as idempotent.
var allowedTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	StatusPendingPayment: {StatusActive, StatusWaitlisted, StatusDropped},
	StatusWaitlisted:     {StatusPendingPayment, StatusActive, StatusDropped},
	StatusActive:         {StatusCompleted, StatusDropped},
	StatusCompleted:      {},
	StatusDropped:        {},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to EnrollmentStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition mutates the enrollment's status after validating the move,
// clearing the waitlist position whenever the enrollment leaves WAITLISTED.
func (e *Enrollment) Transition(to EnrollmentStatus) error {
	if !CanTransition(e.Status, to) {
		return &InvalidStateTransitionError{EnrollmentID: e.EnrollmentID, From: e.Status, To: to}
	}
	e.Status = to
	if to != StatusWaitlisted {
		e.WaitlistPosition = nil
	}
	return nil
}
