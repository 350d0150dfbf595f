package schedule

import "time"

// transitions is the closed set of regular lifecycle edges. ForcePropose is
// deliberately absent: the reschedule propagator may move an appointment of
// any status into StatusRescheduleProposed, and that cross-cutting edge is
// modeled as its own operation rather than a row here.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusRejected:  true,
		StatusVisited:   true,
	},
	StatusConfirmed: {
		StatusVisited: true,
	},
	StatusRescheduleProposed: {
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusVisited:   true,
	},
}

// CanTransition reports whether a regular lifecycle edge from one status to
// another exists. Transitions are not idempotent: from == to is never valid.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// transition applies a regular lifecycle edge, returning ErrInvalidState if
// the edge does not exist. It touches only the status and updated-at fields;
// callers stage any accompanying field changes before persisting so the
// whole mutation commits or fails as a unit.
func (a *Appointment) transition(to Status, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return ErrInvalidState
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}

// ForcePropose records a reschedule proposal on the appointment, overwriting
// its current status whatever it is. This is the propagator's transition: a
// timeline shift may bump appointments that are pending, confirmed, or even
// already terminal.
func (a *Appointment) ForcePropose(start, end, now time.Time) {
	orig := a.ScheduledStart
	a.RescheduledFrom = &orig
	a.ProposedStart = &start
	a.ProposedEnd = &end
	a.Status = StatusRescheduleProposed
	a.UpdatedAt = now
}

// clearProposal drops the proposed interval once it has been accepted or
// rejected, keeping the populated-iff-proposed invariant.
func (a *Appointment) clearProposal() {
	a.ProposedStart = nil
	a.ProposedEnd = nil
}
