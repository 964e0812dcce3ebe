package domain

// OutcomeKind tags the result of resolving a toggle request against the
// current active session.
type OutcomeKind int

const (
	// OutcomeStart opens a new active session; no session was active.
	OutcomeStart OutcomeKind = iota
	// OutcomeEnd closes the active session; the request matched its state.
	OutcomeEnd
	// OutcomeSwitch closes the active session and opens a new one at the
	// same instant, as one transactional pair.
	OutcomeSwitch
)

// Outcome is the tagged result of Resolve. Direction is set only when a
// commute session is being opened.
type Outcome struct {
	Kind      OutcomeKind
	NewState  ActivityState
	Direction *CommuteDirection
}

// InferDirection derives the commute direction from the day so far: the
// commute before any working session heads to work, everything after the
// first working session heads home.
func InferDirection(hadWorkToday bool) CommuteDirection {
	if hadWorkToday {
		return DirectionToHome
	}
	return DirectionToWork
}

// Resolve applies the toggle decision table. active is the user's active
// session or nil; requested is the toggled activity; hadWorkToday reports
// whether the user already has a working session on the local date of the
// effective timestamp. The caller applies the outcome under one
// transaction so the single-active-session invariant holds.
func Resolve(active *Session, requested ActivityState, hadWorkToday bool) (Outcome, error) {
	if !requested.Valid() {
		return Outcome{}, E(KindInvalidRequest, "unknown activity %q", requested)
	}

	var direction *CommuteDirection
	if requested == StateCommuting {
		d := InferDirection(hadWorkToday)
		direction = &d
	}

	switch {
	case active == nil:
		return Outcome{Kind: OutcomeStart, NewState: requested, Direction: direction}, nil
	case active.State == requested:
		return Outcome{Kind: OutcomeEnd}, nil
	default:
		return Outcome{Kind: OutcomeSwitch, NewState: requested, Direction: direction}, nil
	}
}
