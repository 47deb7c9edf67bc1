// Package domain provides core business rules for the funnel bounded context.
package domain

// State is a lead's position in the nurture lifecycle.
type State string

const (
	StateNew              State = "NEW"
	StateNurturing        State = "NURTURING"
	StateEngaged          State = "ENGAGED"
	StateBooked           State = "BOOKED"
	StateCalling          State = "CALLING"
	StateCallBooked       State = "CALL_BOOKED"
	StateSequenceComplete State = "SEQUENCE_COMPLETE"
	StateClosedLost       State = "CLOSED_LOST"
)

var knownStates = map[State]struct{}{
	StateNew:              {},
	StateNurturing:        {},
	StateEngaged:          {},
	StateBooked:           {},
	StateCalling:          {},
	StateCallBooked:       {},
	StateSequenceComplete: {},
	StateClosedLost:       {},
}

// IsKnownState reports whether s is a recognized lifecycle state.
func IsKnownState(s State) bool {
	_, ok := knownStates[s]
	return ok
}

// transitions is the full set of allowed state changes. Anything not
// listed here is rejected by CanTransition.
var transitions = map[State]map[State]struct{}{
	StateNew: {
		StateNurturing: {},
		StateBooked:    {},
	},
	StateNurturing: {
		StateEngaged:          {},
		StateBooked:           {},
		StateCalling:          {},
		StateSequenceComplete: {},
		StateClosedLost:       {},
	},
	StateEngaged: {
		StateBooked:     {},
		StateCalling:    {},
		StateClosedLost: {},
	},
	StateSequenceComplete: {
		StateBooked:     {},
		StateCalling:    {},
		StateClosedLost: {},
	},
	StateCalling: {
		StateCallBooked: {},
		StateClosedLost: {},
		StateNurturing:  {},
	},
}

// CanTransition reports whether a lead may move from one state to another.
func CanTransition(from, to State) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// nurtureTerminalStates are states where the automated sequence must not
// send further outreach. BOOKED leads still receive inbound handling.
var nurtureTerminalStates = map[State]bool{
	StateBooked:           true,
	StateCallBooked:       true,
	StateClosedLost:       true,
	StateSequenceComplete: true,
}

// IsNurtureTerminal returns true if no further sequence sends may occur.
func IsNurtureTerminal(s State) bool {
	return nurtureTerminalStates[s]
}

// IsClosed returns true for states where the lead left the funnel entirely
// and inbound messages only warrant an operator notification.
func IsClosed(s State) bool {
	return s == StateClosedLost
}
