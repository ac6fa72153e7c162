package workflow

// State is a lifecycle status shared by expenses and approval ledger rows.
// Values match the persisted status strings.
type State string

const (
	StateWaiting  State = "waiting"
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StateSkipped  State = "skipped"
)

var validStates = map[State]bool{
	StateWaiting:  true,
	StatePending:  true,
	StateApproved: true,
	StateRejected: true,
	StateSkipped:  true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
	StateSkipped:  true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}
