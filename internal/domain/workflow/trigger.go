package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// TriggerActivate promotes a waiting ledger row to the active (pending) row
	TriggerActivate Trigger = "ACTIVATE"
	TriggerApprove  Trigger = "APPROVE"
	TriggerReject   Trigger = "REJECT"
	// TriggerSkip retires an undecided ledger row after finalization
	TriggerSkip Trigger = "SKIP"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
