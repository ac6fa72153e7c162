package event

// Type identifies the type of domain event
type Type string

const (
	TypeExpenseSubmitted Type = "expense.submitted"
	TypeStepActivated    Type = "approval.step_activated"
	TypeApprovalDecided  Type = "approval.decided"
	TypeExpenseApproved  Type = "expense.approved"
	TypeExpenseRejected  Type = "expense.rejected"
	TypeConfigurationGap Type = "expense.configuration_gap"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExpenseSubmitted,
		TypeStepActivated,
		TypeApprovalDecided,
		TypeExpenseApproved,
		TypeExpenseRejected,
		TypeConfigurationGap:
		return true
	default:
		return false
	}
}
