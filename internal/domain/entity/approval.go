package entity

import "time"

// Approval is one row of an expense's approval ledger.
// SequenceOrder is unique within an expense and defines the decision order.
type Approval struct {
	ID            int64      `json:"id"`
	ExpenseID     int64      `json:"expense_id"`
	ApproverID    int64      `json:"approver_id"`
	SequenceOrder int        `json:"sequence_order"`
	Status        string     `json:"status"`
	Comment       string     `json:"comment,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsActionable reports whether the row still counts towards the rule total
func (a *Approval) IsActionable() bool {
	switch a.Status {
	case ApprovalStatusWaiting, ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected:
		return true
	default:
		return false
	}
}

// ApproverStep is one entry of a company's configured approver sequence
type ApproverStep struct {
	ID         int64 `json:"id"`
	CompanyID  int64 `json:"company_id"`
	ApproverID int64 `json:"approver_id"`
	StepOrder  int   `json:"step_order"`
}
