package entity

import "time"

// AuditEntry is an append-only record of a state-changing action
type AuditEntry struct {
	ID         int64     `json:"id"`
	CompanyID  int64     `json:"company_id"`
	ActorID    int64     `json:"actor_id"`
	Action     string    `json:"action"`
	ExpenseID  *int64    `json:"expense_id,omitempty"`
	ApprovalID *int64    `json:"approval_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
