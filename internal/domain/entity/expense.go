package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a single reimbursement request submitted by a user.
// Amount and Currency are immutable once created; Status is owned by the approval engine.
type Expense struct {
	ID                      int64           `json:"id"`
	CompanyID               int64           `json:"company_id"`
	SubmitterID             int64           `json:"submitter_id"`
	Amount                  decimal.Decimal `json:"amount"`
	Currency                string          `json:"currency"`
	AmountInCompanyCurrency decimal.Decimal `json:"amount_in_company_currency"`
	Category                string          `json:"category,omitempty"`
	Description             string          `json:"description,omitempty"`
	ExpenseDate             *time.Time      `json:"expense_date,omitempty"`
	Status                  string          `json:"status"`
	FinalizedAt             *time.Time      `json:"finalized_at,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// IsFinal reports whether the expense has left the pending state
func (e *Expense) IsFinal() bool {
	return e.Status == ExpenseStatusApproved || e.Status == ExpenseStatusRejected
}
