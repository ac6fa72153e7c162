package entity

// Status constants for Expense
const (
	ExpenseStatusPending  = "pending"
	ExpenseStatusApproved = "approved"
	ExpenseStatusRejected = "rejected"
)

// Status constants for Approval ledger rows
const (
	ApprovalStatusWaiting  = "waiting"
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
	ApprovalStatusSkipped  = "skipped"
)

// Decision actions accepted from an approver
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Audit action constants
const (
	AuditActionCompanyRegistered = "company_registered"
	AuditActionUserCreated       = "user_created"
	AuditActionExpenseSubmitted  = "expense_submitted"
	AuditActionApprovalDecided   = "approval_decided"
	AuditActionExpenseFinalized  = "expense_finalized"
	AuditActionSequenceReplaced  = "approver_sequence_replaced"
	AuditActionRuleUpdated       = "approval_rule_updated"
)

// DefaultCurrency is used when a company registers without one
const DefaultCurrency = "USD"
