package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// CompanyRepository defines persistence operations for Company
type CompanyRepository interface {
	Create(ctx context.Context, company *entity.Company) error
	GetByID(ctx context.Context, id int64) (*entity.Company, error)
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error)
	// ListByIDs returns the users of companyID among ids; unknown or foreign ids are omitted
	ListByIDs(ctx context.Context, companyID int64, ids []int64) ([]*entity.User, error)
}

// ExpenseFilter narrows expense listings. Zero values mean "any".
type ExpenseFilter struct {
	CompanyID   int64
	SubmitterID int64
	Status      string
	Limit       int
	Offset      int
}

// ExpenseRepository defines persistence operations for Expense
type ExpenseRepository interface {
	Create(ctx context.Context, expense *entity.Expense) error
	GetByID(ctx context.Context, id int64) (*entity.Expense, error)
	// UpdateStatus moves an expense out of pending; finalizedAt is stored with it
	UpdateStatus(ctx context.Context, id int64, status string, finalizedAt time.Time) error
	List(ctx context.Context, filter ExpenseFilter) ([]*entity.Expense, error)
}

// ApprovalRepository defines persistence operations for the approval ledger
type ApprovalRepository interface {
	CreateBatch(ctx context.Context, approvals []*entity.Approval) error
	GetByID(ctx context.Context, id int64) (*entity.Approval, error)
	// ListByExpense returns the ledger ordered by sequence_order
	ListByExpense(ctx context.Context, expenseID int64) ([]*entity.Approval, error)
	ListByExpenses(ctx context.Context, expenseIDs []int64) (map[int64][]*entity.Approval, error)
	// ListPendingForApprover returns pending rows of approverID whose expense is still pending
	ListPendingForApprover(ctx context.Context, approverID int64) ([]*entity.Approval, error)
	Update(ctx context.Context, approval *entity.Approval) error
}

// ApproverStepRepository defines persistence operations for a company's approver sequence
type ApproverStepRepository interface {
	// ListByCompany returns steps ordered by step_order
	ListByCompany(ctx context.Context, companyID int64) ([]entity.ApproverStep, error)
	// Replace deletes every step of the company and inserts approverIDs as steps 1..n
	Replace(ctx context.Context, companyID int64, approverIDs []int64) error
}

// ApprovalRuleRepository defines persistence operations for ApprovalRule
type ApprovalRuleRepository interface {
	// GetByCompany returns nil and no error when the company has no rule
	GetByCompany(ctx context.Context, companyID int64) (*entity.ApprovalRule, error)
	Upsert(ctx context.Context, rule *entity.ApprovalRule) error
}

// AuditRepository defines persistence operations for the audit log
type AuditRepository interface {
	Create(ctx context.Context, entry *entity.AuditEntry) error
	ListByCompany(ctx context.Context, companyID int64, limit, offset int) ([]*entity.AuditEntry, error)
	ListByExpense(ctx context.Context, expenseID int64) ([]*entity.AuditEntry, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
