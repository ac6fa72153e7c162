package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ExpenseDetail is an expense with its approval ledger
type ExpenseDetail struct {
	Expense   *entity.Expense    `json:"expense"`
	Approvals []*entity.Approval `json:"approvals"`
}

// PendingApproval is one entry of an approver's inbox
type PendingApproval struct {
	ApprovalID    int64           `json:"approval_id"`
	ExpenseID     int64           `json:"expense_id"`
	EmployeeID    int64           `json:"employee_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Category      string          `json:"category,omitempty"`
	Description   string          `json:"description,omitempty"`
	ExpenseDate   *time.Time      `json:"expense_date,omitempty"`
	SequenceOrder int             `json:"sequence_order"`
}

// ExpenseService answers read-side queries over expenses and exports them
type ExpenseService interface {
	ListMine(ctx context.Context, actor Actor, limit, offset int) ([]*entity.Expense, error)
	ListCompany(ctx context.Context, actor Actor, status string, limit, offset int) ([]*entity.Expense, error)
	Get(ctx context.Context, actor Actor, expenseID int64) (*ExpenseDetail, error)
	PendingApprovals(ctx context.Context, actor Actor) ([]*PendingApproval, error)
	Export(ctx context.Context, actor Actor, w io.Writer) error
}

type expenseServiceImpl struct {
	companies   port.CompanyRepository
	users       port.UserRepository
	expenses    port.ExpenseRepository
	approvals   port.ApprovalRepository
	exporter    port.ReportExporter
	logger      Logger
	exportLimit int
}

// ExpenseServiceOption configures the expense service
type ExpenseServiceOption func(*expenseServiceImpl)

// WithExportLimit caps the number of expenses written by Export; 0 means no cap
func WithExportLimit(n int) ExpenseServiceOption {
	return func(s *expenseServiceImpl) {
		s.exportLimit = n
	}
}

// NewExpenseService creates a new ExpenseService
func NewExpenseService(
	companies port.CompanyRepository,
	users port.UserRepository,
	expenses port.ExpenseRepository,
	approvals port.ApprovalRepository,
	exporter port.ReportExporter,
	logger Logger,
	opts ...ExpenseServiceOption,
) ExpenseService {
	s := &expenseServiceImpl{
		companies: companies,
		users:     users,
		expenses:  expenses,
		approvals: approvals,
		exporter:  exporter,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListMine returns the actor's own expenses, newest first
func (s *expenseServiceImpl) ListMine(ctx context.Context, actor Actor, limit, offset int) ([]*entity.Expense, error) {
	expenses, err := s.expenses.List(ctx, port.ExpenseFilter{
		CompanyID:   actor.CompanyID,
		SubmitterID: actor.UserID,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// ListCompany returns all expenses of the actor's company; status may be empty
func (s *expenseServiceImpl) ListCompany(ctx context.Context, actor Actor, status string, limit, offset int) ([]*entity.Expense, error) {
	if err := actor.Require(entity.CapViewCompanyItems); err != nil {
		return nil, err
	}
	if status != "" && status != entity.ExpenseStatusPending &&
		status != entity.ExpenseStatusApproved && status != entity.ExpenseStatusRejected {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMissingFields, status)
	}

	expenses, err := s.expenses.List(ctx, port.ExpenseFilter{
		CompanyID: actor.CompanyID,
		Status:    status,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// Get returns the expense and ledger to its submitter, to anyone on its chain and to
// company viewers. Everyone else gets ErrNotFound.
func (s *expenseServiceImpl) Get(ctx context.Context, actor Actor, expenseID int64) (*ExpenseDetail, error) {
	expense, err := s.expenses.GetByID(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	if expense == nil || expense.CompanyID != actor.CompanyID {
		return nil, fmt.Errorf("expense %d: %w", expenseID, ErrNotFound)
	}

	ledger, err := s.approvals.ListByExpense(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}

	if expense.SubmitterID != actor.UserID && !actor.Role.Can(entity.CapViewCompanyItems) && !onChain(ledger, actor.UserID) {
		return nil, fmt.Errorf("expense %d: %w", expenseID, ErrNotFound)
	}

	return &ExpenseDetail{Expense: expense, Approvals: ledger}, nil
}

// PendingApprovals lists rows waiting for the actor's decision
func (s *expenseServiceImpl) PendingApprovals(ctx context.Context, actor Actor) ([]*PendingApproval, error) {
	rows, err := s.approvals.ListPendingForApprover(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}

	inbox := make([]*PendingApproval, 0, len(rows))
	for _, row := range rows {
		expense, err := s.expenses.GetByID(ctx, row.ExpenseID)
		if err != nil {
			return nil, fmt.Errorf("get expense %d: %w", row.ExpenseID, err)
		}
		if expense == nil || expense.CompanyID != actor.CompanyID {
			continue
		}
		inbox = append(inbox, &PendingApproval{
			ApprovalID:    row.ID,
			ExpenseID:     expense.ID,
			EmployeeID:    expense.SubmitterID,
			Amount:        expense.Amount,
			Currency:      expense.Currency,
			Category:      expense.Category,
			Description:   expense.Description,
			ExpenseDate:   expense.ExpenseDate,
			SequenceOrder: row.SequenceOrder,
		})
	}
	return inbox, nil
}

// Export writes every expense of the actor's company with its ledger to w
func (s *expenseServiceImpl) Export(ctx context.Context, actor Actor, w io.Writer) error {
	if err := actor.Require(entity.CapViewCompanyItems); err != nil {
		return err
	}

	company, err := s.companies.GetByID(ctx, actor.CompanyID)
	if err != nil {
		return fmt.Errorf("get company: %w", err)
	}
	if company == nil {
		return fmt.Errorf("company %d: %w", actor.CompanyID, ErrNotFound)
	}

	expenses, err := s.expenses.List(ctx, port.ExpenseFilter{CompanyID: company.ID, Limit: s.exportLimit})
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}
	ids := make([]int64, len(expenses))
	for i, e := range expenses {
		ids[i] = e.ID
	}
	ledgers, err := s.approvals.ListByExpenses(ctx, ids)
	if err != nil {
		return fmt.Errorf("list approvals: %w", err)
	}
	users, err := s.users.ListByCompany(ctx, company.ID)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	byID := make(map[int64]*entity.User, len(users))
	names := make(map[int64]string, len(users))
	for _, u := range users {
		byID[u.ID] = u
		names[u.ID] = u.Name
	}

	reports := make([]port.ExpenseReport, len(expenses))
	for i, e := range expenses {
		reports[i] = port.ExpenseReport{
			Expense:   e,
			Submitter: byID[e.SubmitterID],
			Approvals: ledgers[e.ID],
		}
	}

	if err := s.exporter.Write(w, company, reports, names); err != nil {
		s.logger.Error("Failed to export expenses", "error", err, "company_id", company.ID)
		return fmt.Errorf("write report: %w", err)
	}

	s.logger.Info("Expenses exported", "company_id", company.ID, "count", len(reports))
	return nil
}

func onChain(ledger []*entity.Approval, userID int64) bool {
	for _, row := range ledger {
		if row.ApproverID == userID {
			return true
		}
	}
	return false
}
