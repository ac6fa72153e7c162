package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const maxAuditPage = 500

// AuditService exposes the append-only audit log
type AuditService interface {
	ListCompanyLog(ctx context.Context, actor Actor, limit, offset int) ([]*entity.AuditEntry, error)
	ListExpenseLog(ctx context.Context, actor Actor, expenseID int64) ([]*entity.AuditEntry, error)
}

type auditServiceImpl struct {
	audit    port.AuditRepository
	expenses port.ExpenseRepository
}

// NewAuditService creates a new AuditService
func NewAuditService(audit port.AuditRepository, expenses port.ExpenseRepository) AuditService {
	return &auditServiceImpl{audit: audit, expenses: expenses}
}

// ListCompanyLog returns the newest entries of the actor's company first
func (s *auditServiceImpl) ListCompanyLog(ctx context.Context, actor Actor, limit, offset int) ([]*entity.AuditEntry, error) {
	if err := actor.Require(entity.CapViewAuditLog); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxAuditPage {
		limit = maxAuditPage
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.audit.ListByCompany(ctx, actor.CompanyID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return entries, nil
}

// ListExpenseLog returns the history of one expense of the actor's company
func (s *auditServiceImpl) ListExpenseLog(ctx context.Context, actor Actor, expenseID int64) ([]*entity.AuditEntry, error) {
	if err := actor.Require(entity.CapViewAuditLog); err != nil {
		return nil, err
	}

	expense, err := s.expenses.GetByID(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	if expense == nil || expense.CompanyID != actor.CompanyID {
		return nil, fmt.Errorf("expense %d: %w", expenseID, ErrNotFound)
	}

	entries, err := s.audit.ListByExpense(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return entries, nil
}
