package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ApproverStepRepository implements port.ApproverStepRepository
type ApproverStepRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApproverStepRepository creates a new approver sequence repository
func NewApproverStepRepository(db *sqlite.DB, logger *zap.Logger) *ApproverStepRepository {
	return &ApproverStepRepository{db: db, logger: logger}
}

// ListByCompany returns the company's approver sequence in step order
func (r *ApproverStepRepository) ListByCompany(ctx context.Context, companyID int64) ([]entity.ApproverStep, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, company_id, approver_id, step_order
		FROM company_approvers WHERE company_id = ? ORDER BY step_order`, companyID)
	if err != nil {
		r.logger.Error("Failed to list approver steps", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approver steps: %w", err)
	}
	defer rows.Close()

	steps := []entity.ApproverStep{}
	for rows.Next() {
		var s entity.ApproverStep
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.ApproverID, &s.StepOrder); err != nil {
			return nil, fmt.Errorf("failed to scan approver step: %w", err)
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// Replace deletes the company's sequence and writes approverIDs as steps 1..n atomically
func (r *ApproverStepRepository) Replace(ctx context.Context, companyID int64, approverIDs []int64) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		if _, err := exec.ExecContext(txCtx, `DELETE FROM company_approvers WHERE company_id = ?`, companyID); err != nil {
			r.logger.Error("Failed to clear approver steps", zap.Int64("company_id", companyID), zap.Error(err))
			return fmt.Errorf("failed to clear approver steps: %w", err)
		}

		for i, approverID := range approverIDs {
			if _, err := exec.ExecContext(txCtx,
				`INSERT INTO company_approvers (company_id, approver_id, step_order) VALUES (?, ?, ?)`,
				companyID, approverID, i+1,
			); err != nil {
				r.logger.Error("Failed to insert approver step",
					zap.Int64("company_id", companyID),
					zap.Int64("approver_id", approverID),
					zap.Error(err))
				return fmt.Errorf("failed to insert approver step: %w", err)
			}
		}
		return nil
	})
}

var _ port.ApproverStepRepository = (*ApproverStepRepository)(nil)
