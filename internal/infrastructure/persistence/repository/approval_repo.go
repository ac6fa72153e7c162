package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const approvalColumns = `id, expense_id, approver_id, sequence_order, status, comment, decided_at, created_at, updated_at`

// ApprovalRepository implements port.ApprovalRepository
type ApprovalRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval ledger repository
func NewApprovalRepository(db *sqlite.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

// CreateBatch inserts every row and sets their IDs. Callers wrap it in a transaction
// so a partial chain is never visible.
func (r *ApprovalRepository) CreateBatch(ctx context.Context, approvals []*entity.Approval) error {
	exec := r.db.Executor(ctx)
	now := time.Now().UTC()

	for _, a := range approvals {
		a.CreatedAt = now
		a.UpdatedAt = now

		result, err := exec.ExecContext(ctx, `
			INSERT INTO approvals (expense_id, approver_id, sequence_order, status, comment, decided_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ExpenseID,
			a.ApproverID,
			a.SequenceOrder,
			a.Status,
			nullString(a.Comment),
			nullTime(a.DecidedAt),
			a.CreatedAt,
			a.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create approval",
				zap.Int64("expense_id", a.ExpenseID),
				zap.Int("sequence_order", a.SequenceOrder),
				zap.Error(err))
			return fmt.Errorf("failed to create approval: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		a.ID = id
	}

	return nil
}

// GetByID returns nil when the row does not exist
func (r *ApprovalRepository) GetByID(ctx context.Context, id int64) (*entity.Approval, error) {
	approval, err := scanApproval(r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return approval, nil
}

// ListByExpense returns the ledger of an expense ordered by sequence_order
func (r *ApprovalRepository) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.Approval, error) {
	return r.query(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE expense_id = ? ORDER BY sequence_order`, expenseID)
}

// ListByExpenses returns the ledgers of several expenses keyed by expense id
func (r *ApprovalRepository) ListByExpenses(ctx context.Context, expenseIDs []int64) (map[int64][]*entity.Approval, error) {
	result := make(map[int64][]*entity.Approval, len(expenseIDs))
	if len(expenseIDs) == 0 {
		return result, nil
	}

	rows, err := r.query(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE expense_id IN (`+placeholders(len(expenseIDs))+`)
		ORDER BY expense_id, sequence_order`,
		int64Args(expenseIDs)...)
	if err != nil {
		return nil, err
	}
	for _, a := range rows {
		result[a.ExpenseID] = append(result[a.ExpenseID], a)
	}
	return result, nil
}

// ListPendingForApprover returns the rows awaiting approverID on expenses that are still pending
func (r *ApprovalRepository) ListPendingForApprover(ctx context.Context, approverID int64) ([]*entity.Approval, error) {
	return r.query(ctx, `
		SELECT a.id, a.expense_id, a.approver_id, a.sequence_order, a.status, a.comment, a.decided_at, a.created_at, a.updated_at
		FROM approvals a
		JOIN expenses e ON e.id = a.expense_id
		WHERE a.approver_id = ? AND a.status = ? AND e.status = ?
		ORDER BY a.created_at, a.id`,
		approverID, entity.ApprovalStatusPending, entity.ExpenseStatusPending)
}

// Update persists status, comment and decided_at of a row
func (r *ApprovalRepository) Update(ctx context.Context, approval *entity.Approval) error {
	approval.UpdatedAt = time.Now().UTC()

	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		UPDATE approvals SET status = ?, comment = ?, decided_at = ?, updated_at = ?
		WHERE id = ?`,
		approval.Status,
		nullString(approval.Comment),
		nullTime(approval.DecidedAt),
		approval.UpdatedAt,
		approval.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update approval",
			zap.Int64("id", approval.ID),
			zap.String("status", approval.Status),
			zap.Error(err))
		return fmt.Errorf("failed to update approval: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("approval %d not found", approval.ID)
	}
	return nil
}

func (r *ApprovalRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Approval, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list approvals", zap.Error(err))
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	approvals := []*entity.Approval{}
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

func scanApproval(row rowScanner) (*entity.Approval, error) {
	var a entity.Approval
	var comment sql.NullString
	var decidedAt sql.NullTime

	if err := row.Scan(
		&a.ID,
		&a.ExpenseID,
		&a.ApproverID,
		&a.SequenceOrder,
		&a.Status,
		&comment,
		&decidedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	a.Comment = comment.String
	a.DecidedAt = timePtr(decidedAt)
	return &a, nil
}

var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
