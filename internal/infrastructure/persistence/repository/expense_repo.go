package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ErrStaleExpense is returned when a finalization targets an expense that is no longer pending
var ErrStaleExpense = errors.New("expense is no longer pending")

const expenseColumns = `id, company_id, submitter_id, amount, currency, amount_in_company_currency,
	category, description, expense_date, status, finalized_at, created_at, updated_at`

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sqlite.DB, logger *zap.Logger) *ExpenseRepository {
	return &ExpenseRepository{db: db, logger: logger}
}

// Create inserts an expense and sets its ID. Amounts are stored as decimal text.
func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	now := time.Now().UTC()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = expense.CreatedAt

	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO expenses (
			company_id, submitter_id, amount, currency, amount_in_company_currency,
			category, description, expense_date, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.CompanyID,
		expense.SubmitterID,
		expense.Amount.StringFixed(2),
		expense.Currency,
		expense.AmountInCompanyCurrency.StringFixed(2),
		nullString(expense.Category),
		nullString(expense.Description),
		nullTime(expense.ExpenseDate),
		expense.Status,
		expense.CreatedAt,
		expense.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create expense",
			zap.Int64("company_id", expense.CompanyID),
			zap.Int64("submitter_id", expense.SubmitterID),
			zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	expense.ID = id
	return nil
}

// GetByID returns nil when the expense does not exist
func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	expense, err := scanExpense(r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return expense, nil
}

// UpdateStatus finalizes a pending expense. It fails with ErrStaleExpense when the
// expense was already finalized.
func (r *ExpenseRepository) UpdateStatus(ctx context.Context, id int64, status string, finalizedAt time.Time) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		UPDATE expenses SET status = ?, finalized_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		status, finalizedAt, finalizedAt, id, entity.ExpenseStatusPending,
	)
	if err != nil {
		r.logger.Error("Failed to update expense status",
			zap.Int64("id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update expense status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("expense %d: %w", id, ErrStaleExpense)
	}
	return nil
}

// List returns expenses matching filter, newest first
func (r *ExpenseRepository) List(ctx context.Context, filter port.ExpenseFilter) ([]*entity.Expense, error) {
	var where []string
	var args []interface{}

	if filter.CompanyID != 0 {
		where = append(where, "company_id = ?")
		args = append(args, filter.CompanyID)
	}
	if filter.SubmitterID != 0 {
		where = append(where, "submitter_id = ?")
		args = append(args, filter.SubmitterID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []*entity.Expense{}
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	return expenses, rows.Err()
}

func scanExpense(row rowScanner) (*entity.Expense, error) {
	var e entity.Expense
	var category, description sql.NullString
	var expenseDate, finalizedAt sql.NullTime

	if err := row.Scan(
		&e.ID,
		&e.CompanyID,
		&e.SubmitterID,
		&e.Amount,
		&e.Currency,
		&e.AmountInCompanyCurrency,
		&category,
		&description,
		&expenseDate,
		&e.Status,
		&finalizedAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return nil, err
	}

	e.Category = category.String
	e.Description = description.String
	e.ExpenseDate = timePtr(expenseDate)
	e.FinalizedAt = timePtr(finalizedAt)
	return &e, nil
}

var _ port.ExpenseRepository = (*ExpenseRepository)(nil)
