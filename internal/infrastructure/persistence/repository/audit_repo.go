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

const auditColumns = `id, company_id, actor_id, action, expense_id, approval_id, details, created_at`

// AuditRepository implements port.AuditRepository. Entries are never updated or deleted.
type AuditRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit log repository
func NewAuditRepository(db *sqlite.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Create appends an entry and sets its ID
func (r *AuditRepository) Create(ctx context.Context, entry *entity.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO audit_logs (company_id, actor_id, action, expense_id, approval_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.CompanyID,
		entry.ActorID,
		entry.Action,
		nullInt64(entry.ExpenseID),
		nullInt64(entry.ApprovalID),
		nullString(entry.Details),
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create audit entry",
			zap.Int64("company_id", entry.CompanyID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListByCompany returns the newest entries of a company first
func (r *AuditRepository) ListByCompany(ctx context.Context, companyID int64, limit, offset int) ([]*entity.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE company_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		companyID, limit, offset)
}

// ListByExpense returns the entries of one expense in insertion order
func (r *AuditRepository) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.AuditEntry, error) {
	return r.query(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE expense_id = ? ORDER BY id`, expenseID)
}

func (r *AuditRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.AuditEntry, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*entity.AuditEntry{}
	for rows.Next() {
		var e entity.AuditEntry
		var expenseID, approvalID sql.NullInt64
		var details sql.NullString

		if err := rows.Scan(&e.ID, &e.CompanyID, &e.ActorID, &e.Action, &expenseID, &approvalID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.ExpenseID = int64Ptr(expenseID)
		e.ApprovalID = int64Ptr(approvalID)
		e.Details = details.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

var _ port.AuditRepository = (*AuditRepository)(nil)
