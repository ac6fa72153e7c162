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

// ApprovalRuleRepository implements port.ApprovalRuleRepository
type ApprovalRuleRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApprovalRuleRepository creates a new approval rule repository
func NewApprovalRuleRepository(db *sqlite.DB, logger *zap.Logger) *ApprovalRuleRepository {
	return &ApprovalRuleRepository{db: db, logger: logger}
}

// GetByCompany returns nil when the company has no rule
func (r *ApprovalRuleRepository) GetByCompany(ctx context.Context, companyID int64) (*entity.ApprovalRule, error) {
	var rule entity.ApprovalRule
	var kind string
	var specific sql.NullInt64

	err := r.db.Executor(ctx).QueryRowContext(ctx, `
		SELECT id, company_id, rule_type, percentage_threshold, specific_approver_id, updated_at
		FROM approval_rules WHERE company_id = ?`, companyID,
	).Scan(&rule.ID, &rule.CompanyID, &kind, &rule.PercentageThreshold, &specific, &rule.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval rule", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval rule: %w", err)
	}

	rule.Kind = entity.RuleKind(kind)
	rule.SpecificApproverID = int64Ptr(specific)
	return &rule, nil
}

// Upsert writes the single rule of rule.CompanyID
func (r *ApprovalRuleRepository) Upsert(ctx context.Context, rule *entity.ApprovalRule) error {
	rule.UpdatedAt = time.Now().UTC()

	_, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO approval_rules (company_id, rule_type, percentage_threshold, specific_approver_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET
			rule_type = excluded.rule_type,
			percentage_threshold = excluded.percentage_threshold,
			specific_approver_id = excluded.specific_approver_id,
			updated_at = excluded.updated_at`,
		rule.CompanyID,
		string(rule.Kind),
		rule.PercentageThreshold,
		nullInt64(rule.SpecificApproverID),
		rule.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert approval rule", zap.Int64("company_id", rule.CompanyID), zap.Error(err))
		return fmt.Errorf("failed to upsert approval rule: %w", err)
	}

	return r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT id FROM approval_rules WHERE company_id = ?`, rule.CompanyID,
	).Scan(&rule.ID)
}

var _ port.ApprovalRuleRepository = (*ApprovalRuleRepository)(nil)
