package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ConfigService manages a company's approver sequence and approval rule
type ConfigService interface {
	SetApproverSequence(ctx context.Context, actor Actor, companyID int64, approverIDs []int64) ([]entity.ApproverStep, error)
	GetApproverSequence(ctx context.Context, actor Actor, companyID int64) ([]entity.ApproverStep, error)
	SetApprovalRule(ctx context.Context, actor Actor, companyID int64, kind entity.RuleKind, threshold int, specificApproverID *int64) (*entity.ApprovalRule, error)
	GetApprovalRule(ctx context.Context, actor Actor, companyID int64) (*entity.ApprovalRule, error)
}

type configServiceImpl struct {
	users     port.UserRepository
	steps     port.ApproverStepRepository
	rules     port.ApprovalRuleRepository
	audit     auditTrail
	txManager port.TransactionManager
	logger    Logger
}

// NewConfigService creates a new ConfigService
func NewConfigService(
	users port.UserRepository,
	steps port.ApproverStepRepository,
	rules port.ApprovalRuleRepository,
	audit port.AuditRepository,
	txManager port.TransactionManager,
	logger Logger,
) ConfigService {
	return &configServiceImpl{
		users:     users,
		steps:     steps,
		rules:     rules,
		audit:     auditTrail{repo: audit},
		txManager: txManager,
		logger:    logger,
	}
}

// SetApproverSequence replaces the whole sequence with approverIDs as steps 1..n.
// Every approver must belong to the company; existing expenses keep their chains.
func (s *configServiceImpl) SetApproverSequence(ctx context.Context, actor Actor, companyID int64, approverIDs []int64) ([]entity.ApproverStep, error) {
	if err := s.authorize(actor, companyID); err != nil {
		return nil, err
	}

	var steps []entity.ApproverStep
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requireMembers(txCtx, companyID, approverIDs); err != nil {
			return err
		}
		if err := s.steps.Replace(txCtx, companyID, approverIDs); err != nil {
			return fmt.Errorf("replace approver sequence: %w", err)
		}

		var err error
		steps, err = s.steps.ListByCompany(txCtx, companyID)
		if err != nil {
			return fmt.Errorf("list approver sequence: %w", err)
		}

		return s.audit.append(txCtx, auditRecord{
			companyID: companyID,
			actorID:   actor.UserID,
			action:    entity.AuditActionSequenceReplaced,
			details:   map[string]interface{}{"approver_ids": approverIDs},
		})
	})
	if err != nil {
		s.logger.Error("Failed to set approver sequence", "error", err, "company_id", companyID)
		return nil, err
	}

	s.logger.Info("Approver sequence replaced", "company_id", companyID, "count", len(steps))
	return steps, nil
}

// GetApproverSequence returns the company's sequence in step order
func (s *configServiceImpl) GetApproverSequence(ctx context.Context, actor Actor, companyID int64) ([]entity.ApproverStep, error) {
	if err := s.authorize(actor, companyID); err != nil {
		return nil, err
	}
	steps, err := s.steps.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list approver sequence: %w", err)
	}
	return steps, nil
}

// SetApprovalRule upserts the company rule
func (s *configServiceImpl) SetApprovalRule(ctx context.Context, actor Actor, companyID int64, kind entity.RuleKind, threshold int, specificApproverID *int64) (*entity.ApprovalRule, error) {
	if err := s.authorize(actor, companyID); err != nil {
		return nil, err
	}

	rule := &entity.ApprovalRule{
		CompanyID:           companyID,
		Kind:                kind,
		PercentageThreshold: threshold,
		SpecificApproverID:  specificApproverID,
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if specificApproverID != nil {
			if err := s.requireMembers(txCtx, companyID, []int64{*specificApproverID}); err != nil {
				return err
			}
		}
		if err := s.rules.Upsert(txCtx, rule); err != nil {
			return fmt.Errorf("upsert approval rule: %w", err)
		}

		details := map[string]interface{}{
			"rule_type":            string(rule.Kind),
			"percentage_threshold": rule.PercentageThreshold,
		}
		if rule.SpecificApproverID != nil {
			details["specific_approver_id"] = *rule.SpecificApproverID
		}
		return s.audit.append(txCtx, auditRecord{
			companyID: companyID,
			actorID:   actor.UserID,
			action:    entity.AuditActionRuleUpdated,
			details:   details,
		})
	})
	if err != nil {
		s.logger.Error("Failed to set approval rule", "error", err, "company_id", companyID)
		return nil, err
	}

	s.logger.Info("Approval rule updated",
		"company_id", companyID,
		"rule_type", rule.Kind,
		"threshold", rule.PercentageThreshold)
	return rule, nil
}

// GetApprovalRule returns the stored rule, or the unanimous default when none is stored
func (s *configServiceImpl) GetApprovalRule(ctx context.Context, actor Actor, companyID int64) (*entity.ApprovalRule, error) {
	if err := s.authorize(actor, companyID); err != nil {
		return nil, err
	}
	rule, err := s.rules.GetByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("get approval rule: %w", err)
	}
	if rule == nil {
		rule = entity.DefaultApprovalRule(companyID)
	}
	return rule, nil
}

func (s *configServiceImpl) authorize(actor Actor, companyID int64) error {
	if err := actor.Require(entity.CapConfigureRules); err != nil {
		return err
	}
	return actor.requireCompany(companyID)
}

// requireMembers fails with ErrInvalidApprover unless every id is a user of companyID
func (s *configServiceImpl) requireMembers(ctx context.Context, companyID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	unique := make(map[int64]bool, len(ids))
	for _, id := range ids {
		unique[id] = true
	}
	lookup := make([]int64, 0, len(unique))
	for id := range unique {
		lookup = append(lookup, id)
	}

	users, err := s.users.ListByIDs(ctx, companyID, lookup)
	if err != nil {
		return fmt.Errorf("look up approvers: %w", err)
	}
	if len(users) != len(unique) {
		found := make(map[int64]bool, len(users))
		for _, u := range users {
			found[u.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return fmt.Errorf("%w: user %d", ErrInvalidApprover, id)
			}
		}
	}
	return nil
}
