package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// EventPublisher receives domain events after the producing transaction commits
type EventPublisher interface {
	Publish(ctx context.Context, evts ...*event.Event)
}

// ApprovalEngine creates approval chains, processes decisions and finalizes expenses
type ApprovalEngine interface {
	SubmitExpense(ctx context.Context, req SubmitExpenseRequest) (*SubmitResult, error)
	Decide(ctx context.Context, req DecideRequest) (*DecisionResult, error)
	Evaluate(ctx context.Context, expenseID int64) (string, error)
}

// SubmitExpenseRequest carries a new expense. Currency defaults to the company currency.
type SubmitExpenseRequest struct {
	SubmitterID int64
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	ExpenseDate *time.Time
}

// SubmitResult is the created expense and its ledger.
// ConfigurationGap is set when no approver could be found; the expense then stays pending.
type SubmitResult struct {
	Expense          *entity.Expense    `json:"expense"`
	Approvals        []*entity.Approval `json:"approvals"`
	ConfigurationGap bool               `json:"configuration_gap"`
}

// DecideRequest is one approver's decision on one ledger row
type DecideRequest struct {
	ApprovalID int64
	ApproverID int64
	Action     string
	Comment    string
}

// DecisionResult reports the expense status after the decision
type DecisionResult struct {
	FinalStatus string           `json:"final_status"`
	Approval    *entity.Approval `json:"approval"`
}

// EngineDeps groups the collaborators of the approval engine
type EngineDeps struct {
	Users     port.UserRepository
	Companies port.CompanyRepository
	Expenses  port.ExpenseRepository
	Approvals port.ApprovalRepository
	Steps     port.ApproverStepRepository
	Rules     port.ApprovalRuleRepository
	Audit     port.AuditRepository
	TxManager port.TransactionManager
	Publisher EventPublisher
	Logger    Logger
}

type approvalEngine struct {
	users     port.UserRepository
	companies port.CompanyRepository
	expenses  port.ExpenseRepository
	approvals port.ApprovalRepository
	steps     port.ApproverStepRepository
	rules     port.ApprovalRuleRepository
	audit     auditTrail
	txManager port.TransactionManager
	publisher EventPublisher
	logger    Logger

	locks *keyedLock
	now   func() time.Time
}

// NewApprovalEngine creates a new ApprovalEngine
func NewApprovalEngine(deps EngineDeps) ApprovalEngine {
	return &approvalEngine{
		users:     deps.Users,
		companies: deps.Companies,
		expenses:  deps.Expenses,
		approvals: deps.Approvals,
		steps:     deps.Steps,
		rules:     deps.Rules,
		audit:     auditTrail{repo: deps.Audit},
		txManager: deps.TxManager,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		locks:     newKeyedLock(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SubmitExpense stores a pending expense and builds its approval chain in one transaction
func (e *approvalEngine) SubmitExpense(ctx context.Context, req SubmitExpenseRequest) (*SubmitResult, error) {
	if err := validateSubmission(&req); err != nil {
		return nil, err
	}

	submitter, err := e.users.GetByID(ctx, req.SubmitterID)
	if err != nil {
		return nil, fmt.Errorf("get submitter: %w", err)
	}
	if submitter == nil {
		return nil, fmt.Errorf("submitter %d: %w", req.SubmitterID, ErrNotFound)
	}

	if req.Currency == "" {
		company, err := e.companies.GetByID(ctx, submitter.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("get company: %w", err)
		}
		req.Currency = entity.DefaultCurrency
		if company != nil && company.Currency != "" {
			req.Currency = company.Currency
		}
	}

	now := e.now()
	expense := &entity.Expense{
		CompanyID:               submitter.CompanyID,
		SubmitterID:             submitter.ID,
		Amount:                  req.Amount,
		Currency:                req.Currency,
		AmountInCompanyCurrency: req.Amount,
		Category:                req.Category,
		Description:             req.Description,
		ExpenseDate:             req.ExpenseDate,
		Status:                  entity.ExpenseStatusPending,
		CreatedAt:               now,
	}

	var chain []*entity.Approval
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.expenses.Create(txCtx, expense); err != nil {
			return fmt.Errorf("create expense: %w", err)
		}

		manager, err := e.managerOf(txCtx, submitter)
		if err != nil {
			return err
		}
		steps, err := e.steps.ListByCompany(txCtx, submitter.CompanyID)
		if err != nil {
			return fmt.Errorf("list approver steps: %w", err)
		}

		chain = approval.BuildChain(expense.ID, manager, steps)
		if len(chain) > 0 {
			if err := e.approvals.CreateBatch(txCtx, chain); err != nil {
				return fmt.Errorf("create approval chain: %w", err)
			}
		}

		return e.audit.append(txCtx, auditRecord{
			companyID: expense.CompanyID,
			actorID:   submitter.ID,
			action:    entity.AuditActionExpenseSubmitted,
			expenseID: expense.ID,
			details: map[string]interface{}{
				"amount":       expense.Amount.StringFixed(2),
				"currency":     expense.Currency,
				"chain_length": len(chain),
			},
		})
	})
	if err != nil {
		e.logger.Error("Failed to submit expense", "error", err, "submitter_id", req.SubmitterID)
		return nil, err
	}

	result := &SubmitResult{Expense: expense, Approvals: chain, ConfigurationGap: len(chain) == 0}

	evts := []*event.Event{
		event.NewEvent(event.TypeExpenseSubmitted, expense.ID, expense.CompanyID, map[string]interface{}{
			event.PayloadSubmitterID: expense.SubmitterID,
			event.PayloadAmount:      expense.Amount.StringFixed(2),
			event.PayloadCurrency:    expense.Currency,
		}),
	}
	if result.ConfigurationGap {
		e.logger.Warn("Expense has no approvers and will stay pending",
			"expense_id", expense.ID,
			"company_id", expense.CompanyID)
		evts = append(evts, event.NewEvent(event.TypeConfigurationGap, expense.ID, expense.CompanyID, nil))
	}
	for _, row := range chain {
		if row.Status == entity.ApprovalStatusPending {
			evts = append(evts, stepActivated(expense, row))
		}
	}
	e.publish(ctx, evts...)

	e.logger.Info("Expense submitted",
		"expense_id", expense.ID,
		"company_id", expense.CompanyID,
		"chain_length", len(chain))
	return result, nil
}

// Decide records one approver decision, advances the chain on approval and evaluates the rule.
// The whole sequence runs under the expense lock in a single transaction.
func (e *approvalEngine) Decide(ctx context.Context, req DecideRequest) (*DecisionResult, error) {
	row, err := e.approvals.GetByID(ctx, req.ApprovalID)
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	if row == nil || row.ApproverID != req.ApproverID {
		return nil, ErrNotFoundOrUnauthorized
	}

	unlock := e.locks.Lock(row.ExpenseID)
	defer unlock()

	var (
		result    *DecisionResult
		expense   *entity.Expense
		activated *entity.Approval
	)
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		expense, err = e.expenses.GetByID(txCtx, row.ExpenseID)
		if err != nil {
			return fmt.Errorf("get expense: %w", err)
		}
		approver, err := e.users.GetByID(txCtx, req.ApproverID)
		if err != nil {
			return fmt.Errorf("get approver: %w", err)
		}
		if expense == nil || approver == nil || approver.CompanyID != expense.CompanyID {
			return ErrNotFoundOrUnauthorized
		}

		ledger, err := e.approvals.ListByExpense(txCtx, expense.ID)
		if err != nil {
			return fmt.Errorf("list approvals: %w", err)
		}
		current := findApproval(ledger, req.ApprovalID)
		if current == nil || current.ApproverID != req.ApproverID {
			return ErrNotFoundOrUnauthorized
		}
		trigger, err := triggerFor(req.Action)
		if err != nil {
			return err
		}
		if expense.IsFinal() || current.Status != entity.ApprovalStatusPending {
			return fmt.Errorf("%w: approval %d is %s, expense %d is %s",
				ErrStepNotActive, current.ID, current.Status, expense.ID, expense.Status)
		}

		next, err := workflow.TransitionApproval(txCtx, current.Status, trigger)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStepNotActive, err)
		}
		decidedAt := e.now()
		current.Status = next
		current.Comment = utils.SanitizeString(req.Comment)
		current.DecidedAt = &decidedAt
		if err := e.approvals.Update(txCtx, current); err != nil {
			return fmt.Errorf("update approval: %w", err)
		}

		if current.Status == entity.ApprovalStatusApproved {
			activated, err = e.advance(txCtx, ledger)
			if err != nil {
				return err
			}
		}

		if err := e.audit.append(txCtx, auditRecord{
			companyID:  expense.CompanyID,
			actorID:    req.ApproverID,
			action:     entity.AuditActionApprovalDecided,
			expenseID:  expense.ID,
			approvalID: current.ID,
			details: map[string]interface{}{
				"action":         req.Action,
				"sequence_order": current.SequenceOrder,
			},
		}); err != nil {
			return err
		}

		verdict, err := e.evaluateLedger(txCtx, expense, ledger, req.ApproverID)
		if err != nil {
			return err
		}

		result = &DecisionResult{FinalStatus: verdict.String(), Approval: current}
		return nil
	})
	if err != nil {
		e.logger.Error("Failed to process decision",
			"error", err,
			"approval_id", req.ApprovalID,
			"approver_id", req.ApproverID)
		return nil, err
	}

	evts := []*event.Event{
		event.NewEvent(event.TypeApprovalDecided, expense.ID, expense.CompanyID, map[string]interface{}{
			event.PayloadApprovalID: result.Approval.ID,
			event.PayloadApproverID: result.Approval.ApproverID,
			event.PayloadAction:     req.Action,
		}),
	}
	if activated != nil && result.FinalStatus == entity.ExpenseStatusPending {
		evts = append(evts, stepActivated(expense, activated))
	}
	evts = append(evts, finalizedEvent(expense))
	e.publish(ctx, evts...)

	e.logger.Info("Decision recorded",
		"approval_id", result.Approval.ID,
		"expense_id", expense.ID,
		"action", req.Action,
		"final_status", result.FinalStatus)
	return result, nil
}

// Evaluate applies the company rule to the expense ledger. A finalized expense is
// returned unchanged.
func (e *approvalEngine) Evaluate(ctx context.Context, expenseID int64) (string, error) {
	unlock := e.locks.Lock(expenseID)
	defer unlock()

	var (
		expense   *entity.Expense
		status    string
		finalized bool
	)
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		expense, err = e.expenses.GetByID(txCtx, expenseID)
		if err != nil {
			return fmt.Errorf("get expense: %w", err)
		}
		if expense == nil {
			return fmt.Errorf("expense %d: %w", expenseID, ErrNotFound)
		}
		if expense.IsFinal() {
			status = expense.Status
			return nil
		}

		ledger, err := e.approvals.ListByExpense(txCtx, expense.ID)
		if err != nil {
			return fmt.Errorf("list approvals: %w", err)
		}
		verdict, err := e.evaluateLedger(txCtx, expense, ledger, 0)
		if err != nil {
			return err
		}
		status = verdict.String()
		finalized = verdict != approval.VerdictPending
		return nil
	})
	if err != nil {
		e.logger.Error("Failed to evaluate expense", "error", err, "expense_id", expenseID)
		return "", err
	}

	if finalized {
		e.publish(ctx, finalizedEvent(expense))
	}
	return status, nil
}

// advance activates the lowest waiting row of the ledger, if any
func (e *approvalEngine) advance(ctx context.Context, ledger []*entity.Approval) (*entity.Approval, error) {
	next := approval.NextWaiting(ledger)
	if next == nil {
		return nil, nil
	}

	status, err := workflow.TransitionApproval(ctx, next.Status, workflow.TriggerActivate)
	if err != nil {
		return nil, fmt.Errorf("activate approval %d: %w", next.ID, err)
	}
	next.Status = status
	if err := e.approvals.Update(ctx, next); err != nil {
		return nil, fmt.Errorf("activate approval %d: %w", next.ID, err)
	}
	return next, nil
}

// evaluateLedger finalizes a pending expense when the rule says so. On approval every
// waiting or pending row is skipped; on rejection the other rows are left as they are.
func (e *approvalEngine) evaluateLedger(ctx context.Context, expense *entity.Expense, ledger []*entity.Approval, actorID int64) (approval.Verdict, error) {
	rule, err := e.rules.GetByCompany(ctx, expense.CompanyID)
	if err != nil {
		return "", fmt.Errorf("get approval rule: %w", err)
	}
	if rule == nil {
		rule = entity.DefaultApprovalRule(expense.CompanyID)
	}

	verdict := approval.Evaluate(rule, ledger)
	if verdict == approval.VerdictPending {
		return verdict, nil
	}

	trigger := workflow.TriggerApprove
	if verdict == approval.VerdictRejected {
		trigger = workflow.TriggerReject
	}
	status, err := workflow.TransitionExpense(ctx, expense.Status, trigger)
	if err != nil {
		return "", fmt.Errorf("finalize expense %d: %w", expense.ID, err)
	}

	finalizedAt := e.now()
	if err := e.expenses.UpdateStatus(ctx, expense.ID, status, finalizedAt); err != nil {
		return "", fmt.Errorf("finalize expense %d: %w", expense.ID, err)
	}
	expense.Status = status
	expense.FinalizedAt = &finalizedAt
	expense.UpdatedAt = finalizedAt

	skipped := 0
	if verdict == approval.VerdictApproved {
		for _, row := range ledger {
			if row.Status != entity.ApprovalStatusWaiting && row.Status != entity.ApprovalStatusPending {
				continue
			}
			next, err := workflow.TransitionApproval(ctx, row.Status, workflow.TriggerSkip)
			if err != nil {
				return "", fmt.Errorf("skip approval %d: %w", row.ID, err)
			}
			row.Status = next
			if err := e.approvals.Update(ctx, row); err != nil {
				return "", fmt.Errorf("skip approval %d: %w", row.ID, err)
			}
			skipped++
		}
	}

	if err := e.audit.append(ctx, auditRecord{
		companyID: expense.CompanyID,
		actorID:   actorID,
		action:    entity.AuditActionExpenseFinalized,
		expenseID: expense.ID,
		details: map[string]interface{}{
			"status":    status,
			"rule_type": string(rule.Kind),
			"threshold": rule.PercentageThreshold,
			"skipped":   skipped,
		},
	}); err != nil {
		return "", err
	}

	return verdict, nil
}

func (e *approvalEngine) managerOf(ctx context.Context, submitter *entity.User) (*entity.User, error) {
	if submitter.ManagerID == nil {
		return nil, nil
	}
	manager, err := e.users.GetByID(ctx, *submitter.ManagerID)
	if err != nil {
		return nil, fmt.Errorf("get manager: %w", err)
	}
	if manager == nil || manager.CompanyID != submitter.CompanyID || manager.ID == submitter.ID {
		return nil, nil
	}
	return manager, nil
}

func (e *approvalEngine) publish(ctx context.Context, evts ...*event.Event) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(ctx, evts...)
}

func validateSubmission(req *SubmitExpenseRequest) error {
	if req.SubmitterID == 0 {
		return fmt.Errorf("%w: submitter", ErrMissingFields)
	}
	if req.Amount.IsZero() {
		return ErrMissingAmount
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if req.Currency != "" {
		currency, err := utils.NormalizeCurrency(req.Currency)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMissingFields, err)
		}
		req.Currency = currency
	}
	req.Category = utils.SanitizeString(req.Category)
	req.Description = utils.SanitizeString(req.Description)
	return nil
}

func triggerFor(action string) (workflow.Trigger, error) {
	switch action {
	case entity.ActionApprove:
		return workflow.TriggerApprove, nil
	case entity.ActionReject:
		return workflow.TriggerReject, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}

func findApproval(ledger []*entity.Approval, id int64) *entity.Approval {
	for _, row := range ledger {
		if row.ID == id {
			return row
		}
	}
	return nil
}

func stepActivated(expense *entity.Expense, row *entity.Approval) *event.Event {
	return event.NewEvent(event.TypeStepActivated, expense.ID, expense.CompanyID, map[string]interface{}{
		event.PayloadApprovalID:  row.ID,
		event.PayloadApproverID:  row.ApproverID,
		event.PayloadSubmitterID: expense.SubmitterID,
		event.PayloadAmount:      expense.Amount.StringFixed(2),
		event.PayloadCurrency:    expense.Currency,
	})
}

// finalizedEvent returns nil while the expense is pending
func finalizedEvent(expense *entity.Expense) *event.Event {
	var t event.Type
	switch expense.Status {
	case entity.ExpenseStatusApproved:
		t = event.TypeExpenseApproved
	case entity.ExpenseStatusRejected:
		t = event.TypeExpenseRejected
	default:
		return nil
	}
	return event.NewEvent(t, expense.ID, expense.CompanyID, map[string]interface{}{
		event.PayloadSubmitterID: expense.SubmitterID,
		event.PayloadStatus:      expense.Status,
		event.PayloadAmount:      expense.Amount.StringFixed(2),
		event.PayloadCurrency:    expense.Currency,
	})
}
