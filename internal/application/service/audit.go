package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// auditTrail appends entries to the audit log inside the caller's transaction
type auditTrail struct {
	repo port.AuditRepository
}

type auditRecord struct {
	companyID  int64
	actorID    int64
	action     string
	expenseID  int64
	approvalID int64
	details    map[string]interface{}
}

func (a auditTrail) append(ctx context.Context, rec auditRecord) error {
	entry := &entity.AuditEntry{
		CompanyID: rec.companyID,
		ActorID:   rec.actorID,
		Action:    rec.action,
	}
	if rec.expenseID != 0 {
		id := rec.expenseID
		entry.ExpenseID = &id
	}
	if rec.approvalID != 0 {
		id := rec.approvalID
		entry.ApprovalID = &id
	}
	if len(rec.details) > 0 {
		raw, err := json.Marshal(rec.details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		entry.Details = string(raw)
	}

	if err := a.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("append audit %s: %w", rec.action, err)
	}
	return nil
}
