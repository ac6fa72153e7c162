// Package approval holds the pure approval-chain rules: building a chain for a new
// expense, finding the next step to activate and evaluating a company rule against
// the ledger. Nothing here touches storage.
package approval

import (
	"sort"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// BuildChain returns the ordered ledger rows for a newly submitted expense.
//
// The submitter's manager goes first when flagged as a manager-approver. The company
// sequence follows in step order, skipping approvers already in the chain. The first
// row is pending and every later row is waiting. An empty result is a configuration gap.
func BuildChain(expenseID int64, manager *entity.User, steps []entity.ApproverStep) []*entity.Approval {
	ordered := make([]entity.ApproverStep, len(steps))
	copy(ordered, steps)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].StepOrder < ordered[j].StepOrder })

	chain := make([]*entity.Approval, 0, len(ordered)+1)
	seen := make(map[int64]bool, len(ordered)+1)

	appendRow := func(approverID int64) {
		status := entity.ApprovalStatusWaiting
		if len(chain) == 0 {
			status = entity.ApprovalStatusPending
		}
		chain = append(chain, &entity.Approval{
			ExpenseID:     expenseID,
			ApproverID:    approverID,
			SequenceOrder: len(chain) + 1,
			Status:        status,
		})
		seen[approverID] = true
	}

	if manager != nil && manager.IsManagerApprover {
		appendRow(manager.ID)
	}

	for _, step := range ordered {
		if seen[step.ApproverID] {
			continue
		}
		appendRow(step.ApproverID)
	}

	return chain
}

// NextWaiting returns the waiting row with the lowest sequence order, or nil
func NextWaiting(rows []*entity.Approval) *entity.Approval {
	var next *entity.Approval
	for _, row := range rows {
		if row.Status != entity.ApprovalStatusWaiting {
			continue
		}
		if next == nil || row.SequenceOrder < next.SequenceOrder {
			next = row
		}
	}
	return next
}

// CountPending returns how many rows are currently pending
func CountPending(rows []*entity.Approval) int {
	n := 0
	for _, row := range rows {
		if row.Status == entity.ApprovalStatusPending {
			n++
		}
	}
	return n
}
