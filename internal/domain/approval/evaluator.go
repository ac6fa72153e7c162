package approval

import "github.com/garyjia/expense-approval/internal/domain/entity"

// Verdict is the outcome of evaluating a rule against a ledger
type Verdict string

const (
	VerdictPending  Verdict = Verdict(entity.ExpenseStatusPending)
	VerdictApproved Verdict = Verdict(entity.ExpenseStatusApproved)
	VerdictRejected Verdict = Verdict(entity.ExpenseStatusRejected)
)

// String returns the expense status the verdict maps to
func (v Verdict) String() string {
	return string(v)
}

// Tally summarizes a ledger for rule evaluation
type Tally struct {
	Actionable       int
	Approved         int
	Rejected         int
	SpecificApproved bool
}

// Count builds a Tally from ledger rows; specificApproverID may be nil
func Count(rows []*entity.Approval, specificApproverID *int64) Tally {
	var t Tally
	for _, row := range rows {
		if row.IsActionable() {
			t.Actionable++
		}
		switch row.Status {
		case entity.ApprovalStatusApproved:
			t.Approved++
			if specificApproverID != nil && row.ApproverID == *specificApproverID {
				t.SpecificApproved = true
			}
		case entity.ApprovalStatusRejected:
			t.Rejected++
		}
	}
	return t
}

// PercentReached reports approved/actionable*100 >= threshold using integer arithmetic.
// An empty ledger never reaches any threshold.
func (t Tally) PercentReached(threshold int) bool {
	if t.Actionable == 0 {
		return false
	}
	return t.Approved*100 >= threshold*t.Actionable
}

// Evaluate applies rule to rows. A nil rule is treated as unanimous percentage approval.
// Approval is checked before rejection.
func Evaluate(rule *entity.ApprovalRule, rows []*entity.Approval) Verdict {
	if rule == nil {
		rule = entity.DefaultApprovalRule(0)
	}

	t := Count(rows, rule.SpecificApproverID)
	percentOK := t.PercentReached(rule.PercentageThreshold)
	specificOK := rule.SpecificApproverID != nil && t.SpecificApproved

	var approved bool
	switch rule.Kind {
	case entity.RuleKindSpecific:
		approved = specificOK
	case entity.RuleKindHybrid:
		approved = percentOK || specificOK
	default:
		approved = percentOK
	}

	switch {
	case approved:
		return VerdictApproved
	case t.Rejected > 0:
		return VerdictRejected
	default:
		return VerdictPending
	}
}
