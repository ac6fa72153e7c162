package entity

import (
	"fmt"
	"time"
)

// RuleKind selects the finalization policy of a company
type RuleKind string

const (
	RuleKindPercentage RuleKind = "percentage"
	RuleKindSpecific   RuleKind = "specific"
	RuleKindHybrid     RuleKind = "hybrid"
)

// DefaultPercentageThreshold means every actionable approver must approve
const DefaultPercentageThreshold = 100

// IsValid reports whether the kind is one of the defined rule kinds
func (k RuleKind) IsValid() bool {
	switch k {
	case RuleKindPercentage, RuleKindSpecific, RuleKindHybrid:
		return true
	default:
		return false
	}
}

// ApprovalRule is the single active finalization rule of a company
type ApprovalRule struct {
	ID                  int64     `json:"id"`
	CompanyID           int64     `json:"company_id"`
	Kind                RuleKind  `json:"rule_type"`
	PercentageThreshold int       `json:"percentage_threshold"`
	SpecificApproverID  *int64    `json:"specific_approver_id,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DefaultApprovalRule returns the rule applied when a company has none: unanimous approval
func DefaultApprovalRule(companyID int64) *ApprovalRule {
	return &ApprovalRule{
		CompanyID:           companyID,
		Kind:                RuleKindPercentage,
		PercentageThreshold: DefaultPercentageThreshold,
	}
}

// Validate checks the rule's internal consistency
func (r *ApprovalRule) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("unknown rule kind: %q", r.Kind)
	}
	if r.PercentageThreshold < 0 || r.PercentageThreshold > 100 {
		return fmt.Errorf("percentage threshold must be within 0-100, got %d", r.PercentageThreshold)
	}
	if r.Kind == RuleKindSpecific && r.SpecificApproverID == nil {
		return fmt.Errorf("rule kind %q requires a specific approver", r.Kind)
	}
	return nil
}
