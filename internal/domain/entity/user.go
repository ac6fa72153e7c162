package entity

import (
	"fmt"
	"time"
)

// Role is the closed set of user roles
type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleEmployee   Role = "employee"
)

// Capability names an action that is gated by role
type Capability string

const (
	CapManageUsers      Capability = "manage_users"
	CapConfigureRules   Capability = "configure_rules"
	CapViewCompanyItems Capability = "view_company_expenses"
	CapViewAuditLog     Capability = "view_audit_log"
	CapSubmitExpense    Capability = "submit_expense"
	CapDecideApproval   Capability = "decide_approval"
)

var roleCapabilities = map[Role]map[Capability]bool{
	RoleSuperAdmin: {
		CapManageUsers:      true,
		CapConfigureRules:   true,
		CapViewCompanyItems: true,
		CapViewAuditLog:     true,
		CapSubmitExpense:    true,
		CapDecideApproval:   true,
	},
	RoleAdmin: {
		CapManageUsers:      true,
		CapConfigureRules:   true,
		CapViewCompanyItems: true,
		CapViewAuditLog:     true,
		CapSubmitExpense:    true,
		CapDecideApproval:   true,
	},
	RoleManager: {
		CapViewCompanyItems: true,
		CapSubmitExpense:    true,
		CapDecideApproval:   true,
	},
	RoleEmployee: {
		CapSubmitExpense:  true,
		CapDecideApproval: true,
	},
}

// ParseRole converts a raw string into a Role, rejecting unknown values
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// IsValid reports whether the role is one of the defined roles
func (r Role) IsValid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Can reports whether the role grants the capability
func (r Role) Can(c Capability) bool {
	return roleCapabilities[r][c]
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// User is a member of a company. Any user may be named as an approver;
// IsManagerApprover marks managers who approve their reports' expenses first.
type User struct {
	ID                int64     `json:"id"`
	CompanyID         int64     `json:"company_id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Role              Role      `json:"role"`
	ManagerID         *int64    `json:"manager_id,omitempty"`
	IsManagerApprover bool      `json:"is_manager_approver"`
	LarkOpenID        string    `json:"lark_open_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
