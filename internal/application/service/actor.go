package service

import (
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Actor identifies the authenticated caller of a service operation
type Actor struct {
	UserID    int64
	CompanyID int64
	Role      entity.Role
}

// Require returns ErrForbidden unless the actor's role grants c
func (a Actor) Require(c entity.Capability) error {
	if !a.Role.Can(c) {
		return fmt.Errorf("%w: role %q lacks %s", ErrForbidden, a.Role, c)
	}
	return nil
}

// requireCompany returns ErrForbidden unless the actor belongs to companyID
func (a Actor) requireCompany(companyID int64) error {
	if a.CompanyID != companyID {
		return fmt.Errorf("%w: company %d", ErrForbidden, companyID)
	}
	return nil
}
