package service

import "errors"

var (
	// ErrNotFoundOrUnauthorized is returned when an approval row is missing, belongs to
	// another approver, or belongs to another company
	ErrNotFoundOrUnauthorized = errors.New("approval not found or not authorized")

	// ErrInvalidAction is returned when a decision is neither approve nor reject
	ErrInvalidAction = errors.New("action must be 'approve' or 'reject'")

	// ErrStepNotActive is returned when deciding a row that is not the active step
	// or whose expense is already finalized
	ErrStepNotActive = errors.New("approval step is not active")

	ErrMissingAmount = errors.New("amount required")
	ErrInvalidAmount = errors.New("amount must be positive with at most 2 decimal places")
	ErrMissingFields = errors.New("required fields missing")

	// ErrForbidden is returned when the caller's role lacks the capability
	ErrForbidden = errors.New("forbidden")

	ErrInvalidRule     = errors.New("invalid approval rule")
	ErrInvalidApprover = errors.New("approver does not belong to the company")
	ErrNotFound        = errors.New("not found")
	ErrDuplicateEmail  = errors.New("email already registered")
)
