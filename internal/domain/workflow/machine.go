package workflow

import "context"

// StateMachine tracks a current state and validates transitions out of it
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger has at least one configured transition from the current state.
	// Guards are not evaluated.
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}
