package workflow

import (
	"context"
	"fmt"
	"sync"
)

// Lifecycles are built on first use; Configure validates states against
// tables that must already be initialized.

// expenseLifecycle: pending -> approved | rejected
var expenseLifecycle = sync.OnceValue(func() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected)
	return b
})

// approvalLifecycle: waiting -> pending -> approved | rejected, and waiting|pending -> skipped
var approvalLifecycle = sync.OnceValue(func() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(StateWaiting).
		Permit(TriggerActivate, StatePending).
		Permit(TriggerSkip, StateSkipped)
	b.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerSkip, StateSkipped)
	return b
})

// ExpenseMachine returns an expense lifecycle machine positioned at status
func ExpenseMachine(status string) (StateMachine, error) {
	return buildAt(expenseLifecycle(), status)
}

// ApprovalMachine returns an approval-row lifecycle machine positioned at status
func ApprovalMachine(status string) (StateMachine, error) {
	return buildAt(approvalLifecycle(), status)
}

// TransitionExpense returns the expense status reached by firing trigger from current
func TransitionExpense(ctx context.Context, current string, trigger Trigger) (string, error) {
	return fire(ctx, ExpenseMachine, current, trigger)
}

// TransitionApproval returns the approval-row status reached by firing trigger from current
func TransitionApproval(ctx context.Context, current string, trigger Trigger) (string, error) {
	return fire(ctx, ApprovalMachine, current, trigger)
}

func buildAt(b StateMachineBuilder, status string) (StateMachine, error) {
	state := State(status)
	if !state.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, status)
	}
	return b.Build(state), nil
}

func fire(ctx context.Context, build func(string) (StateMachine, error), current string, trigger Trigger) (string, error) {
	m, err := build(current)
	if err != nil {
		return "", err
	}
	if err := m.Fire(ctx, trigger); err != nil {
		return "", err
	}
	return m.State().String(), nil
}
