package workflow_test

import (
	"context"
	"sync"
	"testing"

	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Importing the package must not configure lifecycles before the state tables exist.
func TestLifecycles_UsableFromImportingPackage(t *testing.T) {
	got, err := workflow.TransitionExpense(context.Background(), "pending", workflow.TriggerApprove)
	if err != nil {
		t.Fatalf("TransitionExpense() unexpected error: %v", err)
	}
	if got != "approved" {
		t.Errorf("TransitionExpense() = %v, want approved", got)
	}

	m, err := workflow.ApprovalMachine("waiting")
	if err != nil {
		t.Fatalf("ApprovalMachine() unexpected error: %v", err)
	}
	if !m.CanFire(workflow.TriggerActivate) {
		t.Error("waiting row should accept activate")
	}
	if m.CanFire(workflow.TriggerApprove) {
		t.Error("waiting row should not accept approve")
	}
}

func TestLifecycles_ConcurrentFirstUse(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 32)

	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := workflow.TransitionApproval(context.Background(), "pending", workflow.TriggerReject); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := workflow.TransitionExpense(context.Background(), "pending", workflow.TriggerReject); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("transition failed: %v", err)
	}
}
