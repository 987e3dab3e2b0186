package plan

import (
	"testing"

	"github.com/qorc/queryorchestrator/domain"
)

func TestExecutionStep_DependencyTypeInvariant(t *testing.T) {
	withDeps := NewExecutionStep("step_2", "tasks", "list", "q", domain.Task, []string{"step_1"}, ContextRequirements{})
	if withDeps.DependencyType != DependencyRequiresData {
		t.Fatalf("expected requires_data dependency type, got %q", withDeps.DependencyType)
	}

	noDeps := NewExecutionStep("step_1", "tasks", "list", "q", domain.Task, nil, ContextRequirements{})
	if noDeps.DependencyType != DependencyNone {
		t.Fatalf("expected no dependency type, got %q", noDeps.DependencyType)
	}
}

func TestExecutionStep_HappyPathTransitions(t *testing.T) {
	step := NewExecutionStep("step_1", "tasks", "list", "q", domain.Task, nil, ContextRequirements{})
	if err := step.Start(); err != nil {
		t.Fatalf("unexpected error starting step: %v", err)
	}
	if step.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %q", step.Status)
	}
	if err := step.Succeed("done", 0); err != nil {
		t.Fatalf("unexpected error succeeding step: %v", err)
	}
	if !step.Terminal() || step.Status != StatusCompleted {
		t.Fatalf("expected terminal completed status, got %q", step.Status)
	}
}

func TestExecutionStep_RetryThenFail(t *testing.T) {
	step := NewExecutionStep("step_1", "tasks", "list", "q", domain.Task, nil, ContextRequirements{})
	_ = step.Start()

	for i := 0; i < MaxRetries; i++ {
		if err := step.Fail("boom"); err != nil {
			t.Fatalf("unexpected error on retry %d: %v", i, err)
		}
		if step.Status != StatusRetrying {
			t.Fatalf("expected retrying after failure %d, got %q", i, step.Status)
		}
		if err := step.Start(); err != nil {
			t.Fatalf("unexpected error resuming after retry %d: %v", i, err)
		}
	}

	if err := step.Fail("boom again"); err != nil {
		t.Fatalf("unexpected error on final failure: %v", err)
	}
	if !step.Terminal() || step.Status != StatusFailed {
		t.Fatalf("expected terminal failed status, got %q", step.Status)
	}
}

func TestExecutionStep_MutatingActionFailsWithoutRetry(t *testing.T) {
	step := NewExecutionStep("step_1", "email", "send", "q", domain.Email, nil, ContextRequirements{})
	_ = step.Start()

	if err := step.Fail("boom"); err != nil {
		t.Fatalf("unexpected error failing step: %v", err)
	}
	if step.Status != StatusFailed {
		t.Fatalf("expected a mutating action to fail immediately rather than retry, got %q", step.Status)
	}
	if step.RetryCount != 0 {
		t.Fatalf("expected retry count to stay at 0 for a non-retryable action, got %d", step.RetryCount)
	}
}

func TestIsRetryableAction(t *testing.T) {
	for _, safe := range []string{"list", "search", "find_free_time", "check_conflicts", "analyze"} {
		if !IsRetryableAction(safe) {
			t.Fatalf("expected %q to be retryable", safe)
		}
	}
	for _, unsafe := range []string{"create", "update", "delete", "send", ""} {
		if IsRetryableAction(unsafe) {
			t.Fatalf("expected %q to not be retryable", unsafe)
		}
	}
}

func TestExecutionStep_IllegalTransitionRejected(t *testing.T) {
	step := NewExecutionStep("step_1", "tasks", "list", "q", domain.Task, nil, ContextRequirements{})
	if err := step.Succeed("done", 0); err == nil {
		t.Fatalf("expected error completing a step that never started")
	}
}

func TestExecutionStep_Block(t *testing.T) {
	step := NewExecutionStep("step_2", "tasks", "list", "q", domain.Task, []string{"step_1"}, ContextRequirements{})
	if err := step.Block(); err != nil {
		t.Fatalf("unexpected error blocking step: %v", err)
	}
	if !step.Terminal() || step.Status != StatusBlocked {
		t.Fatalf("expected terminal blocked status, got %q", step.Status)
	}
}
