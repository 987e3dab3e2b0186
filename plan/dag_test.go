package plan

import (
	"testing"

	"github.com/qorc/queryorchestrator/domain"
)

func newStep(id string, deps ...string) *ExecutionStep {
	return NewExecutionStep(id, "tasks", "list", "q", domain.Task, deps, ContextRequirements{})
}

func TestWorkflowDAG_LevelGrouping(t *testing.T) {
	d := NewWorkflowDAG()
	steps := []*ExecutionStep{
		newStep("step_1"),
		newStep("step_2", "step_1"),
		newStep("step_3", "step_1"),
		newStep("step_4", "step_2", "step_3"),
	}
	for _, s := range steps {
		if err := d.AddStep(s); err != nil {
			t.Fatalf("unexpected error adding step %s: %v", s.ID, err)
		}
	}

	levels, err := d.GetExecutionLevels()
	if err != nil {
		t.Fatalf("unexpected error computing levels: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %v", len(levels), levels)
	}
	if len(levels[0]) != 1 || levels[0][0] != "step_1" {
		t.Fatalf("expected level 0 = [step_1], got %v", levels[0])
	}
	if len(levels[1]) != 2 {
		t.Fatalf("expected level 1 to have 2 parallel steps, got %v", levels[1])
	}
	if len(levels[2]) != 1 || levels[2][0] != "step_4" {
		t.Fatalf("expected level 2 = [step_4], got %v", levels[2])
	}
}

func TestWorkflowDAG_CycleRejected(t *testing.T) {
	d := NewWorkflowDAG()
	if err := d.AddStep(newStep("step_1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// step_2 depends on step_1; re-adding step_1 with a dependency on step_2
	// would close a two-node cycle, which AddStep must refuse.
	if err := d.AddStep(newStep("step_2", "step_1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cyclic := newStep("step_1b", "step_2")
	cyclic.ID = "step_1" // re-adding step_1 with a dependency on step_2 closes the cycle
	if err := d.AddStep(cyclic); err == nil {
		t.Fatalf("expected cycle detection error")
	}
}

func TestWorkflowDAG_Statistics(t *testing.T) {
	d := NewWorkflowDAG()
	_ = d.AddStep(newStep("step_1"))
	_ = d.AddStep(newStep("step_2", "step_1"))

	stats, err := d.Statistics()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalSteps != 2 || stats.LevelCount != 2 || stats.HasCycle {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
}
