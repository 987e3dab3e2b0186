package plan

import (
	"testing"

	"github.com/qorc/queryorchestrator/decompose"
	"github.com/qorc/queryorchestrator/domain"
	"github.com/qorc/queryorchestrator/routing"
)

func newTestPlanner() (*Planner, *domain.Catalog) {
	catalog := domain.NewCatalog(nil)
	catalog.Register("tasks", domain.Task)
	catalog.Register("calendar", domain.Calendar)
	catalog.Register("email", domain.Email)

	detector := domain.NewDetector(nil)
	validator := routing.NewValidator(catalog, detector, true)
	selector := routing.NewSelector(nil)

	return NewPlanner(selector, validator, catalog, nil), catalog
}

func TestPlanner_BuildsPlanWithLevels(t *testing.T) {
	planner, _ := newTestPlanner()
	available := []routing.Candidate{{Name: "tasks"}, {Name: "calendar"}, {Name: "email"}}

	descriptors := []decompose.StepDescriptor{
		{ID: "step_1", Query: "what tasks do I have today", Intent: "tasks", Action: "list"},
		{ID: "step_2", Query: "create a task for the follow up", Intent: "tasks", Action: "create", Dependencies: []string{"step_1"}},
	}

	result, err := planner.Plan(descriptors, available, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(result.Steps))
	}
	levels, err := result.DAG.GetExecutionLevels()
	if err != nil {
		t.Fatalf("unexpected error computing levels: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels given the dependency, got %d", len(levels))
	}
}

func TestPlanner_AutoCorrectsMisroutedStep(t *testing.T) {
	planner, _ := newTestPlanner()
	available := []routing.Candidate{{Name: "tasks"}, {Name: "calendar"}}

	descriptors := []decompose.StepDescriptor{
		{ID: "step_1", Query: "create a task to call Alice", Intent: "calendar", Action: "create"},
	}

	result, err := planner.Plan(descriptors, available, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Corrections) != 1 {
		t.Fatalf("expected one correction, got %d", len(result.Corrections))
	}
	if result.Corrections[0].CorrectedTool != "tasks" {
		t.Fatalf("expected correction to tasks tool, got %q", result.Corrections[0].CorrectedTool)
	}
	if result.Steps[0].Tool != "tasks" {
		t.Fatalf("expected final step tool to be tasks, got %q", result.Steps[0].Tool)
	}
}

func TestPlanner_EmptyPlanErrors(t *testing.T) {
	planner, _ := newTestPlanner()
	_, err := planner.Plan(nil, []routing.Candidate{{Name: "tasks"}}, nil)
	if err == nil {
		t.Fatalf("expected error for empty descriptor list")
	}
}
