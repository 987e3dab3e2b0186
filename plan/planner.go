package plan

import (
	"github.com/qorc/queryorchestrator/core"
	"github.com/qorc/queryorchestrator/decompose"
	"github.com/qorc/queryorchestrator/domain"
	"github.com/qorc/queryorchestrator/routing"
)

// Correction is a foreign-keyed record of an auto-corrected step, emitted
// whenever the planner substitutes a canonical tool for one the selector
// or an upstream parser chose incorrectly.
type Correction struct {
	StepID             string
	OriginalTool       string
	CorrectedTool      string
	Reason             string
	ValidatorConfidence float64
}

// ExecutionPlan is the planner's output: an ordered, dependency-linked set
// of steps plus the bulk validation verdict and any corrections applied.
type ExecutionPlan struct {
	Steps       []*ExecutionStep
	DAG         *WorkflowDAG
	Verdict     routing.PlanVerdict
	Corrections []Correction
	Dropped     []string // step ids skipped for unrecoverable validation failure
}

// Planner builds an ExecutionPlan from step descriptors. Selector resolves
// a descriptor to a candidate tool; Validator checks the routing decision;
// Catalog supplies canonical tools for auto-correction and resolves a
// step's domain from its final tool.
type Planner struct {
	Selector  *routing.Selector
	Validator *routing.Validator
	Catalog   *domain.Catalog
	Logger    core.Logger

	// RejectOnPlanWarnings fails plan-building outright when ValidatePlan
	// reports any warning, rather than merely attaching it to the result.
	// Off by default: warnings are informational, not blocking.
	RejectOnPlanWarnings bool
}

// NewPlanner builds a Planner from its three collaborators.
func NewPlanner(selector *routing.Selector, validator *routing.Validator, catalog *domain.Catalog, logger core.Logger) *Planner {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Planner{Selector: selector, Validator: validator, Catalog: catalog, Logger: logger}
}

// Plan resolves every descriptor to a step, validating and auto-correcting
// along the way, then assembles the DAG and runs the bulk plan validation.
func (p *Planner) Plan(descriptors []decompose.StepDescriptor, available []routing.Candidate, domainTool routing.DomainToolFunc) (*ExecutionPlan, error) {
	result := &ExecutionPlan{DAG: NewWorkflowDAG()}

	for _, desc := range descriptors {
		step, correction, ok := p.resolveStep(desc, available, domainTool)
		if !ok {
			result.Dropped = append(result.Dropped, desc.ID)
			continue
		}
		if correction != nil {
			result.Corrections = append(result.Corrections, *correction)
		}
		if err := result.DAG.AddStep(step); err != nil {
			return nil, err
		}
		result.Steps = append(result.Steps, step)
	}

	if len(result.Steps) == 0 {
		return nil, core.NewFrameworkError("Planner.Plan", "empty_plan", "", core.ErrNoExecutableSteps)
	}

	stepRoutes := make([]routing.StepRoute, 0, len(result.Steps))
	for _, s := range result.Steps {
		stepRoutes = append(stepRoutes, routing.StepRoute{StepID: s.ID, Query: s.Query, TargetTool: s.Tool})
	}
	result.Verdict = p.Validator.ValidatePlan(stepRoutes)

	if p.RejectOnPlanWarnings && len(result.Verdict.Warnings) > 0 {
		return nil, core.NewFrameworkError("Planner.Plan", "plan_warnings", "", core.ErrValidationRejected)
	}

	return result, nil
}

// resolveStep selects a tool for desc, validates the decision, and either
// accepts it, auto-corrects it to the detected domain's canonical tool, or
// drops the step when neither the original nor a corrected tool stands up.
func (p *Planner) resolveStep(desc decompose.StepDescriptor, available []routing.Candidate, domainTool routing.DomainToolFunc) (*ExecutionStep, *Correction, bool) {
	tool := p.Selector.Select(desc.Query, desc.Intent, nil, nil, available, domainTool)
	verdict := p.Validator.Validate(desc.Query, tool, nil)

	finalTool := tool
	var correction *Correction

	if !verdict.Valid {
		canonical, hasCanonical := p.Catalog.CanonicalToolForDomain(verdict.DetectedDomain)
		if hasCanonical && toolAvailable(available, canonical) {
			correction = &Correction{
				StepID:              desc.ID,
				OriginalTool:        tool,
				CorrectedTool:       canonical,
				Reason:              verdict.Reason,
				ValidatorConfidence: verdict.Confidence,
			}
			finalTool = canonical
		} else {
			p.Logger.Error("dropping step: no valid or correctable tool", map[string]interface{}{
				"step_id": desc.ID, "tool": tool, "reason": verdict.Reason,
			})
			return nil, nil, false
		}
	}

	stepDomain, _ := p.Catalog.GetDomainForTool(finalTool)

	ctxReq := ContextRequirements{
		NeedsPreviousResults: desc.ContextRequirements["needs_previous_results"],
		NeedsSourceData:      desc.ContextRequirements["needs_source_data"],
		NeedsParticipantData: desc.ContextRequirements["needs_participant_data"],
	}

	step := NewExecutionStep(desc.ID, finalTool, desc.Action, desc.Query, stepDomain, desc.Dependencies, ctxReq)
	return step, correction, true
}

func toolAvailable(available []routing.Candidate, name string) bool {
	for _, c := range available {
		if c.Name == name {
			return true
		}
	}
	return false
}
