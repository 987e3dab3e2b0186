// Package orchestrator composes domain detection, decomposition, planning,
// execution, context synthesis, and cross-domain handling into the single
// entry point a transport (HTTP handler, CLI, etc.) calls per query.
package orchestrator

import (
	"context"
	"time"

	"github.com/qorc/queryorchestrator/core"
	"github.com/qorc/queryorchestrator/crossdomain"
	"github.com/qorc/queryorchestrator/decompose"
	"github.com/qorc/queryorchestrator/domain"
	ctxsynth "github.com/qorc/queryorchestrator/context"
	"github.com/qorc/queryorchestrator/exec"
	"github.com/qorc/queryorchestrator/plan"
	"github.com/qorc/queryorchestrator/ratelimit"
	"github.com/qorc/queryorchestrator/routing"
	"github.com/qorc/queryorchestrator/telemetry"
)

// CorrectionRecorder is the analytics capability needed to persist an
// auto-correction the planner applied while building a plan, along with the
// routing decision it corresponds to. Kept as its own small interface (like
// exec.AnalyticsRecorder and crossdomain.AggregateRecorder) so this package
// never imports the analytics package directly.
type CorrectionRecorder interface {
	RecordPlannerCorrection(ctx context.Context, query string, original, corrected domain.Domain, confidence float64, reason, userID, sessionID string) error
}

// Result is Handle's output: what happened, not how.
type Result struct {
	Success       bool
	FinalResult   string
	StepsExecuted int
	TotalSteps    int
	ExecutionTime time.Duration
	Errors        []string
	ContextUsed   map[string]string
	CrossDomain   bool
}

// Orchestrator is the facade wiring every orchestration collaborator
// together. Every field can be constructed independently (see each
// package's own NewXxx); New wires the common case where the same catalog,
// detector, and registry feed every collaborator.
type Orchestrator struct {
	Catalog     *domain.Catalog
	Detector    *domain.Detector
	Decomposer  *decompose.Decomposer
	Planner     *plan.Planner
	Executor    *exec.Executor
	CrossDomain *crossdomain.Handler
	RateLimiter *ratelimit.Limiter
	Analytics   CorrectionRecorder
	Logger      core.Logger
	Telemetry   telemetry.Telemetry

	// Events, if set, receives a lifecycle notification at each stage of
	// Handle. See Event for the full set of phases.
	Events EventSink
}

// New builds an Orchestrator from a tool registry and the static
// intent->tool map the selector's cascade falls back to. logger and
// analytics/rateLimiter may be nil to disable those side effects.
func New(registry exec.Registry, intentMap routing.IntentToolMap, analytics interface {
	exec.AnalyticsRecorder
	crossdomain.AggregateRecorder
	CorrectionRecorder
}, limiter *ratelimit.Limiter, llm interface {
	decompose.LLMClient
	ctxsynth.LLMClient
}, logger core.Logger, tel telemetry.Telemetry) *Orchestrator {
	if logger == nil {
		logger = core.NopLogger{}
	}

	catalog := domain.NewCatalog(logger)
	detector := domain.NewDetector(nil)
	selector := routing.NewSelector(intentMap)
	validator := routing.NewValidator(catalog, detector, false)

	decomposer := decompose.NewDecomposer(detector, llm, logger)
	planner := plan.NewPlanner(selector, validator, catalog, logger)

	synthesizer := ctxsynth.NewSynthesizer(llm, logger)
	executor := exec.NewExecutor(registry, validator, catalog, detector, logger)
	executor.Enricher = synthesizer
	if analytics != nil {
		executor.Analytics = analytics
	}

	crossHandler := crossdomain.NewHandler(catalog, detector, executor, logger)
	if analytics != nil {
		crossHandler.Analytics = analytics
	}

	o := &Orchestrator{
		Catalog:     catalog,
		Detector:    detector,
		Decomposer:  decomposer,
		Planner:     planner,
		Executor:    executor,
		CrossDomain: crossHandler,
		RateLimiter: limiter,
		Logger:      logger,
		Telemetry:   tel,
	}
	if analytics != nil {
		o.Analytics = analytics
	}
	executor.OnStepEvent = o.onStepEvent
	return o
}

// Handle routes query through admission, cross-domain detection, and either
// the cross-domain handler or the decompose/plan/execute pipeline,
// returning a uniform Result either way.
func (o *Orchestrator) Handle(ctx context.Context, clientID, query string, availableTools []string) (*Result, error) {
	start := time.Now()

	if o.Telemetry != nil {
		var span telemetry.Span
		ctx, span = o.Telemetry.StartSpan(ctx, "orchestrator.handle")
		span.SetAttribute("client_id", clientID)
		defer func() {
			o.Telemetry.RecordMetric("query_handle_duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{"client_id": clientID})
			span.End()
		}()
	}

	if o.RateLimiter != nil {
		decision, err := o.RateLimiter.IsAllowed(ctx, clientID)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			return nil, core.NewFrameworkError("Orchestrator.Handle", "RateLimited", clientID, core.ErrRateLimited)
		}
	}

	o.emit(Event{Type: EventReasoningStart, Message: query})

	if isCross, _, _ := o.CrossDomain.Detect(query); isCross {
		return o.handleCrossDomain(ctx, query, availableTools, start)
	}
	return o.handleSingleOrSequential(ctx, clientID, query, availableTools, start)
}

func (o *Orchestrator) handleCrossDomain(ctx context.Context, query string, availableTools []string, start time.Time) (*Result, error) {
	res, err := o.CrossDomain.Handle(ctx, query, availableTools)
	if err != nil {
		o.emit(Event{Type: EventError, Message: err.Error()})
		return nil, err
	}

	result := &Result{
		Success:       res.SuccessfulCount > 0,
		FinalResult:   res.FinalResult,
		StepsExecuted: res.SuccessfulCount,
		TotalSteps:    res.TotalCount,
		ExecutionTime: time.Since(start),
		CrossDomain:   true,
	}
	for _, s := range res.Steps {
		if s.Status == plan.StatusFailed {
			result.Errors = append(result.Errors, s.Error)
		}
	}
	o.emit(Event{Type: EventWorkflowComplete, Message: res.FinalResult})
	return result, nil
}

func (o *Orchestrator) handleSingleOrSequential(ctx context.Context, clientID, query string, availableTools []string, start time.Time) (*Result, error) {
	descriptors := o.Decomposer.Decompose(ctx, query, nil)

	candidates := make([]routing.Candidate, 0, len(availableTools))
	for _, name := range availableTools {
		candidates = append(candidates, routing.Candidate{Name: name})
	}
	domainTool := func(intent string) (string, bool) {
		return o.Catalog.CanonicalToolForDomain(domain.NormalizeDomainString(intent))
	}

	execPlan, err := o.Planner.Plan(descriptors, candidates, domainTool)
	if err != nil {
		o.emit(Event{Type: EventError, Message: err.Error()})
		return nil, err
	}
	o.recordCorrections(ctx, clientID, query, execPlan.Corrections)

	o.emit(Event{Type: EventActionExecuting, Message: query})
	accumulated, err := o.Executor.Execute(ctx, execPlan)
	if err != nil {
		o.emit(Event{Type: EventError, Message: err.Error()})
		return nil, err
	}

	result := &Result{TotalSteps: len(execPlan.Steps), ExecutionTime: time.Since(start), ContextUsed: accumulated}
	var finalResult string
	for _, s := range execPlan.Steps {
		if s.Status == plan.StatusCompleted {
			result.StepsExecuted++
			finalResult = s.Result
		} else if s.Status == plan.StatusFailed {
			result.Errors = append(result.Errors, s.Error)
		}
	}
	result.Success = result.StepsExecuted > 0
	result.FinalResult = finalResult

	o.emit(Event{Type: EventActionComplete, Message: finalResult})
	o.emit(Event{Type: EventWorkflowComplete, Message: finalResult})
	return result, nil
}

// recordCorrections persists every auto-correction the planner applied to
// this query's descriptors. Corrections are expressed by the planner in
// terms of tool names; GetDomainForTool resolves each to the domain
// analytics records against.
func (o *Orchestrator) recordCorrections(ctx context.Context, clientID, query string, corrections []plan.Correction) {
	if o.Analytics == nil {
		return
	}
	for _, c := range corrections {
		original, ok := o.Catalog.GetDomainForTool(c.OriginalTool)
		if !ok {
			original = domain.General
		}
		corrected, ok := o.Catalog.GetDomainForTool(c.CorrectedTool)
		if !ok {
			corrected = domain.General
		}
		if err := o.Analytics.RecordPlannerCorrection(ctx, query, original, corrected, c.ValidatorConfidence, c.Reason, clientID, ""); err != nil {
			o.Logger.Warn("failed to record planner correction", map[string]interface{}{"step_id": c.StepID, "error": err.Error()})
		}
	}
}

func (o *Orchestrator) onStepEvent(phase string, step *plan.ExecutionStep) {
	evtType := EventToolCallStart
	message := step.Query
	if phase == "tool_complete" {
		evtType = EventToolComplete
		message = step.Result
		if step.Status == plan.StatusFailed {
			message = step.Error
		}
	}
	o.emit(Event{
		Type:    evtType,
		StepID:  step.ID,
		Tool:    step.Tool,
		Domain:  step.Domain,
		Message: message,
	})
}
