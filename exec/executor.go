package exec

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qorc/queryorchestrator/core"
	"github.com/qorc/queryorchestrator/domain"
	"github.com/qorc/queryorchestrator/plan"
	"github.com/qorc/queryorchestrator/routing"
)

// StepTimeout is the default per-step execution budget.
const StepTimeout = 30 * time.Second

// AnalyticsRecorder is the minimal capability the executor needs from the
// analytics store: record one step's outcome. Decoupled from the analytics
// package's concrete store type so exec never imports analytics.
type AnalyticsRecorder interface {
	RecordStepOutcome(ctx context.Context, stepID, tool string, d domain.Domain, success bool, errMsg string, elapsed time.Duration)
}

// Enricher supplies the query-enrichment step of context requirements
// against accumulated prior results. Decoupled from the context package's
// concrete synthesizer type the same way.
type Enricher interface {
	EnrichQuery(query string, req plan.ContextRequirements, accumulated map[string]string) string
	Synthesize(ctx context.Context, completed []*plan.ExecutionStep) map[string]string
}

// Executor walks an ExecutionPlan level by level, running every step in a
// level concurrently via an errgroup and every level sequentially.
type Executor struct {
	Registry  Registry
	Validator *routing.Validator
	Catalog   *domain.Catalog
	Detector  *domain.Detector
	Analytics AnalyticsRecorder
	Enricher  Enricher
	Logger    core.Logger

	StepTimeout    time.Duration
	MaxConcurrency int

	// OnStepEvent, if set, is called at each step lifecycle transition this
	// executor drives directly: "tool_call_start" once a step begins
	// running, "tool_complete" once it reaches a terminal status. Callers
	// that want a live event stream (e.g. for a UI) wire this rather than
	// polling step state after Execute returns. Never called concurrently
	// for the same step, but may be called from multiple goroutines across
	// steps in the same level; implementations must be safe for that.
	OnStepEvent func(phase string, step *plan.ExecutionStep)
}

// NewExecutor builds an Executor with sane defaults. Analytics and Enricher
// may be nil to disable those side effects entirely.
func NewExecutor(registry Registry, validator *routing.Validator, catalog *domain.Catalog, detector *domain.Detector, logger core.Logger) *Executor {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Executor{
		Registry:       registry,
		Validator:      validator,
		Catalog:        catalog,
		Detector:       detector,
		Logger:         logger,
		StepTimeout:    StepTimeout,
		MaxConcurrency: 8,
	}
}

// Execute runs every level of p.Steps in order, returning the final
// accumulated context built up across levels. Steps within a level run
// concurrently; a step's failure never aborts its level-mates, only steps
// that depend on it (which transition to blocked).
func (e *Executor) Execute(ctx context.Context, p *plan.ExecutionPlan) (map[string]string, error) {
	levels, err := p.DAG.GetExecutionLevels()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*plan.ExecutionStep, len(p.Steps))
	for _, s := range p.Steps {
		byID[s.ID] = s
	}

	accumulated := map[string]string{}

	for _, levelIDs := range levels {
		if err := ctx.Err(); err != nil {
			e.failRemaining(levelIDs, byID, "request cancelled")
			return accumulated, core.ErrCancelled
		}

		eg, egCtx := errgroup.WithContext(ctx)
		if e.MaxConcurrency > 0 {
			eg.SetLimit(e.MaxConcurrency)
		}

		for _, id := range levelIDs {
			step := byID[id]
			if e.anyDependencyFailed(step, byID) {
				_ = step.Block()
				continue
			}
			eg.Go(func() error {
				e.executeStep(egCtx, step, accumulated)
				return nil
			})
		}
		_ = eg.Wait() // executeStep never returns an error; it records failure on the step itself

		if e.Enricher != nil {
			levelCompleted := make([]*plan.ExecutionStep, 0, len(levelIDs))
			for _, id := range levelIDs {
				levelCompleted = append(levelCompleted, byID[id])
			}
			for k, v := range e.Enricher.Synthesize(ctx, levelCompleted) {
				accumulated[k] = v
			}
		}
	}

	return accumulated, nil
}

func (e *Executor) anyDependencyFailed(step *plan.ExecutionStep, byID map[string]*plan.ExecutionStep) bool {
	for _, dep := range step.Dependencies {
		if d, ok := byID[dep]; ok && (d.Status == plan.StatusFailed || d.Status == plan.StatusBlocked) {
			return true
		}
	}
	return false
}

func (e *Executor) failRemaining(ids []string, byID map[string]*plan.ExecutionStep, reason string) {
	for _, id := range ids {
		step := byID[id]
		if step.Status == plan.StatusPending {
			_ = step.Start()
			step.RetryCount = plan.MaxRetries // a cancelled step is never retried
			_ = step.Fail(reason)
		}
	}
}

// executeStep runs one step to completion (including rejection-retry and
// the plan's retry budget), recording the outcome on the step itself and,
// if configured, in analytics. It never returns an error: all outcomes are
// expressed through the step's own state machine, and it loops internally
// until the step reaches a terminal status so a caller never observes a
// step parked in "retrying".
func (e *Executor) executeStep(ctx context.Context, step *plan.ExecutionStep, accumulated map[string]string) {
	if err := step.Start(); err != nil {
		e.Logger.Error("illegal step start", map[string]interface{}{"step_id": step.ID, "error": err.Error()})
		return
	}
	e.emit("tool_call_start", step)
	defer e.emit("tool_complete", step)

	for {
		if ctx.Err() != nil {
			step.RetryCount = plan.MaxRetries // a cancelled step is never retried
			_ = step.Fail("request cancelled")
			return
		}

		verdict := e.Validator.Validate(step.Query, step.Tool, nil)
		if !verdict.Valid {
			e.Logger.Warn("re-validation at execution time flagged a mismatch", map[string]interface{}{
				"step_id": step.ID, "tool": step.Tool, "reason": verdict.Reason,
			})
		}

		tool, ok := e.Registry.Lookup(step.Tool)
		if !ok {
			e.recordFailure(ctx, step, 0, fmt.Sprintf("tool unavailable: %s", step.Tool))
			if step.Status != plan.StatusRetrying {
				return
			}
			if err := step.Start(); err != nil {
				return
			}
			continue
		}

		query := step.Query
		if e.Enricher != nil {
			query = e.Enricher.EnrichQuery(step.Query, step.ContextRequirements, accumulated)
		}

		if parser, ok := tool.(ParsingTool); ok {
			if res := parser.Parse(query); !res.Reject && res.Action != "" {
				step.Action = res.Action
			}
		}

		result, err := e.invoke(ctx, tool, step, query)

		if err == nil {
			if serr := step.Succeed(result.text, result.elapsed); serr != nil {
				e.Logger.Error("illegal step success transition", map[string]interface{}{"step_id": step.ID, "error": serr.Error()})
			}
			e.recordSuccess(ctx, step, result.elapsed)
			return
		}

		if rejecting, ok := tool.(RejectingTool); ok && rejecting.Rejected(err) {
			if e.rerouteOnRejection(step) {
				continue
			}
		}

		e.recordFailure(ctx, step, result.elapsed, err.Error())
		if step.Status != plan.StatusRetrying {
			return
		}
		if err := step.Start(); err != nil {
			return
		}
	}
}

type invocation struct {
	text    string
	elapsed time.Duration
}

func (e *Executor) invoke(ctx context.Context, tool Tool, step *plan.ExecutionStep, query string) (invocation, error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	start := time.Now()
	result, err := tool.Run(stepCtx, step.Action, query, nil)
	return invocation{text: result, elapsed: time.Since(start)}, err
}

// rerouteOnRejection handles a tool's explicit domain rejection: it is
// treated as evidence the routing was wrong, so the
// step's tool and domain are swapped to the detected domain's canonical
// tool and the caller loops back to retry immediately. Returns false (no
// reroute) when no better tool exists or the retry budget is exhausted;
// the caller then falls through to ordinary failure handling.
func (e *Executor) rerouteOnRejection(step *plan.ExecutionStep) bool {
	detected, _, _ := e.Detector.Detect(step.Query)
	if detected == domain.General || detected == domain.Mixed {
		return false
	}
	canonical, ok := e.Catalog.CanonicalToolForDomain(detected)
	if !ok || canonical == step.Tool {
		return false
	}
	if step.RetryCount >= plan.MaxRetries || !plan.IsRetryableAction(step.Action) {
		return false
	}
	if _, ok := e.Registry.Lookup(canonical); !ok {
		return false
	}

	if err := step.Fail("domain rejection, retrying against " + canonical); err != nil {
		return false
	}
	if step.Status != plan.StatusRetrying {
		return false
	}
	if err := step.Start(); err != nil {
		return false
	}

	step.Tool = canonical
	step.Domain = detected
	return true
}

func (e *Executor) recordSuccess(ctx context.Context, step *plan.ExecutionStep, elapsed time.Duration) {
	if e.Analytics != nil {
		e.Analytics.RecordStepOutcome(ctx, step.ID, step.Tool, step.Domain, true, "", elapsed)
	}
}

func (e *Executor) recordFailure(ctx context.Context, step *plan.ExecutionStep, elapsed time.Duration, errMsg string) {
	if err := step.Fail(errMsg); err != nil {
		e.Logger.Error("illegal step failure transition", map[string]interface{}{"step_id": step.ID, "error": err.Error()})
	}
	if e.Analytics != nil {
		e.Analytics.RecordStepOutcome(ctx, step.ID, step.Tool, step.Domain, false, errMsg, elapsed)
	}
}

func (e *Executor) emit(phase string, step *plan.ExecutionStep) {
	if e.OnStepEvent != nil {
		e.OnStepEvent(phase, step)
	}
}

func (e *Executor) timeout() time.Duration {
	if e.StepTimeout > 0 {
		return e.StepTimeout
	}
	return StepTimeout
}
