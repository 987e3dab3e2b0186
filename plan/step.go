// Package plan builds an ordered, level-grouped ExecutionPlan from step
// descriptors: it resolves each descriptor to a tool, validates the
// routing decision, auto-corrects or drops invalid steps, and exposes the
// resulting dependency graph for the executor to walk level by level.
package plan

import (
	"fmt"
	"time"

	"github.com/qorc/queryorchestrator/core"
	"github.com/qorc/queryorchestrator/domain"
)

// Status is a step's position in its state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRetrying   Status = "retrying"
	StatusBlocked    Status = "blocked"
)

// DependencyType describes why a step depends on others. requires_data is
// currently the only kind: a step cannot run until its dependencies have
// produced results it consumes.
type DependencyType string

const (
	DependencyNone         DependencyType = ""
	DependencyRequiresData DependencyType = "requires_data"
)

// ContextRequirements are the context-enrichment flags a step's descriptor
// carried forward from decomposition.
type ContextRequirements struct {
	NeedsPreviousResults bool
	NeedsSourceData      bool
	NeedsParticipantData bool
}

// MaxRetries is the default retry budget for a failed step before it is
// marked permanently failed.
const MaxRetries = 2

// RetryableActions are the only actions a failed step may retry against.
// Conservative default: read-only/analysis actions are safe to retry
// because repeating them has no side effect beyond re-running a query;
// mutating actions (create/update/delete/send) are excluded because a
// retry after an ambiguous failure (e.g. a timeout where the write may
// have already landed) risks a duplicate side effect.
var RetryableActions = map[string]struct{}{
	"list":            {},
	"search":          {},
	"find_free_time":  {},
	"check_conflicts": {},
	"analyze":         {},
}

// IsRetryableAction reports whether action is safe to retry on failure.
func IsRetryableAction(action string) bool {
	_, ok := RetryableActions[action]
	return ok
}

// ExecutionStep is one node of an ExecutionPlan's dependency graph.
type ExecutionStep struct {
	ID     string
	Tool   string
	Action string
	Query  string
	Domain domain.Domain

	Dependencies   []string
	DependencyType DependencyType

	ContextRequirements ContextRequirements

	Status        Status
	Result        string
	Error         string
	RetryCount    int
	ExecutionTime time.Duration
	CreatedAt     time.Time
}

// NewExecutionStep builds a pending step with dependency_type derived from
// whether dependencies is non-empty, per the plan invariant.
func NewExecutionStep(id, tool, action, query string, d domain.Domain, dependencies []string, ctxReq ContextRequirements) *ExecutionStep {
	depType := DependencyNone
	if len(dependencies) > 0 {
		depType = DependencyRequiresData
	}
	return &ExecutionStep{
		ID:                  id,
		Tool:                tool,
		Action:              action,
		Query:               query,
		Domain:              d,
		Dependencies:        dependencies,
		DependencyType:      depType,
		ContextRequirements: ctxReq,
		Status:              StatusPending,
		CreatedAt:           time.Now(),
	}
}

// transitionEvent names an edge in the state machine diagram.
type transitionEvent string

const (
	eventExecute    transitionEvent = "execute"
	eventOK         transitionEvent = "ok"
	eventErrRetry   transitionEvent = "err_retry"
	eventErrFinal   transitionEvent = "err_final"
	eventDepFailed  transitionEvent = "dep_failed"
)

// Transition applies event to the step's status, returning an error if the
// transition is illegal from the step's current status. Terminal states
// (completed, failed, blocked) accept no further transitions.
func (s *ExecutionStep) Transition(event transitionEvent) error {
	switch s.Status {
	case StatusPending:
		switch event {
		case eventExecute:
			s.Status = StatusInProgress
			return nil
		case eventDepFailed:
			s.Status = StatusBlocked
			return nil
		}
	case StatusInProgress:
		switch event {
		case eventOK:
			s.Status = StatusCompleted
			return nil
		case eventErrRetry:
			s.Status = StatusRetrying
			s.Result = ""
			s.Error = ""
			return nil
		case eventErrFinal:
			s.Status = StatusFailed
			return nil
		}
	case StatusRetrying:
		switch event {
		case eventExecute:
			s.Status = StatusInProgress
			return nil
		}
	}
	return core.NewFrameworkError("ExecutionStep.Transition", "illegal_transition", s.ID,
		fmt.Errorf("cannot apply event %q from status %q", event, s.Status))
}

// Start moves the step from pending/retrying to in_progress.
func (s *ExecutionStep) Start() error { return s.Transition(eventExecute) }

// Succeed records a successful run and moves the step to completed.
func (s *ExecutionStep) Succeed(result string, elapsed time.Duration) error {
	if err := s.Transition(eventOK); err != nil {
		return err
	}
	s.Result = result
	s.ExecutionTime = elapsed
	return nil
}

// Fail records a failed run. If retries remain and the step's action is on
// the retryable whitelist, the step moves to retrying and RetryCount is
// incremented; otherwise (budget exhausted, or a mutating action that must
// not risk a duplicate side effect) it moves to failed.
func (s *ExecutionStep) Fail(errMsg string) error {
	if s.RetryCount < MaxRetries && IsRetryableAction(s.Action) {
		s.RetryCount++
		s.Error = errMsg
		return s.Transition(eventErrRetry)
	}
	s.Error = errMsg
	return s.Transition(eventErrFinal)
}

// Block marks the step as blocked because a dependency failed.
func (s *ExecutionStep) Block() error { return s.Transition(eventDepFailed) }

// Terminal reports whether the step's status accepts no further events.
func (s *ExecutionStep) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusBlocked:
		return true
	default:
		return false
	}
}
