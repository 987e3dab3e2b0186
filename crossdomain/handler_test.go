package crossdomain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qorc/queryorchestrator/domain"
	"github.com/qorc/queryorchestrator/exec"
	"github.com/qorc/queryorchestrator/plan"
	"github.com/qorc/queryorchestrator/routing"
)

type stubTool struct{ result string }

func (t stubTool) Run(ctx context.Context, action, query string, params map[string]interface{}) (string, error) {
	return t.result, nil
}

func newTestHandler(registry exec.MapRegistry) *Handler {
	catalog := domain.NewCatalog(nil)
	detector := domain.NewDetector(nil)
	validator := routing.NewValidator(catalog, detector, false)
	executor := exec.NewExecutor(registry, validator, catalog, detector, nil)
	return NewHandler(catalog, detector, executor, nil)
}

func stepForDomain(steps []*plan.ExecutionStep, d domain.Domain) *plan.ExecutionStep {
	for _, s := range steps {
		if s.Domain == d {
			return s
		}
	}
	return nil
}

func TestHandler_Detect_EmailOnlyIsNotCrossDomain(t *testing.T) {
	h := newTestHandler(nil)
	isCross, _, _ := h.Detect("summarize my last email from Bob")
	assert.False(t, isCross)
}

func TestHandler_Detect_CalendarOnlyIsNotCrossDomain(t *testing.T) {
	h := newTestHandler(nil)
	isCross, _, _ := h.Detect("show my calendar events for today")
	assert.False(t, isCross)
}

func TestHandler_Detect_ExplicitPatternMatch(t *testing.T) {
	h := newTestHandler(nil)
	isCross, domains, confidence := h.Detect("show my tasks and meetings for today")
	require.True(t, isCross)
	assert.ElementsMatch(t, []domain.Domain{domain.Task, domain.Calendar}, domains)
	assert.Equal(t, PatternMatchConfidence, confidence)
}

func TestHandler_Detect_KeywordBucketFallback(t *testing.T) {
	h := newTestHandler(nil)
	h.Detector = nil // without a detector, no Mixed verdict precedes the keyword buckets
	isCross, domains, confidence := h.Detect("todo list and calendar appointment reminder")
	require.True(t, isCross)
	assert.GreaterOrEqual(t, len(domains), 2)
	assert.Equal(t, KeywordDetectionConfidence, confidence)
}

func TestHandler_Handle_ParallelExecution(t *testing.T) {
	registry := exec.MapRegistry{
		"tasks":    stubTool{result: "2 tasks due today"},
		"calendar": stubTool{result: "1 meeting at 3pm"},
	}
	h := newTestHandler(registry)

	result, err := h.Handle(context.Background(), "show my tasks and meetings for today", []string{"tasks", "calendar"})

	require.NoError(t, err)
	require.True(t, result.IsCrossDomain)
	assert.Equal(t, ModeParallel, result.ExecutionMode)
	assert.Equal(t, 2, result.TotalCount)
	assert.Equal(t, 2, result.SuccessfulCount)
	assert.Contains(t, result.FinalResult, "2 tasks due today")
	assert.Contains(t, result.FinalResult, "1 meeting at 3pm")
}

func TestHandler_Handle_DependentExecution(t *testing.T) {
	registry := exec.MapRegistry{
		"email": stubTool{result: "3 unread emails from boss"},
		"tasks": stubTool{result: "task created"},
	}
	h := newTestHandler(registry)

	result, err := h.Handle(context.Background(), "create task for each email from my boss", []string{"email", "tasks"})

	require.NoError(t, err)
	require.True(t, result.IsCrossDomain)
	assert.Equal(t, ModeDependent, result.ExecutionMode)

	taskStep := stepForDomain(result.Steps, domain.Task)
	emailStep := stepForDomain(result.Steps, domain.Email)
	require.NotNil(t, taskStep)
	require.NotNil(t, emailStep)
	assert.Contains(t, taskStep.Dependencies, emailStep.ID)
	assert.Equal(t, plan.StatusCompleted, taskStep.Status)
	assert.Equal(t, plan.StatusCompleted, emailStep.Status)
}

func TestHandler_Handle_MissingToolSkipsDomain(t *testing.T) {
	registry := exec.MapRegistry{
		"tasks": stubTool{result: "tasks listed"},
	}
	h := newTestHandler(registry)

	result, err := h.Handle(context.Background(), "show my tasks and meetings for today", []string{"tasks"})

	require.NoError(t, err)
	require.True(t, result.IsCrossDomain)
	assert.Equal(t, 1, result.TotalCount)
}

func TestHandler_Handle_NotCrossDomainReturnsEarly(t *testing.T) {
	h := newTestHandler(nil)
	result, err := h.Handle(context.Background(), "what is the capital of France", nil)
	require.NoError(t, err)
	assert.False(t, result.IsCrossDomain)
}

func TestSortedByDependencyPriority(t *testing.T) {
	sorted := sortedByDependencyPriority([]domain.Domain{domain.Task, domain.Email, domain.Calendar})
	assert.Equal(t, []domain.Domain{domain.Calendar, domain.Email, domain.Task}, sorted)
}
