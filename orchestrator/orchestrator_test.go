package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qorc/queryorchestrator/crossdomain"
	"github.com/qorc/queryorchestrator/domain"
	"github.com/qorc/queryorchestrator/exec"
	"github.com/qorc/queryorchestrator/plan"
	"github.com/qorc/queryorchestrator/ratelimit"
	"github.com/qorc/queryorchestrator/routing"
	"github.com/qorc/queryorchestrator/telemetry"
)

type stubTool struct{ result string }

func (t stubTool) Run(ctx context.Context, action, query string, params map[string]interface{}) (string, error) {
	return t.result, nil
}

type recordedCorrection struct {
	query               string
	original, corrected domain.Domain
	confidence          float64
	reason              string
	userID, sessionID   string
}

type stubCorrectionRecorder struct{ recorded []recordedCorrection }

func (r *stubCorrectionRecorder) RecordPlannerCorrection(ctx context.Context, query string, original, corrected domain.Domain, confidence float64, reason, userID, sessionID string) error {
	r.recorded = append(r.recorded, recordedCorrection{query, original, corrected, confidence, reason, userID, sessionID})
	return nil
}

func (r *stubCorrectionRecorder) RecordStepOutcome(ctx context.Context, stepID, tool string, d domain.Domain, success bool, errMsg string, elapsed time.Duration) {
}

func (r *stubCorrectionRecorder) RecordCrossDomainQuery(ctx context.Context, query string, domains []domain.Domain, confidence float64, mode crossdomain.ExecutionMode, successful, total int) {
}

func TestOrchestrator_Handle_SingleDomainQuery(t *testing.T) {
	registry := exec.MapRegistry{
		"email": stubTool{result: "3 unread emails"},
	}
	o := New(registry, routing.IntentToolMap{"email": "email"}, nil, nil, nil, nil, nil)

	result, err := o.Handle(context.Background(), "client-1", "check my email", []string{"email"})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.FinalResult, "3 unread emails")
	assert.False(t, result.CrossDomain)
}

func TestOrchestrator_Handle_CrossDomainQuery(t *testing.T) {
	registry := exec.MapRegistry{
		"tasks":    stubTool{result: "2 tasks"},
		"calendar": stubTool{result: "1 meeting"},
	}
	o := New(registry, nil, nil, nil, nil, nil, nil)

	result, err := o.Handle(context.Background(), "client-1", "show my tasks and meetings for today", []string{"tasks", "calendar"})

	require.NoError(t, err)
	assert.True(t, result.CrossDomain)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalSteps)
}

func TestOrchestrator_Handle_RateLimitedClientIsRejected(t *testing.T) {
	registry := exec.MapRegistry{"email": stubTool{result: "ok"}}
	limiter := ratelimit.NewLimiter(ratelimit.NewLocalStore(0, 100))
	o := New(registry, routing.IntentToolMap{"email": "email"}, nil, limiter, nil, nil, nil)

	_, err := o.Handle(context.Background(), "client-1", "check my email", []string{"email"})
	require.Error(t, err)
}

func TestOrchestrator_Handle_EmitsLifecycleEvents(t *testing.T) {
	registry := exec.MapRegistry{"email": stubTool{result: "ok"}}
	var types []EventType
	o := New(registry, routing.IntentToolMap{"email": "email"}, nil, nil, nil, nil, nil)
	o.Events = func(e Event) { types = append(types, e.Type) }

	_, err := o.Handle(context.Background(), "client-1", "check my email", []string{"email"})

	require.NoError(t, err)
	assert.Contains(t, types, EventReasoningStart)
	assert.Contains(t, types, EventToolCallStart)
	assert.Contains(t, types, EventToolComplete)
	assert.Contains(t, types, EventWorkflowComplete)
}

func TestOrchestrator_Handle_UsesTelemetryWhenProvided(t *testing.T) {
	registry := exec.MapRegistry{"email": stubTool{result: "ok"}}
	tel, err := telemetry.NewProvider("orchestrator-test")
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	o := New(registry, routing.IntentToolMap{"email": "email"}, nil, nil, nil, nil, tel)

	_, err = o.Handle(context.Background(), "client-1", "check my email", []string{"email"})
	require.NoError(t, err)
}

func TestOrchestrator_RecordCorrections_ResolvesToolNamesToDomainsAndForwardsToAnalytics(t *testing.T) {
	registry := exec.MapRegistry{"calendar": stubTool{result: "ok"}, "tasks": stubTool{result: "ok"}}
	recorder := &stubCorrectionRecorder{}
	o := New(registry, routing.IntentToolMap{}, recorder, nil, nil, nil, nil)

	corrections := []plan.Correction{
		{StepID: "step_1", OriginalTool: "calendar", CorrectedTool: "tasks", Reason: "validator rejected calendar tool", ValidatorConfidence: 0.42},
	}
	o.recordCorrections(context.Background(), "client-9", "schedule a task for tomorrow", corrections)

	require.Len(t, recorder.recorded, 1)
	got := recorder.recorded[0]
	assert.Equal(t, domain.Calendar, got.original)
	assert.Equal(t, domain.Task, got.corrected)
	assert.Equal(t, "client-9", got.userID)
	assert.InDelta(t, 0.42, got.confidence, 0.001)
}

func TestOrchestrator_RecordCorrections_NilAnalyticsIsNoop(t *testing.T) {
	registry := exec.MapRegistry{"calendar": stubTool{result: "ok"}}
	o := New(registry, routing.IntentToolMap{}, nil, nil, nil, nil, nil)

	assert.NotPanics(t, func() {
		o.recordCorrections(context.Background(), "client-9", "q", []plan.Correction{
			{StepID: "step_1", OriginalTool: "calendar", CorrectedTool: "tasks"},
		})
	})
}
