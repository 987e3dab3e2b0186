package context

import (
	stdctx "context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qorc/queryorchestrator/domain"
	"github.com/qorc/queryorchestrator/plan"
)

func completedStep(id string, d domain.Domain, result string) *plan.ExecutionStep {
	s := plan.NewExecutionStep(id, "tool", "action", "query", d, nil, plan.ContextRequirements{})
	_ = s.Start()
	_ = s.Succeed(result, time.Millisecond)
	return s
}

func TestSynthesizer_Synthesize_LastResult(t *testing.T) {
	s := NewSynthesizer(nil, nil)
	steps := []*plan.ExecutionStep{
		completedStep("s1", domain.Email, "found 3 emails from alice@example.com"),
	}

	out := s.Synthesize(stdctx.Background(), steps)

	assert.Equal(t, "found 3 emails from alice@example.com", out["last_result"])
	assert.Contains(t, out["participants"], "alice@example.com")
}

func TestSynthesizer_Synthesize_CrossDomainEnrichment(t *testing.T) {
	s := NewSynthesizer(nil, nil)
	steps := []*plan.ExecutionStep{
		completedStep("s1", domain.Email, "please follow up on this asap"),
		completedStep("s2", domain.Task, "created task"),
	}

	out := s.Synthesize(stdctx.Background(), steps)

	key := "enrichment_email_to_task"
	require.Contains(t, out, key)
	assert.Contains(t, out["source_data"], "follow up")
}

func TestSynthesizer_Synthesize_SkipsIncompleteSteps(t *testing.T) {
	s := NewSynthesizer(nil, nil)
	pending := plan.NewExecutionStep("s1", "tool", "action", "query", domain.Email, nil, plan.ContextRequirements{})

	out := s.Synthesize(stdctx.Background(), []*plan.ExecutionStep{pending})

	assert.Empty(t, out)
}

func TestSynthesizer_EnrichQuery_AppendsRequestedContext(t *testing.T) {
	s := NewSynthesizer(nil, nil)
	accumulated := map[string]string{
		"last_result":  "previous step result",
		"source_data":  "source payload",
		"participants": "bob@example.com",
	}

	q := s.EnrichQuery("do the thing", plan.ContextRequirements{
		NeedsPreviousResults: true,
		NeedsSourceData:      true,
		NeedsParticipantData: true,
	}, accumulated)

	assert.True(t, strings.HasPrefix(q, "do the thing"))
	assert.Contains(t, q, "[Context: previous step result]")
	assert.Contains(t, q, "[Source: source payload]")
	assert.Contains(t, q, "[Participants: bob@example.com]")
}

func TestSynthesizer_EnrichQuery_NoRequirementsLeavesQueryUnchanged(t *testing.T) {
	s := NewSynthesizer(nil, nil)
	q := s.EnrichQuery("do the thing", plan.ContextRequirements{}, map[string]string{"last_result": "x"})
	assert.Equal(t, "do the thing", q)
}

func TestSynthesizer_EnrichQuery_MissingAccumulatedKeySkipsSuffix(t *testing.T) {
	s := NewSynthesizer(nil, nil)
	q := s.EnrichQuery("do the thing", plan.ContextRequirements{NeedsPreviousResults: true}, map[string]string{})
	assert.Equal(t, "do the thing", q)
}

func TestTruncate_BoundsLength(t *testing.T) {
	long := strings.Repeat("a", truncateLen+50)
	got := truncate(long, truncateLen)
	assert.Len(t, got, truncateLen)

	short := "short"
	assert.Equal(t, short, truncate(short, truncateLen))
}
