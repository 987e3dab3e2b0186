package analytics

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qorc/queryorchestrator/crossdomain"
	"github.com/qorc/queryorchestrator/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "analytics.db")
	s, err := NewStore(dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordRouting_AndGetMetrics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordRouting(ctx, "read my email", domain.Email, 0.95, "email", OutcomeSuccess, 120*time.Millisecond, true, true, false, "", "user-1", "sess-1", "")
	require.NoError(t, err)
	_, err = s.RecordRouting(ctx, "create a task", domain.Task, 0.40, "tasks", OutcomeFailure, 80*time.Millisecond, false, true, false, "tool unavailable", "user-1", "sess-1", "")
	require.NoError(t, err)

	metrics, err := s.GetMetrics(ctx, 7, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.TotalQueries)
	assert.InDelta(t, 0.5, metrics.Accuracy, 0.001)
	assert.InDelta(t, 0.675, metrics.AvgConfidence, 0.001)
}

func TestStore_GetMetrics_FiltersByDomain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordRouting(ctx, "q1", domain.Email, 0.9, "email", OutcomeSuccess, 0, false, false, false, "", "", "", "")
	require.NoError(t, err)
	_, err = s.RecordRouting(ctx, "q2", domain.Task, 0.9, "tasks", OutcomeSuccess, 0, false, false, false, "", "", "", "")
	require.NoError(t, err)

	metrics, err := s.GetMetrics(ctx, 7, string(domain.Email), "")
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TotalQueries)
}

func TestStore_RecordMisroutingPattern_AveragesConfidence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordMisroutingPattern(ctx, "send the weekly digest", domain.Email, domain.Task, 0.4))
	require.NoError(t, s.RecordMisroutingPattern(ctx, "send the weekly digest", domain.Email, domain.Task, 0.6))

	patterns, err := s.GetMisroutingPatterns(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 2, patterns[0].Occurrences)
	assert.InDelta(t, 0.5, patterns[0].AvgConfidence, 0.001)
}

func TestStore_RecordCorrection_SeedsMisroutingPattern(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordCorrection(ctx, 0, domain.Task, domain.Calendar, "schedule a task for tomorrow", "user corrected"))

	patterns, err := s.GetMisroutingPatterns(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, string(domain.Task), patterns[0].WrongDomain)
	assert.Equal(t, string(domain.Calendar), patterns[0].CorrectDomain)
}

func TestStore_RecordPlannerCorrection_LinksDecisionAndCorrectionRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordPlannerCorrection(ctx, "schedule a task for tomorrow", domain.Task, domain.Calendar, 0.62, "validator rejected tasks tool", "user-7", "sess-7"))

	var outcome, userID string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT outcome, user_id FROM routing_decisions ORDER BY id DESC LIMIT 1`).Scan(&outcome, &userID))
	assert.Equal(t, string(OutcomeCorrection), outcome)
	assert.Equal(t, "user-7", userID)

	var decisionID sql.NullInt64
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT routing_decision_id FROM routing_corrections ORDER BY id DESC LIMIT 1`).Scan(&decisionID))
	require.True(t, decisionID.Valid)
	assert.Greater(t, decisionID.Int64, int64(0))

	patterns, err := s.GetMisroutingPatterns(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
}

func TestStore_RecordRouting_PopulatesQueryLengthAndMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordRouting(ctx, "read my email", domain.Email, 0.95, "email", OutcomeSuccess, 0, false, false, false, "", "user-1", "sess-1", `{"source":"cli"}`)
	require.NoError(t, err)

	var queryLength int
	var metadata string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT query_length, metadata FROM routing_decisions ORDER BY id DESC LIMIT 1`).Scan(&queryLength, &metadata))
	assert.Equal(t, len("read my email"), queryLength)
	assert.Equal(t, `{"source":"cli"}`, metadata)
}

func TestStore_RecordStepOutcome_SatisfiesExecAnalyticsRecorder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.RecordStepOutcome(ctx, "step-1", "email", domain.Email, true, "", 50*time.Millisecond)

	usage, err := s.GetToolUsage(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, usage["email"])
}

func TestStore_RecordCrossDomainQuery_MarksMixedOnPartialFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.RecordCrossDomainQuery(ctx, "tasks and meetings today", []domain.Domain{domain.Task, domain.Calendar}, 0.9, crossdomain.ModeParallel, 1, 2)

	metrics, err := s.GetMetrics(ctx, 7, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TotalQueries)
	assert.InDelta(t, 1.0, metrics.CrossDomainRate, 0.001)

	var outcome string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT outcome FROM routing_decisions ORDER BY id DESC LIMIT 1`).Scan(&outcome))
	assert.Equal(t, string(OutcomeMixed), outcome)
}

func TestStore_GetConfidenceDistribution_Buckets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordRouting(ctx, "q1", domain.Email, 0.05, "email", OutcomeSuccess, 0, false, false, false, "", "", "", "")
	require.NoError(t, err)
	_, err = s.RecordRouting(ctx, "q2", domain.Email, 0.95, "email", OutcomeSuccess, 0, false, false, false, "", "", "", "")
	require.NoError(t, err)

	buckets, err := s.GetConfidenceDistribution(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, buckets, 10)
	assert.Equal(t, 1, buckets[0].Count)
	assert.Equal(t, 1, buckets[9].Count)
}

func TestStore_GenerateReport_IncludesHeadline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.RecordRouting(ctx, "q1", domain.Email, 0.9, "email", OutcomeSuccess, 0, false, false, false, "", "", "", "")
	require.NoError(t, err)

	report, err := s.GenerateReport(ctx, 7)
	require.NoError(t, err)
	assert.Contains(t, report, "ROUTING ANALYTICS REPORT")
	assert.Contains(t, report, "Total queries:     1")
}

func TestStore_ExportMetrics_WritesJSONFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.RecordRouting(ctx, "q1", domain.Email, 0.9, "email", OutcomeSuccess, 0, false, false, false, "", "", "", "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, s.ExportMetrics(ctx, path, 7))
	assert.FileExists(t, path)
}
