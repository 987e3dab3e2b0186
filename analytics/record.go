package analytics

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/qorc/queryorchestrator/crossdomain"
	"github.com/qorc/queryorchestrator/domain"
)

// RecordRouting persists one routing decision and returns its row id, so
// callers that need to link a dependent row (e.g. a correction) back to the
// decision that produced it can do so via foreign key. execTime is stored in
// milliseconds to match the report/export granularity the rest of this
// package reads back. userID and sessionID identify the caller the decision
// was made for; metadata is an opaque, caller-defined string (typically
// JSON) carried through unexamined. query_length is derived from query
// rather than taken as a parameter, since it is always redundant with it.
func (s *Store) RecordRouting(ctx context.Context, query string, detected domain.Domain, confidence float64, routedTool string, outcome Outcome, execTime time.Duration, usedParser, usedValidator, crossDomainQuery bool, errMsg string, userID, sessionID, metadata string) (int64, error) {
	res, err := s.insertDecision.ExecContext(ctx,
		nowRFC3339(), query, string(detected), confidence, routedTool, string(outcome),
		float64(execTime.Microseconds())/1000.0, boolToInt(usedParser), boolToInt(usedValidator), boolToInt(crossDomainQuery), errMsg,
		userID, sessionID, len(query), metadata,
	)
	if err != nil {
		s.logger.Warn("analytics: failed to record routing decision", map[string]interface{}{"error": err.Error()})
		return 0, err
	}
	return res.LastInsertId()
}

// RecordCorrection logs a human or downstream-system correction to a prior
// routing decision, e.g. a user explicitly re-routing a misclassified query.
// decisionID, if non-zero, links the correction to the routing_decisions row
// it corrects via foreign key; pass 0 when no such row exists.
func (s *Store) RecordCorrection(ctx context.Context, decisionID int64, original, corrected domain.Domain, query, reason string) error {
	var decisionIDArg interface{}
	if decisionID > 0 {
		decisionIDArg = decisionID
	}
	_, err := s.insertCorrection.ExecContext(ctx, decisionIDArg, nowRFC3339(), string(original), string(corrected), query, reason)
	if err != nil {
		s.logger.Warn("analytics: failed to record correction", map[string]interface{}{"error": err.Error()})
		return err
	}
	return s.RecordMisroutingPattern(ctx, query, original, corrected, 0)
}

// RecordPlannerCorrection persists an auto-correction the planner applied
// while building an execution plan: a routing_decisions row with
// outcome=correction whose detected_domain and routed_tool both hold the
// corrected domain's name (not a tool name), plus the
// routing_corrections row describing what was corrected, linked by foreign
// key. This keeps every correction outcome paired with a matching
// correction record, which GetMisroutingPatterns and report generation rely
// on.
func (s *Store) RecordPlannerCorrection(ctx context.Context, query string, original, corrected domain.Domain, confidence float64, reason, userID, sessionID string) error {
	decisionID, err := s.RecordRouting(ctx, query, corrected, confidence, string(corrected), OutcomeCorrection, 0, false, true, false, reason, userID, sessionID, "")
	if err != nil {
		return err
	}
	return s.RecordCorrection(ctx, decisionID, original, corrected, query, reason)
}

// RecordDomainValidation records the outcome of a routing.Validator decision
// as a routing_decisions row with used_validator set, so validator rejection
// rates show up in the same metrics as tool execution outcomes.
func (s *Store) RecordDomainValidation(ctx context.Context, query string, detected domain.Domain, confidence float64, valid bool, reason string) error {
	outcome := OutcomeSuccess
	if !valid {
		outcome = OutcomeFailure
	}
	_, err := s.RecordRouting(ctx, query, detected, confidence, "", outcome, 0, false, true, false, reason, "", "", "")
	return err
}

// RecordMisroutingPattern upserts a recurring-misroute fingerprint keyed by
// the hash of (queryPattern, wrongDomain, correctDomain). Repeated
// occurrences fold their confidence into a running average rather than
// overwriting it, so one outlier correction doesn't swing the pattern's
// reported confidence.
func (s *Store) RecordMisroutingPattern(ctx context.Context, queryPattern string, wrongDomain, correctDomain domain.Domain, confidence float64) error {
	hash := patternHash(queryPattern, wrongDomain, correctDomain)
	now := nowRFC3339()

	var occurrences int
	var avgConfidence float64
	err := s.db.QueryRowContext(ctx,
		`SELECT occurrences, avg_confidence FROM misrouting_patterns WHERE pattern_hash = ?`, hash,
	).Scan(&occurrences, &avgConfidence)

	switch err {
	case sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO misrouting_patterns
				(pattern_hash, query_pattern, wrong_domain, correct_domain, occurrences, avg_confidence, first_seen, last_seen, resolved)
			VALUES (?, ?, ?, ?, 1, ?, ?, ?, 0)`,
			hash, queryPattern, string(wrongDomain), string(correctDomain), confidence, now, now)
		return err
	case nil:
		newOccurrences := occurrences + 1
		newAvg := (avgConfidence*float64(occurrences) + confidence) / float64(newOccurrences)
		_, err = s.db.ExecContext(ctx, `
			UPDATE misrouting_patterns
			SET occurrences = ?, avg_confidence = ?, last_seen = ?
			WHERE pattern_hash = ?`,
			newOccurrences, newAvg, now, hash)
		return err
	default:
		return err
	}
}

// RecordStepOutcome implements exec.AnalyticsRecorder: it records a single
// sub-query execution as a routing decision. stepID is recorded as the query
// text since individual steps don't carry the user's original phrasing.
func (s *Store) RecordStepOutcome(ctx context.Context, stepID, tool string, d domain.Domain, success bool, errMsg string, elapsed time.Duration) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	if _, err := s.RecordRouting(ctx, stepID, d, 0, tool, outcome, elapsed, false, false, false, errMsg, "", "", ""); err != nil {
		s.logger.Warn("analytics: failed to record step outcome", map[string]interface{}{"step_id": stepID, "error": err.Error()})
	}
}

// RecordCrossDomainQuery implements crossdomain.AggregateRecorder: it
// records the aggregate outcome of a decomposed multi-domain query as a
// single routing decision row tagged cross_domain=true.
func (s *Store) RecordCrossDomainQuery(ctx context.Context, query string, domains []domain.Domain, confidence float64, mode crossdomain.ExecutionMode, successful, total int) {
	outcome := OutcomeSuccess
	switch {
	case successful == 0:
		outcome = OutcomeFailure
	case successful < total:
		outcome = OutcomeMixed
	}
	detected := domain.Mixed
	if len(domains) == 1 {
		detected = domains[0]
	}
	if _, err := s.RecordRouting(ctx, query, detected, confidence, string(mode), outcome, 0, false, false, true, "", "", "", ""); err != nil {
		s.logger.Warn("analytics: failed to record cross-domain query", map[string]interface{}{"error": err.Error()})
	}
}

func patternHash(queryPattern string, wrongDomain, correctDomain domain.Domain) string {
	h := sha256.Sum256([]byte(queryPattern + "|" + string(wrongDomain) + "|" + string(correctDomain)))
	return hex.EncodeToString(h[:])
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
