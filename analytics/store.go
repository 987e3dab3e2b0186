// Package analytics persists routing decisions to SQLite and answers the
// aggregate questions built on top of them: per-domain accuracy, tool usage,
// confidence distribution, and recurring misrouting patterns.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/qorc/queryorchestrator/core"
)

// Outcome classifies how a routing decision turned out.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFailure    Outcome = "failure"
	OutcomeCorrection Outcome = "correction"
	OutcomeUncertain  Outcome = "uncertain"
	OutcomeMixed      Outcome = "mixed"
)

const schema = `
CREATE TABLE IF NOT EXISTS routing_decisions (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp         TEXT NOT NULL,
	query             TEXT NOT NULL,
	detected_domain   TEXT NOT NULL,
	confidence        REAL NOT NULL,
	routed_tool       TEXT NOT NULL,
	outcome           TEXT NOT NULL,
	execution_time_ms REAL NOT NULL,
	used_parser       INTEGER NOT NULL DEFAULT 0,
	used_validator    INTEGER NOT NULL DEFAULT 0,
	cross_domain      INTEGER NOT NULL DEFAULT 0,
	error_message     TEXT NOT NULL DEFAULT '',
	user_id           TEXT NOT NULL DEFAULT '',
	session_id        TEXT NOT NULL DEFAULT '',
	query_length      INTEGER NOT NULL DEFAULT 0,
	metadata          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS routing_corrections (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	routing_decision_id INTEGER REFERENCES routing_decisions(id),
	timestamp           TEXT NOT NULL,
	original_domain     TEXT NOT NULL,
	corrected_domain    TEXT NOT NULL,
	query               TEXT NOT NULL,
	reason              TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS misrouting_patterns (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	pattern_hash   TEXT NOT NULL UNIQUE,
	query_pattern  TEXT NOT NULL,
	wrong_domain   TEXT NOT NULL,
	correct_domain TEXT NOT NULL,
	occurrences    INTEGER NOT NULL DEFAULT 1,
	avg_confidence REAL NOT NULL,
	first_seen     TEXT NOT NULL,
	last_seen      TEXT NOT NULL,
	resolved       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS daily_metrics (
	date                 TEXT PRIMARY KEY,
	total_queries        INTEGER NOT NULL DEFAULT 0,
	successful_queries   INTEGER NOT NULL DEFAULT 0,
	failed_queries       INTEGER NOT NULL DEFAULT 0,
	avg_confidence       REAL NOT NULL DEFAULT 0,
	avg_execution_time_ms REAL NOT NULL DEFAULT 0,
	cross_domain_queries INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON routing_decisions(timestamp);
CREATE INDEX IF NOT EXISTS idx_decisions_outcome ON routing_decisions(outcome);
CREATE INDEX IF NOT EXISTS idx_decisions_domain ON routing_decisions(detected_domain);
CREATE INDEX IF NOT EXISTS idx_decisions_tool ON routing_decisions(routed_tool);
CREATE INDEX IF NOT EXISTS idx_corrections_decision ON routing_corrections(routing_decision_id);
`

// Store is the SQLite-backed routing-analytics recorder. A nil *Store is not
// usable; callers that want analytics disabled should leave the collaborator
// field nil instead, which every caller in this codebase already treats as
// "skip recording".
type Store struct {
	db     *sql.DB
	logger core.Logger

	insertDecision   *sql.Stmt
	insertCorrection *sql.Stmt
}

// NewStore opens (creating if absent) a SQLite database at dsn and
// initializes its schema. dsn is passed straight to the driver, so callers
// can append query params such as "?_busy_timeout=5000" themselves.
func NewStore(dsn string, logger core.Logger) (*Store, error) {
	if logger == nil {
		logger = core.NopLogger{}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, core.NewFrameworkError("analytics.NewStore", "StoreUnavailable", dsn, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err))
	}
	// A single-file SQLite database serializes writes regardless; capping
	// the pool avoids SQLITE_BUSY churn under concurrent step recording.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, core.NewFrameworkError("analytics.NewStore", "StoreUnavailable", dsn, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err))
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;PRAGMA foreign_keys=ON;"); err != nil {
		logger.Warn("analytics: failed to set pragmas", map[string]interface{}{"error": err.Error()})
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, core.NewFrameworkError("analytics.NewStore", "StoreUnavailable", dsn, fmt.Errorf("%w: schema init: %v", core.ErrStoreUnavailable, err))
	}

	s := &Store{db: db, logger: logger}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) prepareStatements() error {
	var err error
	s.insertDecision, err = s.db.Prepare(`
		INSERT INTO routing_decisions
			(timestamp, query, detected_domain, confidence, routed_tool, outcome,
			 execution_time_ms, used_parser, used_validator, cross_domain, error_message,
			 user_id, session_id, query_length, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return core.NewFrameworkError("analytics.prepareStatements", "StoreUnavailable", "", fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err))
	}
	s.insertCorrection, err = s.db.Prepare(`
		INSERT INTO routing_corrections (routing_decision_id, timestamp, original_domain, corrected_domain, query, reason)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return core.NewFrameworkError("analytics.prepareStatements", "StoreUnavailable", "", fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err))
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
