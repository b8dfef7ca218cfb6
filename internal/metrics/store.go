// Package metrics provides a SQLite-backed ledger of diagnosis calls.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Sources of recorded calls.
const (
	SourceClient = "client"
	SourceServer = "server"
)

// Call is one diagnosis round trip as seen by the client or the server.
type Call struct {
	ID               int64
	Source           string
	SessionID        string
	Cycle            int
	DurationMs       int64
	Outcome          string // result, follow_up, or a failure kind
	FileCount        int
	PayloadBytes     int
	PromptTokens     int
	CompletionTokens int
	Confidence       *float64
	Timestamp        time.Time
}

// Summary aggregates the ledger for one source.
type Summary struct {
	Source        string
	Calls         int
	Failures      int
	FollowUps     int
	AvgDurationMs float64
	AvgConfidence float64
	TotalTokens   int64
}

// Store provides SQLite persistence for call metrics.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at dbPath and creates tables if they don't exist.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		cycle INTEGER DEFAULT 0,
		duration_ms INTEGER DEFAULT 0,
		outcome TEXT NOT NULL,
		file_count INTEGER DEFAULT 0,
		payload_bytes INTEGER DEFAULT 0,
		prompt_tokens INTEGER DEFAULT 0,
		completion_tokens INTEGER DEFAULT 0,
		confidence REAL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_calls_session ON calls(session_id);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordCall inserts one call record.
func (s *Store) RecordCall(ctx context.Context, call Call) error {
	if call.Timestamp.IsZero() {
		call.Timestamp = time.Now().UTC()
	}

	var confidence sql.NullFloat64
	if call.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *call.Confidence, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (source, session_id, cycle, duration_ms, outcome, file_count,
		                    payload_bytes, prompt_tokens, completion_tokens, confidence, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.Source, call.SessionID, call.Cycle, call.DurationMs, call.Outcome, call.FileCount,
		call.PayloadBytes, call.PromptTokens, call.CompletionTokens, confidence, call.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// CallsForSession retrieves all calls recorded for a session, oldest first.
func (s *Store) CallsForSession(ctx context.Context, sessionID string) ([]Call, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, session_id, cycle, duration_ms, outcome, file_count,
		        payload_bytes, prompt_tokens, completion_tokens, confidence, timestamp
		 FROM calls
		 WHERE session_id = ?
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var calls []Call
	for rows.Next() {
		var c Call
		var confidence sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.Source, &c.SessionID, &c.Cycle, &c.DurationMs, &c.Outcome,
			&c.FileCount, &c.PayloadBytes, &c.PromptTokens, &c.CompletionTokens, &confidence, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		if confidence.Valid {
			v := confidence.Float64
			c.Confidence = &v
		}
		calls = append(calls, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return calls, nil
}

// Summaries aggregates the ledger per source.
func (s *Store) Summaries(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source,
		        COUNT(*),
		        COALESCE(SUM(CASE WHEN outcome NOT IN ('result', 'follow_up') THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN outcome = 'follow_up' THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(duration_ms), 0),
		        COALESCE(AVG(confidence), 0),
		        COALESCE(SUM(prompt_tokens + completion_tokens), 0)
		 FROM calls
		 GROUP BY source
		 ORDER BY source ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Source, &sum.Calls, &sum.Failures, &sum.FollowUps,
			&sum.AvgDurationMs, &sum.AvgConfidence, &sum.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return summaries, nil
}
