// Package log provides the structured session journal.
// This file appends JSON events to .triage/log.jsonl.
package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type constants.
const (
	EventSessionCreated   = "session_created"
	EventFilesSkipped     = "files_skipped"
	EventBackendRequest   = "backend_request"
	EventBackendResponded = "backend_responded"
	EventBackendFailed    = "backend_failed"
	EventFollowUpAnswered = "follow_up_answered"
	EventEscalated        = "escalated"
	EventCallCanceled     = "call_canceled"
)

// LogEvent represents a single structured event written to the journal.
type LogEvent struct {
	Time       time.Time              `json:"time"`
	Event      string                 `json:"event"`
	Session    string                 `json:"session,omitempty"`
	State      string                 `json:"state,omitempty"`
	Cycle      int                    `json:"cycle,omitempty"`
	Files      []string               `json:"files,omitempty"`
	Question   string                 `json:"question,omitempty"`
	RootCause  string                 `json:"root_cause,omitempty"`
	Patches    int                    `json:"patches,omitempty"`
	Kind       string                 `json:"kind,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Logger writes append-only JSONL events to a log file.
type Logger struct {
	path string
	mu   sync.Mutex
}

// NewLogger creates a Logger that writes to .triage/log.jsonl inside dir.
// Creates the .triage/ directory if it does not already exist.
// Does not truncate an existing log file.
func NewLogger(dir string) (*Logger, error) {
	triageDir := filepath.Join(dir, ".triage")
	if err := os.MkdirAll(triageDir, 0755); err != nil {
		return nil, fmt.Errorf("create .triage directory: %w", err)
	}

	return &Logger{
		path: filepath.Join(triageDir, "log.jsonl"),
	}, nil
}

// Path returns the journal file location.
func (l *Logger) Path() string {
	return l.path
}

// Append stamps event with the current time when unset and writes it as one
// line. A nil Logger discards events.
func (l *Logger) Append(event LogEvent) error {
	if l == nil {
		return nil
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	if err := json.NewEncoder(f).Encode(event); err != nil {
		f.Close()
		return fmt.Errorf("writing %s event: %w", event.Event, err)
	}
	return f.Close()
}

// ReadAll returns every event in the journal. A missing journal is empty.
func (l *Logger) ReadAll() ([]LogEvent, error) {
	return l.scan(func(LogEvent) bool { return true })
}

// ForSession returns the events recorded for one session, in order.
func (l *Logger) ForSession(id string) ([]LogEvent, error) {
	return l.scan(func(e LogEvent) bool { return e.Session == id })
}

// scan decodes the journal line by line, keeping events that match. A
// truncated final line, left by an interrupted write, is ignored.
func (l *Logger) scan(keep func(LogEvent) bool) ([]LogEvent, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []LogEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	events := []LogEvent{}
	r := bufio.NewReader(f)
	for n := 1; ; n++ {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("reading journal: %w", readErr)
		}
		complete := len(line) > 0 && line[len(line)-1] == '\n'
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 && complete {
			var e LogEvent
			if err := json.Unmarshal(trimmed, &e); err != nil {
				return nil, fmt.Errorf("journal line %d: %w", n, err)
			}
			if keep(e) {
				events = append(events, e)
			}
		}
		if readErr != nil {
			return events, nil
		}
	}
}
