package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestAppendAndReadAll(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	if err := logger.Append(LogEvent{Event: EventSessionCreated, Session: "s1", Files: []string{"a.ts"}}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := logger.Append(LogEvent{Event: EventEscalated, Session: "s2"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Time.IsZero() {
		t.Error("Append should stamp the event time")
	}
	if events[0].Files[0] != "a.ts" {
		t.Errorf("Files = %v, want [a.ts]", events[0].Files)
	}

	s2, err := logger.ForSession("s2")
	if err != nil {
		t.Fatalf("ForSession failed: %v", err)
	}
	if len(s2) != 1 || s2[0].Event != EventEscalated {
		t.Errorf("ForSession(s2) = %+v, want one escalated event", s2)
	}
}

func TestReadAllMissingFile(t *testing.T) {
	logger, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestReadAllRejectsCorruptLine(t *testing.T) {
	dir := t.TempDir()
	logger, _ := NewLogger(dir)
	if err := os.WriteFile(filepath.Join(dir, ".triage", "log.jsonl"), []byte("{not json}\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := logger.ReadAll(); err == nil {
		t.Error("expected parse error for corrupt line")
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var logger *Logger
	if err := logger.Append(LogEvent{Event: EventEscalated}); err != nil {
		t.Errorf("nil logger Append returned %v", err)
	}
}

func TestConcurrentAppend(t *testing.T) {
	logger, _ := NewLogger(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = logger.Append(LogEvent{Event: EventBackendRequest})
		}()
	}
	wg.Wait()

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 20 {
		t.Errorf("got %d events, want 20", len(events))
	}
}

func TestReadAllIgnoresTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	logger, _ := NewLogger(dir)
	if err := logger.Append(LogEvent{Event: EventSessionCreated, Session: "s1"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	f, err := os.OpenFile(logger.Path(), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString(`{"event":"escal`)
	f.Close()

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 1 || events[0].Session != "s1" {
		t.Errorf("events = %+v, want only the complete s1 event", events)
	}
}
