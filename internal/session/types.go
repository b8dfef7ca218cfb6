// Package session provides the process-wide, in-memory store of diagnostic sessions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/berth-dev/triage/internal/payload"
)

// State is a diagnostic session's position in the protocol.
type State string

// Session states.
const (
	StateIdle           State = "IDLE"
	StateDiagnosing     State = "DIAGNOSING"
	StateAwaitingAnswer State = "AWAITING_ANSWER"
	StateEscalated      State = "ESCALATED"
)

// Stable reports whether s is a state a session can rest in between calls.
func (s State) Stable() bool {
	return s == StateIdle || s == StateAwaitingAnswer
}

// Session is one diagnosis conversation. All fields are guarded by the
// session's own lock; use Do to mutate and Snapshot to read.
type Session struct {
	mu sync.Mutex

	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	State     State
	FollowUps int
	Payload   payload.Payload

	// Question is the outstanding follow-up question, if any.
	Question   string
	LastResult *payload.Result

	// Prior is the stable state to restore when an in-flight call fails.
	Prior State
	// Pending holds a merged payload that is committed only on success.
	Pending *payload.Payload
	// Cancel aborts the in-flight call, if any.
	Cancel context.CancelFunc
	// Calls counts transport calls issued for this session.
	Calls int
}

// Do runs fn while holding the session lock and stamps UpdatedAt.
func (s *Session) Do(fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s); err != nil {
		return err
	}
	s.UpdatedAt = time.Now()
	return nil
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID         string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	State      State
	FollowUps  int
	Payload    payload.Payload
	Question   string
	LastResult *payload.Result
	Calls      int
}

// Snapshot copies the session's fields under its lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	var last *payload.Result
	if s.LastResult != nil {
		copied := *s.LastResult
		copied.Patches = append([]string(nil), s.LastResult.Patches...)
		last = &copied
	}
	return Snapshot{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
		State:      s.State,
		FollowUps:  s.FollowUps,
		Payload:    s.Payload.Clone(),
		Question:   s.Question,
		LastResult: last,
		Calls:      s.Calls,
	}
}

// Summary provides a high-level view of a session for listing.
type Summary struct {
	ID        string
	State     State
	FollowUps int
	Files     int
	CreatedAt time.Time
	UpdatedAt time.Time
}
