package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/berth-dev/triage/internal/payload"
)

// ErrNotFound is returned when no session has the requested id.
var ErrNotFound = errors.New("session not found")

// Store maps session ids to sessions. Sessions are never removed; a new
// diagnose action supersedes the previous session by creating a fresh one.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newID    func() string
}

// NewStore creates an empty store that issues ULID session ids.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		newID:    func() string { return ulid.Make().String() },
	}
}

// Create allocates a new IDLE session holding p with a zero follow-up counter.
func (s *Store) Create(p payload.Payload) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	if _, exists := s.sessions[id]; exists {
		return nil, fmt.Errorf("create session: duplicate id %s", id)
	}

	now := time.Now()
	sess := &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		State:     StateIdle,
		Prior:     StateIdle,
		Payload:   p,
	}
	s.sessions[id] = sess
	return sess, nil
}

// Get retrieves a session by id.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

// Len returns the number of sessions in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns summaries of all sessions, oldest first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	summaries := make([]Summary, 0, len(all))
	for _, sess := range all {
		snap := sess.Snapshot()
		summaries = append(summaries, Summary{
			ID:        snap.ID,
			State:     snap.State,
			FollowUps: snap.FollowUps,
			Files:     len(snap.Payload.Files),
			CreatedAt: snap.CreatedAt,
			UpdatedAt: snap.UpdatedAt,
		})
	}

	// ULIDs sort by creation time.
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ID < summaries[j].ID
	})
	return summaries
}
