// Package engine drives diagnostic sessions through their protocol:
// diagnose, answer follow-up questions, and escalate once the follow-up
// budget is spent.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/berth-dev/triage/internal/backend"
	"github.com/berth-dev/triage/internal/builder"
	journal "github.com/berth-dev/triage/internal/log"
	"github.com/berth-dev/triage/internal/metrics"
	"github.com/berth-dev/triage/internal/payload"
	"github.com/berth-dev/triage/internal/session"
)

// EscalationMessage is shown when a session is handed off to a human.
const EscalationMessage = "Escalation requested. Please seek assistance from a human teammate."

// Defaults.
const (
	DefaultMaxFollowUps = 3
	DefaultTimeout      = 120 * time.Second
)

// TimeoutPolicy selects the state a session lands in after a timed-out call.
type TimeoutPolicy string

const (
	// TimeoutRestore returns the session to its prior stable state.
	TimeoutRestore TimeoutPolicy = "restore"
	// TimeoutEscalate hands the session off to a human.
	TimeoutEscalate TimeoutPolicy = "escalate"
)

// ParseTimeoutPolicy converts a config string to a TimeoutPolicy.
func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	switch p := TimeoutPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", TimeoutRestore:
		return TimeoutRestore, nil
	case TimeoutEscalate:
		return TimeoutEscalate, nil
	default:
		return "", fmt.Errorf("unknown timeout policy %q", s)
	}
}

// Affordance is the next user action a session offers.
type Affordance string

const (
	AffordNone     Affordance = ""
	AffordAnswer   Affordance = "answer"
	AffordEscalate Affordance = "escalate"
)

// Recorder receives one record per transport call.
type Recorder interface {
	RecordCall(ctx context.Context, call metrics.Call) error
}

// Outcome is what the UI renders after an event.
type Outcome struct {
	SessionID  string
	State      session.State
	FollowUps  int
	Affordance Affordance
	Result     *payload.Result
	Question   string
	Skipped    []*builder.FileReadError
	Failure    *Failure
	Escalation string
}

// Engine owns session state transitions. It is safe for concurrent use;
// each session is serialized by its own lock.
type Engine struct {
	store        *session.Store
	builder      *builder.Builder
	transport    backend.Transport
	maxFollowUps int
	timeout      time.Duration
	policy       TimeoutPolicy
	journal      *journal.Logger
	recorder     Recorder
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxFollowUps sets the number of answer cycles allowed before escalation.
func WithMaxFollowUps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxFollowUps = n
		}
	}
}

// WithTimeout bounds each transport call. Non-positive durations keep
// DefaultTimeout; every call is bounded.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithTimeoutPolicy selects what a timed-out call does to the session.
func WithTimeoutPolicy(p TimeoutPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithJournal records session events to a JSONL journal.
func WithJournal(l *journal.Logger) Option {
	return func(e *Engine) { e.journal = l }
}

// WithRecorder records per-call metrics.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// New creates an Engine over an explicit session store.
func New(store *session.Store, b *builder.Builder, t backend.Transport, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		builder:      b,
		transport:    t,
		maxFollowUps: DefaultMaxFollowUps,
		timeout:      DefaultTimeout,
		policy:       TimeoutRestore,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxFollowUps returns the follow-up budget.
func (e *Engine) MaxFollowUps() int {
	return e.maxFollowUps
}

// Diagnose builds a payload from sel, opens a new session for it, and sends
// it to the backend. The returned error is a *Failure when the call failed;
// the Outcome is valid either way.
func (e *Engine) Diagnose(ctx context.Context, sel builder.Selection) (Outcome, error) {
	built := e.builder.Build(sel)

	sess, err := e.store.Create(built.Payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("diagnose: %w", err)
	}

	e.record(journal.LogEvent{
		Event:   journal.EventSessionCreated,
		Session: sess.ID,
		Files:   built.Payload.Filenames(),
	})
	if len(built.Skipped) > 0 {
		names := make([]string, 0, len(built.Skipped))
		for _, s := range built.Skipped {
			names = append(names, s.Filename)
		}
		e.record(journal.LogEvent{
			Event:   journal.EventFilesSkipped,
			Session: sess.ID,
			Files:   names,
		})
	}

	out, err := e.dispatch(ctx, sess, func(*session.Session) error { return nil })
	out.Skipped = built.Skipped
	return out, err
}

// Answer merges text into the session summary and resends the payload.
// The merge is committed only if the backend responds.
func (e *Engine) Answer(ctx context.Context, id, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, ErrEmptyAnswer
	}
	sess, err := e.store.Get(id)
	if err != nil {
		return Outcome{}, err
	}

	out, err := e.dispatch(ctx, sess, func(s *session.Session) error {
		if err := e.checkAwaiting(s); err != nil {
			return err
		}
		if s.FollowUps >= e.maxFollowUps {
			return ErrFollowUpBudgetExhausted
		}
		merged := s.Payload.WithAnswer(text)
		s.Pending = &merged
		return nil
	})
	if err == nil {
		e.record(journal.LogEvent{
			Event:   journal.EventFollowUpAnswered,
			Session: id,
			State:   string(out.State),
			Cycle:   out.FollowUps,
		})
	}
	return out, err
}

// Escalate hands an awaiting session off to a human. It never calls the backend.
func (e *Engine) Escalate(id string) (Outcome, error) {
	sess, err := e.store.Get(id)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	err = sess.Do(func(s *session.Session) error {
		if err := e.checkAwaiting(s); err != nil {
			return err
		}
		s.State = session.StateEscalated
		s.Question = ""
		out = e.outcomeLocked(s)
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	e.record(journal.LogEvent{
		Event:   journal.EventEscalated,
		Session: id,
		State:   string(out.State),
		Cycle:   out.FollowUps,
	})
	return out, nil
}

// Cancel aborts the session's in-flight call. The pending Diagnose or Answer
// returns a canceled Failure.
func (e *Engine) Cancel(id string) error {
	sess, err := e.store.Get(id)
	if err != nil {
		return err
	}
	return sess.Do(func(s *session.Session) error {
		if s.State != session.StateDiagnosing || s.Cancel == nil {
			return ErrNothingInFlight
		}
		s.Cancel()
		return nil
	})
}

// Snapshot returns a copy of one session.
func (e *Engine) Snapshot(id string) (session.Snapshot, error) {
	sess, err := e.store.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Outcome projects the session's current state without changing it.
func (e *Engine) Outcome(id string) (Outcome, error) {
	sess, err := e.store.Get(id)
	if err != nil {
		return Outcome{}, err
	}
	var out Outcome
	_ = sess.Do(func(s *session.Session) error {
		out = e.outcomeLocked(s)
		return nil
	})
	return out, nil
}

// Sessions lists every session in the store.
func (e *Engine) Sessions() []session.Summary {
	return e.store.List()
}

func (e *Engine) checkAwaiting(s *session.Session) error {
	switch s.State {
	case session.StateAwaitingAnswer:
		return nil
	case session.StateDiagnosing:
		return ErrCallInFlight
	case session.StateEscalated:
		return ErrEscalated
	default:
		return ErrNotAwaitingAnswer
	}
}

// dispatch moves sess into DIAGNOSING after prepare accepts the event, calls
// the transport outside the session lock, and applies the response.
func (e *Engine) dispatch(ctx context.Context, sess *session.Session, prepare func(*session.Session) error) (Outcome, error) {
	var (
		callCtx  context.Context
		cancel   context.CancelFunc
		outbound payload.Payload
		cycle    int
	)

	err := sess.Do(func(s *session.Session) error {
		if s.State == session.StateDiagnosing {
			return ErrCallInFlight
		}
		if s.State == session.StateEscalated {
			return ErrEscalated
		}
		if err := prepare(s); err != nil {
			return err
		}

		callCtx, cancel = context.WithTimeout(ctx, e.timeout)

		s.Prior = s.State
		s.State = session.StateDiagnosing
		s.Cancel = cancel
		s.Calls++

		outbound = s.Payload
		if s.Pending != nil {
			outbound = *s.Pending
		}
		outbound = outbound.Clone()
		cycle = s.FollowUps
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	defer cancel()

	e.record(journal.LogEvent{
		Event:   journal.EventBackendRequest,
		Session: sess.ID,
		Cycle:   cycle,
		Files:   outbound.Filenames(),
	})

	start := e.now()
	result, callErr := e.transport.Diagnose(callCtx, outbound)
	elapsed := e.now().Sub(start)

	var failure *Failure
	if callErr != nil {
		failure = classify(callCtx, callErr)
	} else if result == nil {
		result = &payload.Result{}
	}

	var out Outcome
	_ = sess.Do(func(s *session.Session) error {
		s.Cancel = nil
		if failure != nil {
			e.failLocked(s, failure)
		} else {
			e.succeedLocked(s, result)
		}
		out = e.outcomeLocked(s)
		out.Failure = failure
		return nil
	})

	e.afterCall(ctx, sess.ID, cycle, outbound, elapsed, out, result, failure)

	if failure != nil {
		return out, failure
	}
	return out, nil
}

func (e *Engine) succeedLocked(s *session.Session, result *payload.Result) {
	if s.Pending != nil {
		s.Payload = *s.Pending
		s.Pending = nil
		s.FollowUps++
	}
	s.LastResult = result
	if result.HasFollowUp() {
		s.State = session.StateAwaitingAnswer
		s.Question = result.FollowUp
		return
	}
	s.State = session.StateIdle
	s.Question = ""
}

func (e *Engine) failLocked(s *session.Session, f *Failure) {
	s.Pending = nil
	if f.Kind == KindTimeout && e.policy == TimeoutEscalate {
		s.State = session.StateEscalated
		s.Question = ""
		f.Actions = nil
		return
	}

	s.State = s.Prior
	if s.State == session.StateAwaitingAnswer {
		if s.FollowUps < e.maxFollowUps {
			f.Actions = []Action{ActionRetry, ActionAnswer, ActionEscalate}
		} else {
			f.Actions = []Action{ActionEscalate}
		}
		return
	}
	f.Actions = []Action{ActionRetry}
}

func (e *Engine) outcomeLocked(s *session.Session) Outcome {
	out := Outcome{
		SessionID: s.ID,
		State:     s.State,
		FollowUps: s.FollowUps,
		Question:  s.Question,
	}
	if s.LastResult != nil {
		copied := *s.LastResult
		copied.Patches = append([]string(nil), s.LastResult.Patches...)
		out.Result = &copied
	}
	switch s.State {
	case session.StateAwaitingAnswer:
		if s.FollowUps < e.maxFollowUps {
			out.Affordance = AffordAnswer
		} else {
			out.Affordance = AffordEscalate
		}
	case session.StateEscalated:
		out.Escalation = EscalationMessage
	}
	return out
}

// classify maps a transport error to a failure kind. The call context is
// checked first so deadline and cancellation win over the wrapped cause.
func classify(callCtx context.Context, err error) *Failure {
	f := &Failure{Err: err, Message: err.Error(), Retryable: true}
	switch {
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		f.Kind = KindTimeout
		f.Message = "the diagnosis service did not respond in time"
	case errors.Is(callCtx.Err(), context.Canceled):
		f.Kind = KindCanceled
		f.Message = "the diagnosis call was canceled"
	case errors.Is(err, backend.ErrBackend):
		f.Kind = KindBackend
		f.Retryable = false
	default:
		f.Kind = KindTransport
	}
	return f
}

func (e *Engine) afterCall(ctx context.Context, id string, cycle int, sent payload.Payload, elapsed time.Duration, out Outcome, result *payload.Result, failure *Failure) {
	event := journal.LogEvent{
		Session:    id,
		State:      string(out.State),
		Cycle:      cycle,
		DurationMs: elapsed.Milliseconds(),
	}
	call := metrics.Call{
		Source:       metrics.SourceClient,
		SessionID:    id,
		Cycle:        cycle,
		DurationMs:   elapsed.Milliseconds(),
		FileCount:    len(sent.Files),
		PayloadBytes: sent.Size(),
	}

	switch {
	case failure != nil:
		event.Event = journal.EventBackendFailed
		if failure.Kind == KindCanceled {
			event.Event = journal.EventCallCanceled
		}
		event.Kind = string(failure.Kind)
		event.Error = failure.Err.Error()
		call.Outcome = string(failure.Kind)
		log.Warn().Str("session", id).Str("kind", string(failure.Kind)).Err(failure.Err).Msg("diagnosis call failed")
	default:
		event.Event = journal.EventBackendResponded
		event.Question = result.FollowUp
		event.RootCause = result.RootCause
		event.Patches = len(result.Patches)
		call.Outcome = "result"
		if result.HasFollowUp() {
			call.Outcome = "follow_up"
		}
		call.Confidence = result.Confidence
		log.Debug().Str("session", id).Str("state", string(out.State)).Int("cycle", cycle).Msg("diagnosis call returned")
	}
	e.record(event)

	if failure != nil && out.State == session.StateEscalated {
		e.record(journal.LogEvent{Event: journal.EventEscalated, Session: id, State: string(out.State), Kind: string(failure.Kind)})
	}

	if e.recorder != nil {
		if err := e.recorder.RecordCall(context.WithoutCancel(ctx), call); err != nil {
			log.Warn().Err(err).Str("session", id).Msg("record call metrics")
		}
	}
}

func (e *Engine) record(event journal.LogEvent) {
	if err := e.journal.Append(event); err != nil {
		log.Warn().Err(err).Str("event", event.Event).Msg("append journal event")
	}
}
