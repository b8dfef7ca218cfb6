package tui

import (
	"github.com/berth-dev/triage/internal/builder"
	"github.com/berth-dev/triage/internal/engine"
)

// ============================================================================
// Startup Messages
// ============================================================================

// DefaultsLoadedMsg carries the default file selection and collected error log.
type DefaultsLoadedMsg struct {
	Defaults builder.Defaults
}

// ============================================================================
// Session Messages
// ============================================================================

// OutcomeMsg carries the engine's projection after a diagnose, answer, or
// escalate event. Err is a *engine.Failure when a call failed, in which case
// Outcome is still valid; any other error leaves the session untouched.
type OutcomeMsg struct {
	Outcome engine.Outcome
	Err     error
}

// CancelSentMsg reports the result of a cancel request.
type CancelSentMsg struct {
	Err error
}
