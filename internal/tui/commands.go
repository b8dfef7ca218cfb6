package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/berth-dev/triage/internal/builder"
)

// loadDefaultsCmd resolves the default selection off the UI goroutine.
func loadDefaultsCmd(ctx context.Context, fn DefaultsFunc) tea.Cmd {
	return func() tea.Msg {
		return DefaultsLoadedMsg{Defaults: fn(ctx)}
	}
}

// diagnoseCmd opens a new session for sel.
func diagnoseCmd(ctx context.Context, eng Engine, sel builder.Selection) tea.Cmd {
	return func() tea.Msg {
		out, err := eng.Diagnose(ctx, sel)
		return OutcomeMsg{Outcome: out, Err: err}
	}
}

// answerCmd sends a follow-up answer for an awaiting session.
func answerCmd(ctx context.Context, eng Engine, id, text string) tea.Cmd {
	return func() tea.Msg {
		out, err := eng.Answer(ctx, id, text)
		return OutcomeMsg{Outcome: out, Err: err}
	}
}

// escalateCmd hands the session off to a human.
func escalateCmd(eng Engine, id string) tea.Cmd {
	return func() tea.Msg {
		out, err := eng.Escalate(id)
		return OutcomeMsg{Outcome: out, Err: err}
	}
}

// cancelCmd aborts the session's in-flight call.
func cancelCmd(eng Engine, id string) tea.Cmd {
	return func() tea.Msg {
		return CancelSentMsg{Err: eng.Cancel(id)}
	}
}
