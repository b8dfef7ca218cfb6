package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/berth-dev/triage/internal/engine"
	"github.com/berth-dev/triage/internal/session"
)

// Init starts the cursor blink and resolves the default selection.
func (m Model) Init() tea.Cmd {
	if m.defaults == nil {
		return textarea.Blink
	}
	return tea.Batch(textarea.Blink, m.Spinner.Tick, loadDefaultsCmd(m.ctx, m.defaults))
}

// Update handles messages for the panel.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case DefaultsLoadedMsg:
		m.Loading = false
		m.Files = make([]FileItem, 0, len(msg.Defaults.Files))
		for _, f := range msg.Defaults.Files {
			m.Files = append(m.Files, FileItem{Path: f, Selected: true})
		}
		m.Failures = len(msg.Defaults.Failures)
		if strings.TrimSpace(m.ErrorLog.Value()) == "" && msg.Defaults.ErrorLog != "" {
			m.ErrorLog.SetValue(msg.Defaults.ErrorLog)
		}
		m.Cursor = 0
		m.resize(m.Width, m.Height)
		return m, nil

	case spinner.TickMsg:
		if !m.Busy && !m.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case OutcomeMsg:
		return m.handleOutcome(msg)

	case CancelSentMsg:
		if msg.Err != nil && !errors.Is(msg.Err, engine.ErrNothingInFlight) {
			m.Notice = msg.Err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateFocused(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.inFlight != nil {
			m.inFlight.cancel()
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Cancel):
		if m.Busy {
			return m, m.cancelInFlight()
		}
		return m, nil
	case key.Matches(msg, m.keys.Tab):
		return m, m.cycleFocus(1)
	case key.Matches(msg, m.keys.Back):
		return m, m.cycleFocus(-1)
	case key.Matches(msg, m.keys.Diagnose):
		return m.startDiagnose()
	case key.Matches(msg, m.keys.Retry):
		return m.retry()
	case key.Matches(msg, m.keys.Escalate):
		return m.escalate()
	}

	switch m.Focus {
	case FocusFiles:
		switch {
		case key.Matches(msg, m.keys.Up):
			if m.Cursor > 0 {
				m.Cursor--
			}
			return m, nil
		case key.Matches(msg, m.keys.Down):
			if m.Cursor < len(m.Files)-1 {
				m.Cursor++
			}
			return m, nil
		case key.Matches(msg, m.keys.Toggle):
			if m.Cursor < len(m.Files) {
				m.Files[m.Cursor].Selected = !m.Files[m.Cursor].Selected
			}
			return m, nil
		}
		// Remaining keys scroll the result.
		var cmd tea.Cmd
		m.Viewport, cmd = m.Viewport.Update(msg)
		return m, cmd
	case FocusAnswer:
		if key.Matches(msg, m.keys.Submit) {
			return m.submitAnswer()
		}
	}
	return m.updateFocused(msg)
}

func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.Focus {
	case FocusErrorLog:
		m.ErrorLog, cmd = m.ErrorLog.Update(msg)
	case FocusSummary:
		m.Summary, cmd = m.Summary.Update(msg)
	case FocusAnswer:
		m.Answer, cmd = m.Answer.Update(msg)
	}
	return m, cmd
}

func (m Model) startDiagnose() (tea.Model, tea.Cmd) {
	if m.Busy {
		m.Notice = engine.ErrCallInFlight.Error()
		return m, nil
	}
	sel := m.Selection()
	ctx, cancel := context.WithCancel(m.ctx)
	m.inFlight = &pendingCall{cancel: cancel}
	m.lastSelection = sel
	m.lastAnswer = ""
	m.Busy = true
	m.Notice = ""
	m.Warnings = nil
	return m, tea.Batch(m.Spinner.Tick, diagnoseCmd(ctx, m.eng, sel))
}

func (m Model) submitAnswer() (tea.Model, tea.Cmd) {
	if m.Busy {
		m.Notice = engine.ErrCallInFlight.Error()
		return m, nil
	}
	if !m.HasOutcome || m.Outcome.Affordance != engine.AffordAnswer {
		m.Notice = engine.ErrNotAwaitingAnswer.Error()
		return m, nil
	}
	text := strings.TrimSpace(m.Answer.Value())
	if text == "" {
		m.Notice = engine.ErrEmptyAnswer.Error()
		return m, nil
	}
	return m.sendAnswer(text)
}

func (m Model) sendAnswer(text string) (tea.Model, tea.Cmd) {
	id := m.Outcome.SessionID
	ctx, cancel := context.WithCancel(m.ctx)
	m.inFlight = &pendingCall{sessionID: id, answer: text, cancel: cancel}
	m.lastAnswer = text
	m.Busy = true
	m.Notice = ""
	return m, tea.Batch(m.Spinner.Tick, answerCmd(ctx, m.eng, id, text))
}

// retry repeats the call that failed: the same answer when the session is
// still awaiting one, otherwise a fresh diagnose of the last selection.
func (m Model) retry() (tea.Model, tea.Cmd) {
	f := m.Outcome.Failure
	if m.Busy || !m.HasOutcome || f == nil || !slices.Contains(f.Actions, engine.ActionRetry) {
		return m, nil
	}
	if m.Outcome.State == session.StateAwaitingAnswer && m.lastAnswer != "" {
		return m.sendAnswer(m.lastAnswer)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.inFlight = &pendingCall{cancel: cancel}
	m.Busy = true
	m.Notice = ""
	return m, tea.Batch(m.Spinner.Tick, diagnoseCmd(ctx, m.eng, m.lastSelection))
}

func (m Model) escalate() (tea.Model, tea.Cmd) {
	if m.Busy {
		m.Notice = engine.ErrCallInFlight.Error()
		return m, nil
	}
	if !m.HasOutcome || m.Outcome.State != session.StateAwaitingAnswer {
		m.Notice = engine.ErrNotAwaitingAnswer.Error()
		return m, nil
	}
	return m, escalateCmd(m.eng, m.Outcome.SessionID)
}

// cancelInFlight asks the engine to abort a known session's call. A first
// diagnose has no session id yet, so its context is cancelled directly.
func (m Model) cancelInFlight() tea.Cmd {
	if m.inFlight == nil {
		return nil
	}
	if m.inFlight.sessionID != "" {
		return cancelCmd(m.eng, m.inFlight.sessionID)
	}
	m.inFlight.cancel()
	return nil
}

func (m Model) handleOutcome(msg OutcomeMsg) (tea.Model, tea.Cmd) {
	if m.inFlight != nil {
		m.inFlight.cancel()
		m.inFlight = nil
	}
	m.Busy = false

	var failure *engine.Failure
	if msg.Err != nil && !errors.As(msg.Err, &failure) {
		m.Notice = msg.Err.Error()
		return m, nil
	}

	m.Outcome = msg.Outcome
	m.HasOutcome = true
	m.Notice = ""
	if failure != nil {
		m.Notice = describeFailure(failure)
	}
	for _, s := range msg.Outcome.Skipped {
		m.Warnings = append(m.Warnings, s.Error())
	}
	m.Viewport.SetContent(renderOutcome(m.Outcome, m.eng.MaxFollowUps()))
	m.Viewport.GotoTop()

	switch {
	case m.Outcome.Affordance == engine.AffordAnswer:
		if failure == nil {
			m.Answer.Reset()
		}
		return m, m.setFocus(FocusAnswer)
	case m.Focus == FocusAnswer:
		return m, m.setFocus(FocusFiles)
	}
	return m, nil
}

func describeFailure(f *engine.Failure) string {
	if len(f.Actions) == 0 {
		return f.Error()
	}
	hints := make([]string, 0, len(f.Actions))
	for _, a := range f.Actions {
		switch a {
		case engine.ActionRetry:
			hints = append(hints, "ctrl+r retry")
		case engine.ActionAnswer:
			hints = append(hints, "edit the answer")
		case engine.ActionEscalate:
			hints = append(hints, "ctrl+e escalate")
		}
	}
	return fmt.Sprintf("%s (%s)", f.Error(), strings.Join(hints, ", "))
}

// focusOrder lists the sections reachable with tab.
func (m Model) focusOrder() []Focus {
	order := []Focus{FocusFiles, FocusErrorLog, FocusSummary}
	if m.HasOutcome && m.Outcome.Affordance == engine.AffordAnswer {
		order = append(order, FocusAnswer)
	}
	return order
}

func (m *Model) cycleFocus(step int) tea.Cmd {
	order := m.focusOrder()
	i := slices.Index(order, m.Focus)
	if i < 0 {
		i = 0
	}
	next := order[(i+step+len(order))%len(order)]
	return m.setFocus(next)
}

func (m *Model) setFocus(f Focus) tea.Cmd {
	m.Focus = f
	m.ErrorLog.Blur()
	m.Summary.Blur()
	m.Answer.Blur()
	switch f {
	case FocusErrorLog:
		return m.ErrorLog.Focus()
	case FocusSummary:
		return m.Summary.Focus()
	case FocusAnswer:
		return m.Answer.Focus()
	}
	return nil
}
