package tui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berth-dev/triage/internal/builder"
	"github.com/berth-dev/triage/internal/engine"
	"github.com/berth-dev/triage/internal/payload"
	"github.com/berth-dev/triage/internal/session"
	"github.com/berth-dev/triage/internal/testutil"
)

func newPanel(t *testing.T, ft *testutil.FakeTransport, opts ...engine.Option) Model {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "a.ts", []byte("export const a = 1;\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "b.ts", []byte("export const b = 2;\n"), 0644))
	eng := engine.New(session.NewStore(), builder.New(fs), ft, opts...)

	m := NewModel(context.Background(), eng, nil)
	next, _ := m.Update(DefaultsLoadedMsg{Defaults: builder.Defaults{
		Files:    []string{"a.ts", "b.ts"},
		ErrorLog: "E",
	}})
	return next.(Model)
}

func keyMsg(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

func runeMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, k tea.KeyMsg) (Model, tea.Cmd) {
	next, cmd := m.Update(k)
	return next.(Model), cmd
}

// run executes cmd, expanding one level of batching.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		if c != nil {
			out = append(out, c())
		}
	}
	return out
}

// settle feeds every OutcomeMsg produced by cmd back into m.
func settle(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	delivered := false
	for _, msg := range run(cmd) {
		if out, ok := msg.(OutcomeMsg); ok {
			next, _ := m.Update(out)
			m = next.(Model)
			delivered = true
		}
	}
	require.True(t, delivered, "command produced no outcome")
	return m
}

func TestDefaultsPopulateSelection(t *testing.T) {
	m := newPanel(t, testutil.NewFakeTransport())

	require.Len(t, m.Files, 2)
	assert.True(t, m.Files[0].Selected)
	assert.True(t, m.Files[1].Selected)
	assert.Equal(t, "E", m.ErrorLog.Value())
	assert.False(t, m.Loading)

	m, _ = press(m, runeMsg("j"))
	m, _ = press(m, keyMsg(tea.KeySpace))
	assert.Equal(t, []string{"a.ts"}, m.Selection().Files)

	m, _ = press(m, runeMsg("k"))
	assert.Equal(t, 0, m.Cursor)
}

func TestDefaultsKeepTypedErrorLog(t *testing.T) {
	m := NewModel(context.Background(), nil, nil)
	m.ErrorLog.SetValue("typed")

	next, _ := m.Update(DefaultsLoadedMsg{Defaults: builder.Defaults{ErrorLog: "collected"}})
	assert.Equal(t, "typed", next.(Model).ErrorLog.Value())
}

func TestDiagnoseAnswerFlow(t *testing.T) {
	ft := testutil.NewFakeTransport(testutil.FollowUp("which node version?"), testutil.Fixed("stale lockfile"))
	m := newPanel(t, ft)
	m.Summary.SetValue("S")

	m, cmd := press(m, keyMsg(tea.KeyCtrlS))
	assert.True(t, m.Busy)
	m = settle(t, m, cmd)

	assert.False(t, m.Busy)
	assert.Equal(t, session.StateAwaitingAnswer, m.Outcome.State)
	assert.Equal(t, engine.AffordAnswer, m.Outcome.Affordance)
	assert.Equal(t, FocusAnswer, m.Focus)
	assert.Contains(t, m.Viewport.View(), "which node version?")

	m.Answer.SetValue("node 20")
	m, cmd = press(m, keyMsg(tea.KeyEnter))
	m = settle(t, m, cmd)

	assert.Equal(t, session.StateIdle, m.Outcome.State)
	assert.Equal(t, 1, m.Outcome.FollowUps)
	require.NotNil(t, m.Outcome.Result)
	assert.Equal(t, "stale lockfile", m.Outcome.Result.RootCause)
	assert.Equal(t, FocusFiles, m.Focus)

	calls := ft.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"a.ts", "b.ts"}, calls[0].Filenames())
	assert.Equal(t, "E", calls[0].ErrorLog)
	assert.Equal(t, "S\n\nnode 20", calls[1].Summary)
}

func TestBlankAnswerNotSent(t *testing.T) {
	ft := testutil.NewFakeTransport(testutil.FollowUp("why?"))
	m := newPanel(t, ft)

	m, cmd := press(m, keyMsg(tea.KeyCtrlS))
	m = settle(t, m, cmd)

	m.Answer.SetValue("   ")
	m, cmd = press(m, keyMsg(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.Equal(t, engine.ErrEmptyAnswer.Error(), m.Notice)
	assert.Equal(t, 1, ft.CallCount())
}

func TestEscalateAfterBudget(t *testing.T) {
	ft := testutil.NewFakeTransport(testutil.FollowUp("why?"))
	m := newPanel(t, ft, engine.WithMaxFollowUps(1))

	m, cmd := press(m, keyMsg(tea.KeyCtrlS))
	m = settle(t, m, cmd)
	m.Answer.SetValue("because")
	m, cmd = press(m, keyMsg(tea.KeyEnter))
	m = settle(t, m, cmd)

	assert.Equal(t, engine.AffordEscalate, m.Outcome.Affordance)
	assert.Contains(t, m.Viewport.View(), "Follow-up limit reached")
	assert.NotEqual(t, FocusAnswer, m.Focus)

	m, cmd = press(m, keyMsg(tea.KeyCtrlE))
	m = settle(t, m, cmd)

	assert.Equal(t, session.StateEscalated, m.Outcome.State)
	assert.Equal(t, engine.EscalationMessage, m.Outcome.Escalation)
	assert.Equal(t, 2, ft.CallCount())
}

func TestEscalateWithoutSession(t *testing.T) {
	m := newPanel(t, testutil.NewFakeTransport())

	m, cmd := press(m, keyMsg(tea.KeyCtrlE))
	assert.Nil(t, cmd)
	assert.Equal(t, engine.ErrNotAwaitingAnswer.Error(), m.Notice)
}

func TestFailureOffersRetry(t *testing.T) {
	ft := testutil.NewFakeTransport(
		testutil.Reply{Err: errors.New("connection refused")},
		testutil.Fixed("missing export"),
	)
	m := newPanel(t, ft)

	m, cmd := press(m, keyMsg(tea.KeyCtrlS))
	m = settle(t, m, cmd)

	require.NotNil(t, m.Outcome.Failure)
	assert.Equal(t, engine.KindTransport, m.Outcome.Failure.Kind)
	assert.Equal(t, session.StateIdle, m.Outcome.State)
	assert.Contains(t, m.Notice, "ctrl+r retry")
	assert.Contains(t, m.View(), "ctrl+r retry")

	m, cmd = press(m, keyMsg(tea.KeyCtrlR))
	m = settle(t, m, cmd)

	assert.Nil(t, m.Outcome.Failure)
	assert.Empty(t, m.Notice)
	require.NotNil(t, m.Outcome.Result)
	assert.Equal(t, "missing export", m.Outcome.Result.RootCause)
	assert.Equal(t, 2, ft.CallCount())
}

func TestRetryResendsAnswer(t *testing.T) {
	ft := testutil.NewFakeTransport(
		testutil.FollowUp("why?"),
		testutil.Reply{Err: errors.New("connection reset")},
		testutil.Fixed("done"),
	)
	m := newPanel(t, ft)

	m, cmd := press(m, keyMsg(tea.KeyCtrlS))
	m = settle(t, m, cmd)
	m.Answer.SetValue("first answer")
	m, cmd = press(m, keyMsg(tea.KeyEnter))
	m = settle(t, m, cmd)

	assert.Equal(t, session.StateAwaitingAnswer, m.Outcome.State)
	assert.Equal(t, 0, m.Outcome.FollowUps)
	assert.Equal(t, "first answer", m.Answer.Value(), "answer kept for editing")

	m, cmd = press(m, keyMsg(tea.KeyCtrlR))
	m = settle(t, m, cmd)

	assert.Equal(t, session.StateIdle, m.Outcome.State)
	assert.Equal(t, 1, m.Outcome.FollowUps)
	calls := ft.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, calls[1].Summary, calls[2].Summary)
}

func TestCancelFirstDiagnose(t *testing.T) {
	ft := testutil.NewFakeTransport(testutil.Reply{Block: true})
	ft.Started = make(chan struct{}, 1)
	m := newPanel(t, ft)

	m, cmd := press(m, keyMsg(tea.KeyCtrlS))
	msgs := make(chan []tea.Msg, 1)
	go func() { msgs <- run(cmd) }()

	select {
	case <-ft.Started:
	case <-time.After(5 * time.Second):
		t.Fatal("call never started")
	}

	m, cancelCmd := press(m, keyMsg(tea.KeyEsc))
	assert.Nil(t, cancelCmd)

	var out OutcomeMsg
	select {
	case got := <-msgs:
		for _, msg := range got {
			if o, ok := msg.(OutcomeMsg); ok {
				out = o
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("call was not canceled")
	}

	next, _ := m.Update(out)
	m = next.(Model)
	require.NotNil(t, m.Outcome.Failure)
	assert.Equal(t, engine.KindCanceled, m.Outcome.Failure.Kind)
	assert.Equal(t, session.StateIdle, m.Outcome.State)
	assert.False(t, m.Busy)
}

func TestDiagnoseWhileBusyRejected(t *testing.T) {
	m := newPanel(t, testutil.NewFakeTransport())
	m.Busy = true

	m, cmd := press(m, keyMsg(tea.KeyCtrlS))
	assert.Nil(t, cmd)
	assert.Equal(t, engine.ErrCallInFlight.Error(), m.Notice)
}

func TestSkippedFilesWarn(t *testing.T) {
	ft := testutil.NewFakeTransport(testutil.Fixed("ok"))
	m := newPanel(t, ft)
	m.Files = append(m.Files, FileItem{Path: "gone.ts", Selected: true})

	m, cmd := press(m, keyMsg(tea.KeyCtrlS))
	m = settle(t, m, cmd)

	require.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], "gone.ts")
	assert.Equal(t, []string{"a.ts", "b.ts"}, ft.Calls()[0].Filenames())
}

func TestFocusCycle(t *testing.T) {
	m := newPanel(t, testutil.NewFakeTransport())

	m, _ = press(m, keyMsg(tea.KeyTab))
	assert.Equal(t, FocusErrorLog, m.Focus)
	m, _ = press(m, keyMsg(tea.KeyTab))
	assert.Equal(t, FocusSummary, m.Focus)
	m, _ = press(m, keyMsg(tea.KeyTab))
	assert.Equal(t, FocusFiles, m.Focus, "answer is unreachable without a question")
	m, _ = press(m, keyMsg(tea.KeyShiftTab))
	assert.Equal(t, FocusSummary, m.Focus)
}

func TestRenderOutcome(t *testing.T) {
	conf := 0.95
	out := engine.Outcome{
		State: session.StateIdle,
		Result: &payload.Result{
			RootCause:  "circular import",
			Confidence: &conf,
			Patches:    []string{"--- a/x.py\n+++ b/x.py\n@@ -1 +1 @@\n-import y\n+# removed"},
		},
	}
	got := renderOutcome(out, 3)
	assert.Contains(t, got, "circular import")
	assert.Contains(t, got, "confidence 0.95")
	assert.Contains(t, got, "Patch 1")
	assert.Contains(t, got, "-import y")
	assert.Contains(t, got, "+# removed")

	waiting := renderOutcome(engine.Outcome{
		State:      session.StateAwaitingAnswer,
		Affordance: engine.AffordAnswer,
		FollowUps:  1,
		Question:   "why?",
	}, 3)
	assert.Contains(t, waiting, "Follow-up 2/3:")
	assert.Contains(t, waiting, "why?")
}

func TestRunFallback(t *testing.T) {
	var buf bytes.Buffer
	err := runFallback(&buf)
	assert.ErrorIs(t, err, ErrNotInteractive)
	assert.Contains(t, buf.String(), "triage diagnose")
}
