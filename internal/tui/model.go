package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/berth-dev/triage/internal/builder"
	"github.com/berth-dev/triage/internal/engine"
)

// Engine is the part of the session engine the panel drives.
type Engine interface {
	Diagnose(ctx context.Context, sel builder.Selection) (engine.Outcome, error)
	Answer(ctx context.Context, id, text string) (engine.Outcome, error)
	Escalate(id string) (engine.Outcome, error)
	Cancel(id string) error
	MaxFollowUps() int
}

// DefaultsFunc resolves the default selection offered when the panel opens.
type DefaultsFunc func(ctx context.Context) builder.Defaults

// Focus identifies the section that receives key input.
type Focus int

const (
	FocusFiles Focus = iota
	FocusErrorLog
	FocusSummary
	FocusAnswer
)

// FileItem is one candidate file with its selection toggle.
type FileItem struct {
	Path     string
	Selected bool
}

// pendingCall describes the call in flight so it can be cancelled and retried.
type pendingCall struct {
	sessionID string // empty for a first diagnose, whose session id is not known yet
	answer    string
	cancel    context.CancelFunc
}

// Model is the panel state. Authoritative session state lives in the engine;
// Outcome is the last projection it returned.
type Model struct {
	eng      Engine
	defaults DefaultsFunc
	ctx      context.Context
	keys     KeyMap

	// Selection
	Files    []FileItem
	Cursor   int
	Failures int

	// Inputs
	Focus    Focus
	ErrorLog textarea.Model
	Summary  textarea.Model
	Answer   textinput.Model

	// Session projection
	Outcome    engine.Outcome
	HasOutcome bool
	Busy       bool
	Loading    bool
	Notice     string
	Warnings   []string

	inFlight      *pendingCall
	lastSelection builder.Selection
	lastAnswer    string

	// Components
	Spinner  spinner.Model
	Viewport viewport.Model

	// Terminal dimensions
	Width  int
	Height int
}

// NewModel creates a panel over eng. defaults may be nil, in which case the
// panel opens with an empty selection.
func NewModel(ctx context.Context, eng Engine, defaults DefaultsFunc) Model {
	errorLog := textarea.New()
	errorLog.Placeholder = "Paste the error log (defaults to collected test failures)..."
	errorLog.ShowLineNumbers = false
	errorLog.CharLimit = 0
	errorLog.SetHeight(5)

	summary := textarea.New()
	summary.Placeholder = "Summarize what changed..."
	summary.ShowLineNumbers = false
	summary.CharLimit = 5000
	summary.SetHeight(3)

	answer := textinput.New()
	answer.Placeholder = "Answer the follow-up question..."
	answer.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(primaryColor))

	m := Model{
		eng:      eng,
		defaults: defaults,
		ctx:      ctx,
		keys:     DefaultKeyMap,
		Focus:    FocusFiles,
		ErrorLog: errorLog,
		Summary:  summary,
		Answer:   answer,
		Spinner:  sp,
		Viewport: viewport.New(80, 10),
		Loading:  defaults != nil,
		Width:    80,
		Height:   24,
	}
	m.resize(m.Width, m.Height)
	return m
}

// Selection returns the user's current diagnose input.
func (m Model) Selection() builder.Selection {
	var files []string
	for _, f := range m.Files {
		if f.Selected {
			files = append(files, f.Path)
		}
	}
	return builder.Selection{
		Files:    files,
		ErrorLog: m.ErrorLog.Value(),
		Summary:  m.Summary.Value(),
	}
}

func (m *Model) resize(width, height int) {
	m.Width, m.Height = width, height
	inner := width - 6
	if inner < 20 {
		inner = 20
	}
	m.ErrorLog.SetWidth(inner)
	m.Summary.SetWidth(inner)
	m.Answer.Width = inner - 4

	// Reserve space for the selection, inputs, answer line, and status bar.
	vpHeight := height - len(m.Files) - 22
	if vpHeight < 5 {
		vpHeight = 5
	}
	m.Viewport.Width = inner
	m.Viewport.Height = vpHeight
}
