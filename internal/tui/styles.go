package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/berth-dev/triage/internal/diffview"
	"github.com/berth-dev/triage/internal/session"
)

const (
	primaryColor   = "#7C3AED" // Purple
	secondaryColor = "#10B981" // Green
	warningColor   = "#F59E0B" // Amber
	errorColor     = "#EF4444" // Red
	dimColor       = "#6B7280" // Gray
	infoColor      = "#3B82F6" // Blue
)

// Style variables for consistent panel rendering.
var (
	// BoxStyle provides a rounded border box with primary color.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(primaryColor)).
			Padding(0, 1)

	// FocusedBoxStyle marks the section that receives key input.
	FocusedBoxStyle = BoxStyle.
			BorderForeground(lipgloss.Color(secondaryColor))

	// TitleStyle renders titles in primary color with bold.
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true)

	// SelectedStyle highlights the item under the cursor.
	SelectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true)

	// DimStyle renders dim/muted text.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(dimColor))

	// SuccessStyle renders success messages in green.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(secondaryColor))

	// ErrorStyle renders error messages in red.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(errorColor))

	// WarningStyle renders warning messages in amber.
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(warningColor))

	// StatusBarStyle provides styling for the status bar.
	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#1F2937")).
			Foreground(lipgloss.Color("#9CA3AF")).
			Padding(0, 1)

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	hunkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(infoColor))
)

// File selection markers.
var (
	FileChecked   = SuccessStyle.Render("[x]")
	FileUnchecked = DimStyle.Render("[ ]")
)

// StateBadge renders a session state as a coloured label.
func StateBadge(s session.State) string {
	color := dimColor
	switch s {
	case session.StateDiagnosing:
		color = warningColor
	case session.StateAwaitingAnswer:
		color = infoColor
	case session.StateEscalated:
		color = errorColor
	case session.StateIdle:
		color = secondaryColor
	}
	return badgeStyle.Background(lipgloss.Color(color)).Render(string(s))
}

// RenderPatch colours a unified diff line by line.
func RenderPatch(patch string) string {
	lines := diffview.Classify(patch)
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		switch l.Kind {
		case diffview.KindHeader:
			out = append(out, TitleStyle.Render(l.Text))
		case diffview.KindHunk:
			out = append(out, hunkStyle.Render(l.Text))
		case diffview.KindAdded:
			out = append(out, SuccessStyle.Render(l.Text))
		case diffview.KindRemoved:
			out = append(out, ErrorStyle.Render(l.Text))
		default:
			out = append(out, l.Text)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, out...)
}
