package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/berth-dev/triage/internal/engine"
)

// View renders the panel.
func (m Model) View() string {
	var sections []string

	header := TitleStyle.Render("triage")
	if m.HasOutcome {
		header += "  " + StateBadge(m.Outcome.State) + "  " + DimStyle.Render(m.Outcome.SessionID)
	}
	sections = append(sections, header)

	sections = append(sections, m.box(FocusFiles, m.renderFiles()))
	sections = append(sections, m.box(FocusErrorLog, TitleStyle.Render("Error log")+"\n"+m.ErrorLog.View()))
	sections = append(sections, m.box(FocusSummary, TitleStyle.Render("Summary")+"\n"+m.Summary.View()))

	if m.Busy {
		sections = append(sections, m.Spinner.View()+" Diagnosing... "+DimStyle.Render("(esc to cancel)"))
	}
	if m.HasOutcome {
		sections = append(sections, BoxStyle.Render(m.Viewport.View()))
	}
	if m.HasOutcome && m.Outcome.Affordance == engine.AffordAnswer {
		sections = append(sections, m.box(FocusAnswer, m.Answer.View()))
	}

	for _, w := range m.Warnings {
		sections = append(sections, WarningStyle.Render("! "+w))
	}
	if m.Notice != "" {
		sections = append(sections, ErrorStyle.Render(m.Notice))
	}

	sections = append(sections, m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) box(f Focus, content string) string {
	if m.Focus == f {
		return FocusedBoxStyle.Render(content)
	}
	return BoxStyle.Render(content)
}

func (m Model) renderFiles() string {
	var b strings.Builder
	title := "Files"
	if m.Failures > 0 {
		title = fmt.Sprintf("Files (%d failing tests)", m.Failures)
	}
	b.WriteString(TitleStyle.Render(title))

	if m.Loading {
		b.WriteString("\n" + m.Spinner.View() + " Collecting changed files and test failures...")
		return b.String()
	}
	if len(m.Files) == 0 {
		b.WriteString("\n" + DimStyle.Render("No changed or failing files found."))
		return b.String()
	}

	for i, f := range m.Files {
		marker := FileUnchecked
		if f.Selected {
			marker = FileChecked
		}
		line := marker + " " + f.Path
		if i == m.Cursor && m.Focus == FocusFiles {
			line = SelectedStyle.Render("> ") + marker + " " + SelectedStyle.Render(f.Path)
		} else {
			line = "  " + line
		}
		b.WriteString("\n" + line)
	}
	return b.String()
}

// renderOutcome renders the session projection shown in the result viewport.
func renderOutcome(out engine.Outcome, maxFollowUps int) string {
	var b strings.Builder

	if out.Escalation != "" {
		b.WriteString(WarningStyle.Render(out.Escalation) + "\n\n")
	}

	if r := out.Result; r != nil {
		if r.RootCause != "" {
			b.WriteString(TitleStyle.Render("Root cause") + "\n" + r.RootCause + "\n")
		}
		if r.Confidence != nil {
			b.WriteString(DimStyle.Render(fmt.Sprintf("confidence %.2f", *r.Confidence)) + "\n")
		}
		for i, p := range r.Patches {
			b.WriteString("\n" + TitleStyle.Render(fmt.Sprintf("Patch %d", i+1)) + "\n")
			b.WriteString(RenderPatch(p) + "\n")
		}
		if r.AgentBlock != "" {
			b.WriteString("\n" + DimStyle.Render(r.AgentBlock) + "\n")
		}
	}

	switch out.Affordance {
	case engine.AffordAnswer:
		b.WriteString(fmt.Sprintf("\n%s %s\n",
			TitleStyle.Render(fmt.Sprintf("Follow-up %d/%d:", out.FollowUps+1, maxFollowUps)),
			out.Question))
	case engine.AffordEscalate:
		b.WriteString("\n" + out.Question + "\n")
		b.WriteString(WarningStyle.Render("Follow-up limit reached. Press ctrl+e to escalate.") + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderStatusBar() string {
	bindings := []key.Binding{m.keys.Tab, m.keys.Diagnose}
	if m.Focus == FocusFiles {
		bindings = append(bindings, m.keys.Toggle)
	}
	if m.HasOutcome && m.Outcome.Affordance == engine.AffordAnswer {
		bindings = append(bindings, m.keys.Submit)
	}
	if m.HasOutcome && m.Outcome.Failure != nil && slices.Contains(m.Outcome.Failure.Actions, engine.ActionRetry) {
		bindings = append(bindings, m.keys.Retry)
	}
	if m.HasOutcome && m.Outcome.Affordance != engine.AffordNone {
		bindings = append(bindings, m.keys.Escalate)
	}
	if m.Busy {
		bindings = append(bindings, m.keys.Cancel)
	}
	bindings = append(bindings, m.keys.Quit)

	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return StatusBarStyle.Render(strings.Join(parts, " · "))
}
