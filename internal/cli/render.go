// render.go prints session outcomes for the line-based commands.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/berth-dev/triage/internal/builder"
	"github.com/berth-dev/triage/internal/diffview"
	"github.com/berth-dev/triage/internal/engine"
)

// renderer writes outcomes to w.
type renderer struct {
	w io.Writer
}

func (r renderer) skipped(files []*builder.FileReadError) {
	for _, s := range files {
		fmt.Fprintf(r.w, "%s %s\n", color.YellowString("warning:"), s.Error())
	}
}

func (r renderer) outcome(out engine.Outcome, maxFollowUps int) {
	if res := out.Result; res != nil {
		if res.RootCause != "" {
			fmt.Fprintf(r.w, "%s %s\n", color.New(color.Bold).Sprint("Root cause:"), res.RootCause)
		}
		if res.Confidence != nil {
			fmt.Fprintln(r.w, color.HiBlackString("confidence %.2f", *res.Confidence))
		}
		for i, p := range res.Patches {
			added, removed := diffview.Stats(p)
			fmt.Fprintf(r.w, "\n%s %s\n",
				color.New(color.Bold).Sprintf("Patch %d", i+1),
				color.HiBlackString("(%s)", patchSummary(p, added, removed)))
			r.patch(p)
		}
		if res.AgentBlock != "" {
			fmt.Fprintf(r.w, "\n%s\n", color.HiBlackString(res.AgentBlock))
		}
	}

	switch out.Affordance {
	case engine.AffordAnswer:
		fmt.Fprintf(r.w, "\n%s %s\n",
			color.CyanString("Follow-up %d/%d:", out.FollowUps+1, maxFollowUps),
			out.Question)
	case engine.AffordEscalate:
		fmt.Fprintf(r.w, "\n%s %s\n", color.CyanString("Follow-up:"), out.Question)
		fmt.Fprintln(r.w, color.YellowString("Follow-up limit reached."))
	}

	if out.Escalation != "" {
		fmt.Fprintf(r.w, "\n%s\n", color.YellowString(out.Escalation))
	}
}

func patchSummary(p string, added, removed int) string {
	files := diffview.Files(p)
	name := "patch"
	if len(files) > 0 {
		name = strings.Join(files, ", ")
	}
	return fmt.Sprintf("%s +%d -%d", name, added, removed)
}

func (r renderer) patch(p string) {
	for _, l := range diffview.Classify(p) {
		switch l.Kind {
		case diffview.KindHeader:
			fmt.Fprintln(r.w, color.New(color.Bold).Sprint(l.Text))
		case diffview.KindHunk:
			fmt.Fprintln(r.w, color.CyanString(l.Text))
		case diffview.KindAdded:
			fmt.Fprintln(r.w, color.GreenString(l.Text))
		case diffview.KindRemoved:
			fmt.Fprintln(r.w, color.RedString(l.Text))
		default:
			fmt.Fprintln(r.w, l.Text)
		}
	}
}

func (r renderer) failure(f *engine.Failure) {
	fmt.Fprintf(r.w, "%s %s\n", color.RedString("✗"), f.Error())
	if len(f.Actions) == 0 {
		return
	}
	actions := make([]string, 0, len(f.Actions))
	for _, a := range f.Actions {
		actions = append(actions, string(a))
	}
	fmt.Fprintln(r.w, color.HiBlackString("next: %s", strings.Join(actions, ", ")))
}
