// diagnose.go implements "triage diagnose", the line-based session dialogue.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berth-dev/triage/internal/builder"
	"github.com/berth-dev/triage/internal/engine"
	"github.com/berth-dev/triage/internal/session"
	"github.com/berth-dev/triage/internal/ui"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose [files...]",
	Short: "Run a diagnosis session without the panel",
	Long: `Send the given files (or the default selection of changed and failing
files) with an error log and summary to the diagnosis service, then answer
follow-up questions on stdin. An empty answer escalates to a human.`,
	RunE: runDiagnose,
}

var (
	errorLogFlag     string
	errorLogFileFlag string
	summaryFlag      string
	noCollectFlag    bool
)

// ErrNothingToDiagnose is returned when neither files nor an error log are available.
var ErrNothingToDiagnose = errors.New("nothing to diagnose: no files selected and no error log")

func init() {
	diagnoseCmd.Flags().StringVar(&errorLogFlag, "error-log", "", "Error log text")
	diagnoseCmd.Flags().StringVar(&errorLogFileFlag, "error-log-file", "", "Read the error log from a file")
	diagnoseCmd.Flags().StringVar(&summaryFlag, "summary", "", "Summary of recent changes")
	diagnoseCmd.Flags().BoolVar(&noCollectFlag, "no-collect", false, "Do not run the tests to collect failures")
	diagnoseCmd.MarkFlagsMutuallyExclusive("error-log", "error-log-file")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	errorLog := errorLogFlag
	if errorLogFileFlag != "" {
		data, err := os.ReadFile(errorLogFileFlag)
		if err != nil {
			return fmt.Errorf("reading error log: %w", err)
		}
		errorLog = string(data)
	}

	b := a.newBuilder()
	files := args
	if len(files) == 0 || strings.TrimSpace(errorLog) == "" {
		defaults := a.resolveDefaults(cmd.Context(), !noCollectFlag, cmd.ErrOrStderr())
		if len(files) == 0 {
			files = defaults.Files
			if len(files) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Using %d default file(s): %s\n", len(files), strings.Join(files, ", "))
			}
		}
		b.SetFallbackErrorLog(defaults.ErrorLog)
	}
	if len(files) == 0 && strings.TrimSpace(errorLog) == "" && strings.TrimSpace(b.FallbackErrorLog()) == "" {
		return ErrNothingToDiagnose
	}

	eng, err := a.newEngine(b)
	if err != nil {
		return err
	}

	sel := builder.Selection{
		Files:    dedupe(files),
		ErrorLog: errorLog,
		Summary:  summaryFlag,
	}
	return runDialogue(cmd.Context(), eng, sel, cmd.InOrStdin(), cmd.OutOrStdout())
}

// sessionEngine is the part of the engine the dialogue drives.
type sessionEngine interface {
	Diagnose(ctx context.Context, sel builder.Selection) (engine.Outcome, error)
	Answer(ctx context.Context, id, text string) (engine.Outcome, error)
	Escalate(id string) (engine.Outcome, error)
	MaxFollowUps() int
}

// runDialogue drives one session to a resting point: a result, an
// escalation, or end of input.
func runDialogue(ctx context.Context, eng sessionEngine, sel builder.Selection, in io.Reader, out io.Writer) error {
	r := renderer{w: out}
	reader := bufio.NewReader(in)
	progress := ui.NewCallProgress(out)

	progress.Start(fmt.Sprintf("Diagnosing %d file(s)", len(sel.Files)))
	o, err := eng.Diagnose(ctx, sel)
	progress.Finish()
	r.skipped(o.Skipped)

	for {
		var failure *engine.Failure
		if err != nil && !errors.As(err, &failure) {
			return err
		}
		if failure != nil && o.State == session.StateIdle {
			return failure
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if failure != nil {
			r.failure(failure)
		}
		if failure == nil || o.State == session.StateEscalated {
			r.outcome(o, eng.MaxFollowUps())
		}

		switch o.Affordance {
		case engine.AffordAnswer:
			text, ok := prompt(reader, out, "Answer (empty line to escalate): ")
			if !ok {
				return nil
			}
			if text == "" {
				return escalate(eng, o.SessionID, r)
			}
			progress.Start("Sending answer")
			o, err = eng.Answer(ctx, o.SessionID, text)
			progress.Finish()

		case engine.AffordEscalate:
			text, ok := prompt(reader, out, "Escalate to a human teammate? [Y/n]: ")
			if !ok {
				return nil
			}
			if t := strings.ToLower(text); t != "" && t != "y" && t != "yes" {
				return nil
			}
			return escalate(eng, o.SessionID, r)

		default:
			return nil
		}
	}
}

func escalate(eng sessionEngine, id string, r renderer) error {
	o, err := eng.Escalate(id)
	if err != nil {
		return err
	}
	r.outcome(o, eng.MaxFollowUps())
	return nil
}

// prompt reads one trimmed line. ok is false at end of input.
func prompt(reader *bufio.Reader, out io.Writer, label string) (string, bool) {
	fmt.Fprint(out, label)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return "", false
	}
	return strings.TrimSpace(line), true
}

// dedupe drops repeated paths, keeping first occurrences in order.
func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
