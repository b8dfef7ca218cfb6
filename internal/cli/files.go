// files.go implements "triage files", which prints the default selection.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/berth-dev/triage/internal/git"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Show the default file selection",
	Long: `List the files a diagnosis would include by default: files changed
since the last commit plus files with failing tests.`,
	RunE: runFiles,
}

var filesNoCollect bool

func init() {
	filesCmd.Flags().BoolVar(&filesNoCollect, "no-collect", false, "Do not run the tests to collect failures")
}

func runFiles(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, appOptions{noMetrics: true})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	// Best-effort: the selection works outside a repository too.
	if branch, err := git.CurrentBranch(cmd.Context(), a.root); err == nil && branch != "" {
		fmt.Fprintf(out, "Branch: %s\n", branch)
	}

	defaults := a.resolveDefaults(cmd.Context(), !filesNoCollect, cmd.ErrOrStderr())
	if len(defaults.Files) == 0 {
		fmt.Fprintln(out, "No changed or failing files.")
	}
	for _, f := range defaults.Files {
		fmt.Fprintf(out, "  %s\n", f)
	}

	if n := len(defaults.Failures); n > 0 {
		fmt.Fprintf(out, "\n%s\n", color.RedString("%d failing test(s)", n))
		for _, f := range defaults.Failures {
			fmt.Fprintf(out, "  %s %s %s\n", color.RedString("✗"), f.Title, color.HiBlackString(f.File))
		}
	}
	return nil
}
