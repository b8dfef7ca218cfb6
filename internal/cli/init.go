// init.go implements the "triage init" command.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/berth-dev/triage/internal/config"
	"github.com/berth-dev/triage/internal/detect"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize triage in the current project",
	Long: `Write .triage/config.yaml with defaults and keep triage's runtime
files out of version control. Detects the test runner used to collect
failing tests.`,
	RunE: runInit,
}

var (
	forceFlag   bool
	backendFlag string
)

func init() {
	initCmd.Flags().BoolVar(&forceFlag, "force", false, "Overwrite an existing configuration without asking")
	initCmd.Flags().StringVar(&backendFlag, "backend", "", "Diagnosis service URL")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := resolveRoot()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if _, statErr := os.Stat(filepath.Join(dir, ".triage", "config.yaml")); statErr == nil && !forceFlag {
		fmt.Fprintln(out, "Warning: .triage/config.yaml already exists.")
		fmt.Fprint(out, "Overwrite? [y/N]: ")
		reader := bufio.NewReader(cmd.InOrStdin())
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if backendFlag != "" {
		cfg.Backend.URL = backendFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	stack := detect.DetectStack(dir)
	if stack.Language == "" {
		cfg.Collect.Enabled = false
	}

	if err := config.WriteConfig(dir, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := ensureGitignore(dir); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to set up .gitignore: %v\n", err)
	}

	fmt.Fprintln(out, "Wrote .triage/config.yaml")
	fmt.Fprintf(out, "Backend: %s\n", cfg.Backend.URL)
	switch {
	case stack.Language == "":
		fmt.Fprintln(out, "No package.json found; test failure collection is disabled.")
	case stack.Runner == "":
		fmt.Fprintf(out, "Tests: no vitest or jest runner detected; will try: %s\n",
			detect.TestCommand(dir, cfg.Collect.ReportPath))
	default:
		fmt.Fprintf(out, "Tests: %s (%s)\n", detect.TestCommand(dir, cfg.Collect.ReportPath), stack.Runner)
	}
	return nil
}

// ensureGitignore appends triage's runtime files to .gitignore, skipping
// entries that are already present. config.yaml is meant to be committed.
// ignoredPaths are local files triage writes that must stay out of commits.
var ignoredPaths = []string{
	".env",
	".triage/log.jsonl",
	".triage/triage.log",
	".triage/metrics.db",
	".triage/test-report.json",
}

func ensureGitignore(dir string) error {
	path := filepath.Join(dir, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading .gitignore: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	var missing []string
	for _, entry := range ignoredPaths {
		if !slices.Contains(lines, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	block := strings.Join(missing, "\n") + "\n"
	if len(data) > 0 {
		block = "\n# Added by triage init\n" + block
		if data[len(data)-1] != '\n' {
			block = "\n" + block
		}
	}
	return os.WriteFile(path, append(data, block...), 0644)
}
