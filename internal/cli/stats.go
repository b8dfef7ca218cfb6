// stats.go implements "triage stats", a summary of the call metrics ledger.
package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recorded diagnosis calls",
	RunE:  runStats,
}

// ErrMetricsDisabled is returned when the ledger is turned off in config.
var ErrMetricsDisabled = errors.New("metrics are disabled; set metrics.enabled in .triage/config.yaml")

func runStats(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.metrics == nil {
		return ErrMetricsDisabled
	}
	summaries, err := a.metrics.Summaries(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading metrics: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No calls recorded yet.")
		return nil
	}

	fmt.Fprintf(out, "%-8s  %6s  %8s  %9s  %10s  %10s  %8s\n",
		"SOURCE", "CALLS", "FAILURES", "FOLLOWUPS", "AVG MS", "AVG CONF", "TOKENS")
	for _, s := range summaries {
		failures := fmt.Sprintf("%8d", s.Failures)
		if s.Failures > 0 {
			failures = color.RedString(failures)
		}
		fmt.Fprintf(out, "%-8s  %6d  %s  %9d  %10.0f  %10.2f  %8d\n",
			s.Source, s.Calls, failures, s.FollowUps, s.AvgDurationMs, s.AvgConfidence, s.TotalTokens)
	}
	return nil
}
