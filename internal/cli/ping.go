// ping.go implements "triage ping", a backend health check.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the diagnosis service is reachable",
	RunE:  runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd, appOptions{noMetrics: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	start := time.Now()
	if err := a.client.Health(ctx); err != nil {
		return fmt.Errorf("%s: %w", a.client.BaseURL(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
		color.GreenString("✓"),
		a.client.BaseURL(),
		color.HiBlackString("(%s)", time.Since(start).Round(time.Millisecond)))
	return nil
}
