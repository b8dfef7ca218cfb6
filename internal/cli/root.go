// Package cli defines Cobra command definitions for the triage CLI.
// This file contains the root command, global flags, and the panel launcher.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/berth-dev/triage/internal/builder"
	"github.com/berth-dev/triage/internal/tui"
)

var (
	projectDir string
	verbose    bool
	debug      bool
	version    = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Diagnose failing changes with a remote diagnosis service",
	Long: `Triage bundles the files you changed, the error log, and a summary of
the change, sends them to a diagnosis service, and walks you through up to
three follow-up questions before handing off to a human.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runPanel,
}

// Execute runs the root command. Called from main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", "", "Project root (default: current directory)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log at info level")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statsCmd)
}

// runPanel opens the interactive panel when a terminal is attached and
// prints help otherwise.
func runPanel(cmd *cobra.Command, _ []string) error {
	if !tui.IsTTY() {
		return cmd.Help()
	}

	a, err := loadApp(cmd, appOptions{logToFile: true})
	if err != nil {
		return err
	}
	defer a.Close()

	eng, err := a.newEngine(a.newBuilder())
	if err != nil {
		return err
	}

	model := tui.NewModel(cmd.Context(), eng, func(ctx context.Context) builder.Defaults {
		return a.resolveDefaults(ctx, true, io.Discard)
	})
	return tui.Run(model)
}
