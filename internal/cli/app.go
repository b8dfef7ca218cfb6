// app.go wires configuration, logging, the journal, and the metrics ledger
// into the engine shared by every command.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/berth-dev/triage/internal/backend"
	"github.com/berth-dev/triage/internal/builder"
	"github.com/berth-dev/triage/internal/collect"
	"github.com/berth-dev/triage/internal/config"
	"github.com/berth-dev/triage/internal/detect"
	"github.com/berth-dev/triage/internal/engine"
	"github.com/berth-dev/triage/internal/git"
	journal "github.com/berth-dev/triage/internal/log"
	"github.com/berth-dev/triage/internal/logging"
	"github.com/berth-dev/triage/internal/metrics"
	"github.com/berth-dev/triage/internal/session"
)

// panelLogFile receives operational logs while the panel owns the terminal.
const panelLogFile = "triage.log"

type appOptions struct {
	logToFile bool
	noMetrics bool
}

// app is the per-invocation wiring.
type app struct {
	root    string
	cfg     *config.Config
	journal *journal.Logger
	metrics *metrics.Store
	client  *backend.Client
	closers []io.Closer
}

// resolveRoot returns the --dir flag or the working directory.
func resolveRoot() (string, error) {
	if projectDir != "" {
		abs, err := filepath.Abs(projectDir)
		if err != nil {
			return "", fmt.Errorf("resolving --dir: %w", err)
		}
		return abs, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return dir, nil
}

func loadApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	a := &app{root: root, cfg: cfg}
	if err := a.setupLogging(cmd.ErrOrStderr(), opts.logToFile); err != nil {
		return nil, err
	}

	a.journal, err = journal.NewLogger(root)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	if cfg.Metrics.Enabled && !opts.noMetrics {
		path := config.Path(root, cfg.Metrics.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating metrics directory: %w", err)
		}
		store, err := metrics.NewStore(path)
		if err != nil {
			// The ledger is optional; diagnosis works without it.
			log.Warn().Err(err).Str("path", path).Msg("metrics ledger unavailable")
		} else {
			a.metrics = store
			a.closers = append(a.closers, store)
		}
	}

	a.client = backend.NewClient(cfg.Backend.URL)
	log.Debug().
		Str("root", root).
		Str("backend", cfg.Backend.URL).
		Dur("timeout", cfg.CallTimeout()).
		Msg("triage configured")
	return a, nil
}

func (a *app) setupLogging(stderr io.Writer, toFile bool) error {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(a.cfg.Log.Level)
	lc.Pretty = a.cfg.Log.Pretty
	lc.Output = stderr
	switch {
	case debug:
		lc.Level = zerolog.DebugLevel
	case verbose:
		lc.Level = zerolog.InfoLevel
	}

	if toFile {
		dir := filepath.Join(a.root, ".triage")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating .triage directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(dir, panelLogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		lc.Output = f
		lc.Pretty = false
		a.closers = append(a.closers, f)
	}

	logging.Init(lc)
	return nil
}

// Close releases the metrics ledger and log file.
func (a *app) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newBuilder reads files relative to the project root only.
func (a *app) newBuilder() *builder.Builder {
	return builder.New(afero.NewBasePathFs(afero.NewOsFs(), a.root))
}

func (a *app) newEngine(b *builder.Builder) (*engine.Engine, error) {
	policy, err := engine.ParseTimeoutPolicy(a.cfg.Backend.TimeoutPolicy)
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithMaxFollowUps(a.cfg.Session.MaxFollowUps),
		engine.WithTimeout(a.cfg.CallTimeout()),
		engine.WithTimeoutPolicy(policy),
		engine.WithJournal(a.journal),
	}
	if a.metrics != nil {
		opts = append(opts, engine.WithRecorder(a.metrics))
	}
	return engine.New(session.NewStore(), b, a.client, opts...), nil
}

// newCollector returns nil when collection is disabled or the failure
// query does not compile.
func (a *app) newCollector(output io.Writer) *collect.Runner {
	if !a.cfg.Collect.Enabled {
		return nil
	}
	command := a.cfg.Collect.TestCommand
	if command == "" {
		command = detect.TestCommand(a.root, a.cfg.Collect.ReportPath)
	}
	query := a.cfg.Collect.Query
	if query == "" {
		query = config.DefaultFailureQuery
	}
	runner, err := collect.New(a.root, collect.Options{
		Command:    command,
		ReportPath: a.cfg.Collect.ReportPath,
		Query:      query,
		Output:     output,
	})
	if err != nil {
		log.Warn().Err(err).Msg("test failure collection disabled")
		return nil
	}
	return runner
}

// resolveDefaults computes the default selection from git and, when
// withTests is set, the project's failing tests.
func (a *app) resolveDefaults(ctx context.Context, withTests bool, testOutput io.Writer) builder.Defaults {
	var collector builder.FailureCollector
	if withTests {
		if runner := a.newCollector(testOutput); runner != nil {
			collector = runner
		}
	}
	return builder.ResolveDefaults(ctx, git.NewLister(a.root), collector, a.cfg.Collect.Exclude)
}
