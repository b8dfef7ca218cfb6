// Package collect runs the project's tests and extracts failing cases from
// the JSON report they write.
package collect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/itchyny/gojq"
	"github.com/rs/zerolog/log"

	"github.com/berth-dev/triage/internal/builder"
)

// DefaultTimeout bounds one test run.
const DefaultTimeout = 5 * time.Minute

// Options configures a Runner.
type Options struct {
	// Command is the shell command that runs the tests and writes the report.
	Command string
	// ReportPath is where Command writes its JSON report, relative to the project root.
	ReportPath string
	// Query is a jq expression yielding one object per failure with
	// title, file, and failureMessages keys.
	Query string
	// Timeout bounds the test run. Zero uses DefaultTimeout.
	Timeout time.Duration
	// Output receives the test command's combined output. Nil discards it.
	Output io.Writer
}

// Runner collects test failures for one project.
type Runner struct {
	dir  string
	opts Options
	code *gojq.Code
}

// New compiles the failure query and returns a Runner rooted at dir.
func New(dir string, opts Options) (*Runner, error) {
	code, err := CompileQuery(opts.Query)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Runner{dir: dir, opts: opts, code: code}, nil
}

// CompileQuery parses and compiles a jq failure query.
func CompileQuery(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("parse failure query: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile failure query: %w", err)
	}
	return code, nil
}

// CollectFailures implements builder.FailureCollector. Any error yields an
// empty list; the cause is logged.
func (r *Runner) CollectFailures(ctx context.Context) []builder.FailureRecord {
	failures, err := r.Collect(ctx)
	if err != nil {
		log.Warn().Err(err).Str("command", r.opts.Command).Msg("collect test failures")
		return []builder.FailureRecord{}
	}
	return failures
}

// Collect runs the test command, ignoring its exit status, then reads the
// report and extracts failures.
func (r *Runner) Collect(ctx context.Context) ([]builder.FailureRecord, error) {
	reportPath := r.reportPath()
	if err := os.Remove(reportPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(reportPath), 0755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	output, runErr := r.runTests(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("run tests: %w", ctxErr)
	}
	if runErr != nil {
		// Failing tests exit non-zero.
		log.Debug().Err(runErr).Int("output_bytes", len(output)).Msg("test command exited with error")
	}

	report, err := os.ReadFile(reportPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []builder.FailureRecord{}, nil
		}
		return nil, fmt.Errorf("read test report: %w", err)
	}

	return ExtractFailures(r.code, report, r.dir)
}

func (r *Runner) reportPath() string {
	if filepath.IsAbs(r.opts.ReportPath) {
		return r.opts.ReportPath
	}
	return filepath.Join(r.dir, r.opts.ReportPath)
}

// runTests executes the command through the shell with node_modules/.bin on
// PATH, as package manager scripts see it.
func (r *Runner) runTests(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", r.opts.Command)
	cmd.Dir = r.dir
	cmd.WaitDelay = 2 * time.Second
	cmd.Env = append(os.Environ(),
		"PATH="+filepath.Join(r.dir, "node_modules", ".bin")+string(os.PathListSeparator)+os.Getenv("PATH"),
		"CI=1",
	)

	var buf bytes.Buffer
	if r.opts.Output != nil {
		cmd.Stdout = io.MultiWriter(&buf, r.opts.Output)
		cmd.Stderr = io.MultiWriter(&buf, r.opts.Output)
	} else {
		cmd.Stdout = &buf
		cmd.Stderr = &buf
	}

	err := cmd.Run()
	return buf.String(), err
}

// ExtractFailures runs code over a JSON report and decodes each result into
// a FailureRecord. Absolute file paths under root are made root-relative.
func ExtractFailures(code *gojq.Code, report []byte, root string) ([]builder.FailureRecord, error) {
	var data interface{}
	if err := json.Unmarshal(report, &data); err != nil {
		return nil, fmt.Errorf("parse test report: %w", err)
	}

	failures := []builder.FailureRecord{}
	iter := code.Run(data)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("run failure query: %w", err)
		}

		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal query result: %w", err)
		}
		var rec builder.FailureRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode failure record: %w", err)
		}
		rec.File = relativize(root, rec.File)
		failures = append(failures, rec)
	}
	return failures, nil
}

func relativize(root, file string) string {
	if file == "" || !filepath.IsAbs(file) || root == "" {
		return filepath.ToSlash(file)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return filepath.ToSlash(file)
	}
	rel, err := filepath.Rel(absRoot, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}
