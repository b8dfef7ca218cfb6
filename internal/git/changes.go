// Package git wraps the Git operations used by triage.
// This file lists changed files and reads the current branch.
package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	ErrGitNotFound = errors.New("git not found in PATH")
	ErrNotARepo    = errors.New("not a git repository")
)

// ensureGit checks that git is available in PATH.
func ensureGit() error {
	_, err := exec.LookPath("git")
	if err != nil {
		return ErrGitNotFound
	}
	return nil
}

// run executes git with args in dir and returns trimmed stdout.
func run(ctx context.Context, dir string, args ...string) (string, error) {
	if err := ensureGit(); err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && strings.Contains(string(exitErr.Stderr), "not a git repository") {
			return "", ErrNotARepo
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// ChangedFiles returns the paths under dir that differ from HEAD, relative
// to dir. Changes outside dir are omitted when dir is a subdirectory.
// Shells out to: git diff --name-only --relative HEAD
func ChangedFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := run(ctx, dir, "diff", "--name-only", "--relative", "HEAD")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, filepath.ToSlash(line))
		}
	}
	return files, nil
}

// CurrentBranch returns the name of the current git branch.
// Shells out to: git rev-parse --abbrev-ref HEAD
func CurrentBranch(ctx context.Context, dir string) (string, error) {
	return run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
}

// Lister reports changed files for one project directory.
type Lister struct {
	Dir string
}

// NewLister creates a Lister rooted at dir.
func NewLister(dir string) *Lister {
	return &Lister{Dir: dir}
}

// ListChangedFiles returns the changed paths, or an empty list when git is
// missing, dir is not a repository, or HEAD does not exist yet.
func (l *Lister) ListChangedFiles(ctx context.Context) []string {
	files, err := ChangedFiles(ctx, l.Dir)
	if err != nil {
		log.Debug().Err(err).Str("dir", l.Dir).Msg("git diff unavailable; no changed files")
		return []string{}
	}
	if files == nil {
		return []string{}
	}
	return files
}
