// defaults.go resolves the default file selection and error log from the
// version-control diff lister and the test-failure collector.
package builder

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
)

// ChangedFileLister lists paths changed since the last commit, relative to
// the project root. Implementations return an empty list on any failure.
type ChangedFileLister interface {
	ListChangedFiles(ctx context.Context) []string
}

// FailureRecord is one failing test reported by a FailureCollector.
type FailureRecord struct {
	Title           string   `json:"title"`
	File            string   `json:"file"`
	FailureMessages []string `json:"failureMessages"`
}

// FailureCollector runs the project's tests and reports the failing ones.
// Implementations return an empty list on any failure.
type FailureCollector interface {
	CollectFailures(ctx context.Context) []FailureRecord
}

// Defaults is the pre-filled state offered to the user before a diagnose action.
type Defaults struct {
	Files    []string
	ErrorLog string
	Failures []FailureRecord
}

// ResolveDefaults computes the default selection as the deduplicated union of
// changed files and files referenced by failing tests, dropping any path that
// matches one of the exclude globs. Either capability may be nil. The result
// is sorted so the offer is stable between runs.
func ResolveDefaults(ctx context.Context, lister ChangedFileLister, collector FailureCollector, exclude []string) Defaults {
	var changed []string
	if lister != nil {
		changed = lister.ListChangedFiles(ctx)
	}

	var failures []FailureRecord
	if collector != nil {
		failures = collector.CollectFailures(ctx)
	}

	failingFiles := make([]string, 0, len(failures))
	for _, f := range failures {
		if f.File != "" {
			failingFiles = append(failingFiles, f.File)
		}
	}

	return Defaults{
		Files:    filterExcluded(union(changed, failingFiles), exclude),
		ErrorLog: FailureLog(failures),
		Failures: failures,
	}
}

// FailureLog joins every failure message across records with newlines.
func FailureLog(failures []FailureRecord) string {
	var messages []string
	for _, f := range failures {
		messages = append(messages, f.FailureMessages...)
	}
	return strings.Join(messages, "\n")
}

// union merges path lists into a sorted, deduplicated set.
func union(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, p := range list {
			p = normalize(p)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func normalize(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// filterExcluded drops paths matching any of the doublestar patterns.
// Malformed patterns are logged and ignored.
func filterExcluded(paths, exclude []string) []string {
	if len(exclude) == 0 {
		return paths
	}
	kept := paths[:0]
	for _, p := range paths {
		if !matchesAny(p, exclude) {
			kept = append(kept, p)
		}
	}
	return kept
}

func matchesAny(p string, patterns []string) bool {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, p)
		if err != nil {
			log.Warn().Str("pattern", pattern).Err(err).Msg("invalid exclude pattern")
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
