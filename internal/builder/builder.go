// Package builder assembles diagnose payloads from a file selection, an error
// log, and a summary of recent changes.
package builder

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/berth-dev/triage/internal/payload"
)

// FileReadError reports a selected file that could not be read or encoded.
// It is never fatal: the file is dropped and the rest of the batch proceeds.
type FileReadError struct {
	Filename string
	Err      error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("could not read file %s: %v", e.Filename, e.Err)
}

func (e *FileReadError) Unwrap() error {
	return e.Err
}

// Selection is the user's input for one diagnose action.
type Selection struct {
	Files    []string // ordered, deduplicated by the caller
	ErrorLog string
	Summary  string
}

// Built is the outcome of Build: the payload plus any files that were skipped.
type Built struct {
	Payload payload.Payload
	Skipped []*FileReadError
}

// Builder reads selected files through fs and encodes them into a payload.
// Paths in a selection are relative to the root of fs.
type Builder struct {
	fs               afero.Fs
	fallbackErrorLog string
}

// New creates a Builder reading from fs. Use afero.NewBasePathFs to confine
// reads to the project root.
func New(fs afero.Fs) *Builder {
	return &Builder{fs: fs}
}

// SetFallbackErrorLog sets the error log used when a selection supplies none.
// Typically the newline-joined failure messages from the test collector.
func (b *Builder) SetFallbackErrorLog(errorLog string) {
	b.fallbackErrorLog = errorLog
}

// FallbackErrorLog returns the error log used for selections without one.
func (b *Builder) FallbackErrorLog() string {
	return b.fallbackErrorLog
}

// Build reads and encodes every file in sel. Unreadable files are recorded in
// Skipped and omitted from the payload without disturbing the order of the rest.
func (b *Builder) Build(sel Selection) Built {
	errorLog := sel.ErrorLog
	if errorLog == "" {
		errorLog = b.fallbackErrorLog
	}

	built := Built{
		Payload: payload.Payload{
			Files:    make([]payload.FileEntry, 0, len(sel.Files)),
			ErrorLog: errorLog,
			Summary:  sel.Summary,
		},
	}

	for _, name := range sel.Files {
		entry, err := b.encodeFile(name)
		if err != nil {
			log.Warn().Str("file", name).Err(err).Msg("skipping unreadable file")
			built.Skipped = append(built.Skipped, &FileReadError{Filename: name, Err: err})
			continue
		}
		built.Payload.Files = append(built.Payload.Files, entry)
	}

	return built
}

// encodeFile reads one file and returns its wire entry.
func (b *Builder) encodeFile(name string) (payload.FileEntry, error) {
	data, err := afero.ReadFile(b.fs, filepath.FromSlash(name))
	if err != nil {
		return payload.FileEntry{}, err
	}
	content, err := payload.Encode(data)
	if err != nil {
		return payload.FileEntry{}, fmt.Errorf("encoding: %w", err)
	}
	return payload.FileEntry{Filename: name, Content: content}, nil
}
