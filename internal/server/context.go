package server

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/berth-dev/triage/internal/payload"
)

// ContextLines is how many lines around a referenced line are quoted.
const ContextLines = 30

// DecodedFile is an uploaded file with its plain-text content.
type DecodedFile struct {
	Filename string
	Content  string
}

// Reference is a file and line mentioned in an error log.
type Reference struct {
	File string // base name
	Line int
}

// Snippet is a span of a decoded file quoted into the prompt.
type Snippet struct {
	Filename string
	Start    int // 1-based, inclusive
	End      int // 1-based, inclusive
	Text     string
}

var (
	fileLinePattern = regexp.MustCompile(`File "([^"]+?)",\s*line\s*(\d+)`)
	colonPattern    = regexp.MustCompile(`([\w.\-/]+\.[A-Za-z]+):(\d+)`)
)

// DecodeFiles decodes every uploaded file. A file that fails to decode keeps
// its name with empty content.
func DecodeFiles(files []payload.FileEntry) []DecodedFile {
	out := make([]DecodedFile, 0, len(files))
	for _, f := range files {
		text := ""
		if raw, err := payload.Decode(f.Content); err == nil {
			text = strings.ToValidUTF8(string(raw), "")
		}
		out = append(out, DecodedFile{Filename: f.Filename, Content: text})
	}
	return out
}

// ParseErrorLog finds file and line references in an error log. Both
// Python-style `File "x", line N` and `path/to/file.ext:N` forms are
// recognized. File names are reduced to their base name.
func ParseErrorLog(errorLog string) []Reference {
	var refs []Reference
	seen := make(map[Reference]bool)
	add := func(file, line string) {
		n, err := strconv.Atoi(line)
		if err != nil {
			return
		}
		ref := Reference{File: path.Base(strings.ReplaceAll(file, `\`, "/")), Line: n}
		if seen[ref] {
			return
		}
		seen[ref] = true
		refs = append(refs, ref)
	}

	for _, m := range fileLinePattern.FindAllStringSubmatch(errorLog, -1) {
		add(m[1], m[2])
	}
	for _, m := range colonPattern.FindAllStringSubmatch(errorLog, -1) {
		add(m[1], m[2])
	}
	return refs
}

// ExtractContext quotes up to contextLines lines on each side of every
// reference, using the first file whose name or base name matches.
// References to unknown or empty files are skipped.
func ExtractContext(files []DecodedFile, refs []Reference, contextLines int) []Snippet {
	var snippets []Snippet
	for _, ref := range refs {
		for _, f := range files {
			if f.Filename != ref.File && path.Base(f.Filename) != ref.File {
				continue
			}
			if f.Content == "" {
				break
			}
			lines := strings.Split(strings.TrimRight(f.Content, "\n"), "\n")
			start := max(0, ref.Line-contextLines-1)
			end := min(len(lines), ref.Line+contextLines)
			if start >= end {
				break
			}
			snippets = append(snippets, Snippet{
				Filename: f.Filename,
				Start:    start + 1,
				End:      end,
				Text:     strings.Join(lines[start:end], "\n"),
			})
			break
		}
	}
	return snippets
}

// findFile returns the decoded file matching name by path or base name.
func findFile(files []DecodedFile, name string) (DecodedFile, bool) {
	for _, f := range files {
		if f.Filename == name || path.Base(f.Filename) == name {
			return f, true
		}
	}
	return DecodedFile{}, false
}
