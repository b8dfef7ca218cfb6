// Package diffview builds unified diffs and classifies patch lines for display.
package diffview

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Line kinds.
const (
	KindHeader  = "header"
	KindHunk    = "hunk"
	KindContext = "context"
	KindAdded   = "added"
	KindRemoved = "removed"
)

// ContextLines is the number of unchanged lines kept around each change.
const ContextLines = 3

// Line is one line of a diff.
type Line struct {
	Kind    string
	Text    string
	OldLine int
	NewLine int
}

// Lines computes a line-level diff of before and after.
func Lines(before, after string) []Line {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var lines []Line
	oldLine, newLine := 1, 1
	for _, d := range diffs {
		chunk := strings.Split(d.Text, "\n")
		if len(chunk) > 0 && chunk[len(chunk)-1] == "" {
			chunk = chunk[:len(chunk)-1]
		}
		for _, text := range chunk {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, Line{Kind: KindContext, Text: text, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, Line{Kind: KindRemoved, Text: text, OldLine: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, Line{Kind: KindAdded, Text: text, NewLine: newLine})
				newLine++
			}
		}
	}
	return lines
}

// Unified renders a unified diff of before and after for name. It returns
// an empty string when the inputs are identical.
func Unified(name, before, after string) string {
	if before == after {
		return ""
	}
	lines := Lines(before, after)

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", name)
	fmt.Fprintf(&b, "+++ b/%s\n", name)

	for _, h := range hunks(lines) {
		oldStart, oldCount, newStart, newCount := h.span()
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
		for _, l := range h {
			switch l.Kind {
			case KindAdded:
				b.WriteString("+")
			case KindRemoved:
				b.WriteString("-")
			default:
				b.WriteString(" ")
			}
			b.WriteString(l.Text)
			b.WriteString("\n")
		}
	}
	return b.String()
}

type hunk []Line

// span returns the old and new start lines and counts covered by h.
func (h hunk) span() (oldStart, oldCount, newStart, newCount int) {
	for _, l := range h {
		if l.OldLine > 0 {
			if oldStart == 0 {
				oldStart = l.OldLine
			}
			oldCount++
		}
		if l.NewLine > 0 {
			if newStart == 0 {
				newStart = l.NewLine
			}
			newCount++
		}
	}
	if oldStart == 0 {
		oldStart = firstLine(h, func(l Line) int { return l.NewLine }) - 1
		if oldStart < 0 {
			oldStart = 0
		}
	}
	if newStart == 0 {
		newStart = firstLine(h, func(l Line) int { return l.OldLine }) - 1
		if newStart < 0 {
			newStart = 0
		}
	}
	return oldStart, oldCount, newStart, newCount
}

func firstLine(h hunk, pick func(Line) int) int {
	for _, l := range h {
		if n := pick(l); n > 0 {
			return n
		}
	}
	return 0
}

// hunks groups changed lines with up to ContextLines of context on each side,
// merging groups whose context would overlap.
func hunks(lines []Line) []hunk {
	var out []hunk
	start, end := -1, -1
	for i, l := range lines {
		if l.Kind == KindContext {
			continue
		}
		lo := max(i-ContextLines, 0)
		hi := min(i+ContextLines+1, len(lines))
		if start >= 0 && lo <= end {
			end = hi
			continue
		}
		if start >= 0 {
			out = append(out, hunk(lines[start:end]))
		}
		start, end = lo, hi
	}
	if start >= 0 {
		out = append(out, hunk(lines[start:end]))
	}
	return out
}

// Classify splits a unified-diff patch into display lines.
func Classify(patch string) []Line {
	text := strings.TrimSuffix(patch, "\n")
	if text == "" {
		return nil
	}
	raw := strings.Split(text, "\n")
	lines := make([]Line, 0, len(raw))
	for _, l := range raw {
		lines = append(lines, Line{Kind: classifyLine(l), Text: l})
	}
	return lines
}

func classifyLine(l string) string {
	switch {
	case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"),
		strings.HasPrefix(l, "diff "), strings.HasPrefix(l, "index "):
		return KindHeader
	case strings.HasPrefix(l, "@@"):
		return KindHunk
	case strings.HasPrefix(l, "+"):
		return KindAdded
	case strings.HasPrefix(l, "-"):
		return KindRemoved
	default:
		return KindContext
	}
}

// Stats counts added and removed lines in a patch.
func Stats(patch string) (added, removed int) {
	for _, l := range Classify(patch) {
		switch l.Kind {
		case KindAdded:
			added++
		case KindRemoved:
			removed++
		}
	}
	return added, removed
}

// Files returns the target file names a patch touches, taken from its +++ headers.
func Files(patch string) []string {
	var files []string
	for _, l := range Classify(patch) {
		if l.Kind != KindHeader || !strings.HasPrefix(l.Text, "+++ ") {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(l.Text, "+++ "))
		name = strings.TrimPrefix(name, "b/")
		if name != "" && name != "/dev/null" {
			files = append(files, name)
		}
	}
	return files
}
