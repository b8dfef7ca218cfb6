package tui

import (
	"errors"
	"fmt"
	"io"
)

// ErrNotInteractive is returned when the panel is requested without a terminal.
var ErrNotInteractive = errors.New("interactive panel requires a terminal")

// runFallback handles non-TTY execution by pointing at the line-based commands.
func runFallback(w io.Writer) error {
	fmt.Fprintln(w, "Non-TTY environment detected.")
	fmt.Fprintln(w, "Use 'triage diagnose [files...]' for a line-based session,")
	fmt.Fprintln(w, "or 'triage files' to see the default selection.")
	return ErrNotInteractive
}
