// Package ui provides terminal output helpers for the line-based commands.
// This file implements the progress line shown while a diagnosis call runs.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// refreshInterval is how often the TTY progress line is redrawn.
const refreshInterval = 100 * time.Millisecond

// IsTerminal reports whether w writes to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// CallProgress shows one in-flight call. On a terminal it redraws a spinner
// with the elapsed time; otherwise it prints the label once.
type CallProgress struct {
	mu    sync.Mutex
	w     io.Writer
	isTTY bool
	label string
	start time.Time
	stop  chan struct{}
	done  chan struct{}
}

// NewCallProgress creates a CallProgress writing to w.
func NewCallProgress(w io.Writer) *CallProgress {
	return &CallProgress{w: w, isTTY: IsTerminal(w)}
}

// Start begins showing label. A running display is finished first.
func (p *CallProgress) Start(label string) {
	p.Finish()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.label = label
	p.start = time.Now()
	if !p.isTTY {
		fmt.Fprintf(p.w, "%s...\n", label)
		return
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.spin(p.stop, p.done)
}

func (p *CallProgress) spin(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		p.mu.Lock()
		fmt.Fprintf(p.w, "\r\033[K%s %s %s", spinnerFrames[frame%len(spinnerFrames)], p.label, formatElapsed(time.Since(p.start)))
		p.mu.Unlock()

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// Finish stops the display and returns the elapsed time. On a terminal the
// spinner line is replaced by the label and elapsed time.
func (p *CallProgress) Finish() time.Duration {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop == nil {
		if p.start.IsZero() {
			return 0
		}
		return time.Since(p.start)
	}
	close(stop)
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := time.Since(p.start)
	fmt.Fprintf(p.w, "\r\033[K%s %s\n", p.label, formatElapsed(elapsed))
	return elapsed
}

// formatElapsed formats a duration as a compact string (e.g. "45s" or "2m 15s").
func formatElapsed(d time.Duration) string {
	d = d.Round(100 * time.Millisecond)
	if d < time.Minute {
		return fmt.Sprintf("(%.1fs)", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("(%dm %ds)", m, s)
}
