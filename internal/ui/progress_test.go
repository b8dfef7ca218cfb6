package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestCallProgressNonTTY(t *testing.T) {
	var buf bytes.Buffer
	p := NewCallProgress(&buf)
	if p.isTTY {
		t.Fatal("a bytes.Buffer should not be treated as a terminal")
	}

	p.Start("Diagnosing 2 file(s)")
	p.Finish()
	p.Start("Sending answer")
	p.Finish()

	want := "Diagnosing 2 file(s)...\nSending answer...\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestCallProgressTTYRedraws(t *testing.T) {
	var buf bytes.Buffer
	p := &CallProgress{w: &buf, isTTY: true}

	p.Start("Diagnosing")
	time.Sleep(3 * refreshInterval)
	elapsed := p.Finish()

	out := buf.String()
	if !strings.Contains(out, "\r\033[K"+spinnerFrames[0]+" Diagnosing") {
		t.Errorf("output %q missing first spinner frame", out)
	}
	if !strings.Contains(out, "\r\033[KDiagnosing (") {
		t.Errorf("output %q missing final elapsed line", out)
	}
	if elapsed < 2*refreshInterval {
		t.Errorf("elapsed = %v, want >= %v", elapsed, 2*refreshInterval)
	}
}

func TestFinishWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	p := NewCallProgress(&buf)
	if d := p.Finish(); d != 0 {
		t.Errorf("Finish() = %v, want 0", d)
	}
	if buf.Len() != 0 {
		t.Errorf("output = %q, want empty", buf.String())
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "(1.5s)"},
		{45 * time.Second, "(45.0s)"},
		{135 * time.Second, "(2m 15s)"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("IsTerminal(bytes.Buffer) = true, want false")
	}
}
