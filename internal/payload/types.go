package payload

// FileEntry is one encoded source file in a diagnose request.
type FileEntry struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Payload is the full request body sent to the diagnosis service.
type Payload struct {
	Files    []FileEntry `json:"files"`
	ErrorLog string      `json:"error_log"`
	Summary  string      `json:"summary"`
}

// answerSeparator joins follow-up answers onto the summary.
const answerSeparator = "\n\n"

// WithAnswer returns a copy of p whose summary has answer appended after a
// blank line. The receiver is left untouched so callers can stage the merge
// and commit it only once the backend accepts it.
func (p Payload) WithAnswer(answer string) Payload {
	merged := p.Clone()
	merged.Summary = p.Summary + answerSeparator + answer
	return merged
}

// Clone returns a deep copy of p.
func (p Payload) Clone() Payload {
	files := make([]FileEntry, len(p.Files))
	copy(files, p.Files)
	return Payload{Files: files, ErrorLog: p.ErrorLog, Summary: p.Summary}
}

// Filenames lists the file names in payload order.
func (p Payload) Filenames() []string {
	names := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		names = append(names, f.Filename)
	}
	return names
}

// Size returns the approximate wire size of the payload in bytes.
func (p Payload) Size() int {
	n := len(p.ErrorLog) + len(p.Summary)
	for _, f := range p.Files {
		n += len(f.Filename) + len(f.Content)
	}
	return n
}

// Result is a diagnosis returned by the service. Absent fields stay at their
// zero value; a response missing every field is still a valid Result.
type Result struct {
	RootCause  string   `json:"root_cause,omitempty"`
	Patches    []string `json:"patches,omitempty"`
	FollowUp   string   `json:"follow_up,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	AgentBlock string   `json:"agent_block,omitempty"`
}

// HasFollowUp reports whether the service asked a clarifying question. Any
// non-empty follow_up counts, even whitespace.
func (r *Result) HasFollowUp() bool {
	return r != nil && r.FollowUp != ""
}
