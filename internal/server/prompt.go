package server

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/berth-dev/triage/prompts"
)

// Models the service routes between.
const (
	ModelLight = "gpt-4o-mini"
	ModelFull  = "gpt-4o"
)

// ChooseModel routes small jobs to the light model: an error log under 500
// characters with fewer than three files.
func ChooseModel(errorLog string, fileCount int) string {
	if len(errorLog) < 500 && fileCount < 3 {
		return ModelLight
	}
	return ModelFull
}

// PromptInput holds the sections of a diagnosis prompt.
type PromptInput struct {
	ErrorLog  string
	Summary   string
	Retrieved []string
	Context   []Snippet
}

// BuildPrompt assembles the user prompt: instruction, retrieved snippets,
// referenced code context, error log, then summary.
func BuildPrompt(in PromptInput) string {
	parts := []string{prompts.DiagnoseInstruction}

	if len(in.Retrieved) > 0 {
		parts = append(parts, "Relevant retrieved snippets:\n"+strings.Join(in.Retrieved, "\n\n"))
	}
	if len(in.Context) > 0 {
		sections := make([]string, 0, len(in.Context))
		for _, s := range in.Context {
			sections = append(sections, fmt.Sprintf("Context from %s (lines %d-%d):\n%s", s.Filename, s.Start, s.End, s.Text))
		}
		parts = append(parts, "Relevant code context:\n"+strings.Join(sections, "\n\n"))
	}

	parts = append(parts, "Error log:\n"+in.ErrorLog)
	parts = append(parts, "Summary of changes:\n"+in.Summary)
	return strings.Join(parts, "\n\n")
}

// maxExcerpt caps each retrieved snippet.
const maxExcerpt = 1000

// Retrieve ranks files by how many query terms they contain and returns
// excerpts from the top k. Files sharing no terms with the query are skipped.
func Retrieve(files []DecodedFile, query string, k int) []string {
	terms := tokenize(query)
	if len(terms) == 0 || k <= 0 {
		return nil
	}

	type scored struct {
		file  DecodedFile
		score int
	}
	var ranked []scored
	for _, f := range files {
		if f.Content == "" {
			continue
		}
		words := tokenize(f.Content)
		score := 0
		for term := range terms {
			if words[term] > 0 {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{file: f, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var out []string
	for i := 0; i < len(ranked) && i < k; i++ {
		out = append(out, fmt.Sprintf("From %s:\n%s", ranked[i].file.Filename, truncate(ranked[i].file.Content, maxExcerpt)))
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// tokenize counts lower-cased identifier-like words of three or more characters.
func tokenize(text string) map[string]int {
	counts := make(map[string]int)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if len(w) >= 3 {
			counts[w]++
		}
	}
	return counts
}

// countTokens approximates a token count by whitespace-separated words.
func countTokens(text string) int {
	return len(strings.Fields(text))
}
