package server

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseErrorLog(t *testing.T) {
	log := `Traceback (most recent call last):
  File "/app/src/auth/user.py", line 12, in <module>
  File "/app/src/auth/user.py", line 12, in <module>
FAIL src/components/Button.test.tsx:44:7
    at Object.<anonymous> (C:\repo\lib\util.js:9:1)`

	refs := ParseErrorLog(log)
	assert.Equal(t, []Reference{
		{File: "user.py", Line: 12},
		{File: "Button.test.tsx", Line: 44},
		{File: "util.js", Line: 9},
	}, refs)
	assert.Empty(t, ParseErrorLog(""))
}

func TestExtractContext(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	files := []DecodedFile{
		{Filename: "empty.ts", Content: ""},
		{Filename: "src/a.ts", Content: b.String()},
	}

	snippets := ExtractContext(files, []Reference{
		{File: "a.ts", Line: 5},
		{File: "empty.ts", Line: 1},
		{File: "missing.ts", Line: 1},
	}, 2)
	require.Len(t, snippets, 1)
	assert.Equal(t, "src/a.ts", snippets[0].Filename)
	assert.Equal(t, 3, snippets[0].Start)
	assert.Equal(t, 7, snippets[0].End)
	assert.Equal(t, "line 3\nline 4\nline 5\nline 6\nline 7", snippets[0].Text)

	edge := ExtractContext(files, []Reference{{File: "src/a.ts", Line: 10}}, 30)
	require.Len(t, edge, 1)
	assert.Equal(t, 1, edge[0].Start)
	assert.Equal(t, 10, edge[0].End)
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, ModelLight, ChooseModel("short", 2))
	assert.Equal(t, ModelFull, ChooseModel("short", 3))
	assert.Equal(t, ModelFull, ChooseModel(strings.Repeat("x", 500), 0))
}

func TestRetrieve(t *testing.T) {
	files := []DecodedFile{
		{Filename: "a.ts", Content: "export function parseConfig() {}"},
		{Filename: "b.ts", Content: "export function renderButton() { parseConfig() }"},
		{Filename: "c.ts", Content: "unrelated"},
	}
	got := Retrieve(files, "renderButton failed in parseConfig", 5)
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[0], "From b.ts:"))
	assert.Nil(t, Retrieve(files, "", 5))
}

func TestRetrieveKeepsRunesWhole(t *testing.T) {
	content := "parseConfig" + strings.Repeat("é", 600)
	got := Retrieve([]DecodedFile{{Filename: "a.ts", Content: content}}, "parseConfig", 1)
	require.Len(t, got, 1)

	excerpt := strings.TrimPrefix(got[0], "From a.ts:\n")
	assert.True(t, utf8.ValidString(excerpt))
	assert.LessOrEqual(t, len(excerpt), maxExcerpt)
	assert.Equal(t, maxExcerpt-1, len(excerpt))
}

func TestBuildPromptOrder(t *testing.T) {
	p := BuildPrompt(PromptInput{
		ErrorLog:  "E",
		Summary:   "S",
		Retrieved: []string{"R"},
		Context:   []Snippet{{Filename: "f", Start: 1, End: 2, Text: "T"}},
	})
	iR := strings.Index(p, "Relevant retrieved snippets:")
	iC := strings.Index(p, "Relevant code context:")
	iE := strings.Index(p, "Error log:\nE")
	iS := strings.Index(p, "Summary of changes:\nS")
	assert.True(t, iR > 0 && iR < iC && iC < iE && iE < iS, p)
}
