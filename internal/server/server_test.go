package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berth-dev/triage/internal/backend"
	"github.com/berth-dev/triage/internal/builder"
	"github.com/berth-dev/triage/internal/engine"
	"github.com/berth-dev/triage/internal/metrics"
	"github.com/berth-dev/triage/internal/payload"
	"github.com/berth-dev/triage/internal/session"
)

type memRecorder struct {
	mu    sync.Mutex
	calls []metrics.Call
}

func (r *memRecorder) RecordCall(_ context.Context, c metrics.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return nil
}

func encodeFile(t *testing.T, name, content string) payload.FileEntry {
	t.Helper()
	enc, err := payload.Encode([]byte(content))
	require.NoError(t, err)
	return payload.FileEntry{Filename: name, Content: enc}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	require.NoError(t, backend.NewClient(srv.URL).Health(context.Background()))
}

func TestDiagnoseShortPromptIsConfident(t *testing.T) {
	rec := &memRecorder{}
	srv := httptest.NewServer(New(WithRecorder(rec)).Handler())
	defer srv.Close()

	result, err := backend.NewClient(srv.URL).Diagnose(context.Background(), payload.Payload{
		ErrorLog: "TypeError: x is undefined",
		Summary:  "renamed x",
	})
	require.NoError(t, err)
	assert.False(t, result.HasFollowUp())
	require.NotNil(t, result.Confidence)
	assert.InDelta(t, 0.9, *result.Confidence, 1e-9)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, metrics.SourceServer, rec.calls[0].Source)
	assert.Equal(t, "result", rec.calls[0].Outcome)
	assert.Positive(t, rec.calls[0].PromptTokens)
	assert.NotEmpty(t, rec.calls[0].SessionID)
}

func TestDiagnoseLongPromptAsksFollowUp(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	result, err := backend.NewClient(srv.URL).Diagnose(context.Background(), payload.Payload{
		ErrorLog: strings.Repeat("AssertionError: expected true to be false\n", 40),
		Summary:  "S",
	})
	require.NoError(t, err)
	assert.Equal(t, FollowUpQuestion, result.FollowUp)
	require.NotNil(t, result.Confidence)
	assert.InDelta(t, 0.75, *result.Confidence, 1e-9)
}

func TestDiagnoseCircularImportPatch(t *testing.T) {
	user := "from .login import login\n\ndef current_user():\n    return login()\n"
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	result, err := backend.NewClient(srv.URL).Diagnose(context.Background(), payload.Payload{
		Files: []payload.FileEntry{
			encodeFile(t, "src/auth/login.py", "def login():\n    return 1\n"),
			encodeFile(t, "src/auth/user.py", user),
		},
		ErrorLog: "ImportError: cannot import name 'login' (most likely due to a circular import)\n" +
			`  File "/app/src/auth/user.py", line 1, in <module>`,
		Summary: "split auth module",
	})
	require.NoError(t, err)
	assert.False(t, result.HasFollowUp())
	require.Len(t, result.Patches, 1)
	assert.Contains(t, result.Patches[0], "--- a/src/auth/user.py")
	assert.Contains(t, result.Patches[0], "-from .login import login")
	assert.Contains(t, result.Patches[0], "+# Removed circular import")
	assert.Contains(t, result.RootCause, "src/auth/user.py")
}

func TestDiagnoseRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/diagnose", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestDiagnoseOracleFailureIsBackendError(t *testing.T) {
	failing := OracleFunc(func(context.Context, Request) (Answer, error) {
		return Answer{}, errors.New("model unavailable")
	})
	srv := httptest.NewServer(New(WithOracle(failing)).Handler())
	defer srv.Close()

	_, err := backend.NewClient(srv.URL).Diagnose(context.Background(), payload.Payload{ErrorLog: "E"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrBackend))
}

func TestOracleReceivesPromptSections(t *testing.T) {
	var got Request
	capture := OracleFunc(func(_ context.Context, req Request) (Answer, error) {
		got = req
		return Answer{RootCause: "ok", Confidence: 1}, nil
	})
	srv := httptest.NewServer(New(WithOracle(capture)).Handler())
	defer srv.Close()

	var src strings.Builder
	for i := 1; i <= 100; i++ {
		fmt.Fprintf(&src, "const v%d = %d;\n", i, i)
	}
	_, err := backend.NewClient(srv.URL).Diagnose(context.Background(), payload.Payload{
		Files:    []payload.FileEntry{encodeFile(t, "src/a.ts", src.String()), {Filename: "bad.ts", Content: "%%%"}},
		ErrorLog: "Error at src/a.ts:50:3",
		Summary:  "bumped deps",
	})
	require.NoError(t, err)

	assert.Equal(t, ModelLight, got.Model)
	assert.NotEmpty(t, got.System)
	require.Len(t, got.Files, 2)
	assert.Empty(t, got.Files[1].Content, "undecodable file keeps an empty body")
	assert.Contains(t, got.Prompt, "Context from src/a.ts (lines 20-80):")
	assert.Contains(t, got.Prompt, "Error log:\nError at src/a.ts:50:3")
	assert.True(t, strings.HasSuffix(got.Prompt, "Summary of changes:\nbumped deps"))
}

func TestEngineAgainstLocalService(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "a.ts", []byte("export const a = 1;\n"), 0644))

	e := engine.New(session.NewStore(), builder.New(fs), backend.NewClient(srv.URL))
	out, err := e.Diagnose(context.Background(), builder.Selection{
		Files:    []string{"a.ts"},
		ErrorLog: strings.Repeat("expected 1 to equal 2\n", 60),
		Summary:  "S",
	})
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingAnswer, out.State)
	assert.Equal(t, engine.AffordAnswer, out.Affordance)

	out, err = e.Answer(context.Background(), out.SessionID, "it started after the upgrade")
	require.NoError(t, err)
	assert.Equal(t, 1, out.FollowUps)
}
