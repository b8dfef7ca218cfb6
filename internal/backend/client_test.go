package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berth-dev/triage/internal/payload"
)

func TestDiagnoseSendsPayload(t *testing.T) {
	var got payload.Payload
	var requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/diagnose", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		requestID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"root_cause":"nil deref","patches":["--- a/x\n+++ b/x\n"],"follow_up":null,"confidence":0.9,"agent_block":"note"}`))
	}))
	defer srv.Close()

	p := payload.Payload{
		Files:    []payload.FileEntry{{Filename: "a.ts", Content: "H4sI"}},
		ErrorLog: "E",
		Summary:  "S",
	}
	result, err := NewClient(srv.URL + "/").Diagnose(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, p, got)
	assert.NotEmpty(t, requestID)
	assert.Equal(t, "nil deref", result.RootCause)
	assert.Equal(t, []string{"--- a/x\n+++ b/x\n"}, result.Patches)
	assert.False(t, result.HasFollowUp())
	require.NotNil(t, result.Confidence)
	assert.InDelta(t, 0.9, *result.Confidence, 1e-9)
	assert.Equal(t, "note", result.AgentBlock)
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		wantQuery string
	}{
		{name: "follow up", status: 200, body: `{"follow_up":"why?"}`, wantQuery: "why?"},
		{name: "missing fields are absent", status: 200, body: `{}`},
		{name: "unknown fields ignored", status: 200, body: `{"other":1}`},
		{name: "explicit error", status: 200, body: `{"error":"model exploded"}`, wantErr: ErrBackend},
		{name: "error object", status: 200, body: `{"error":{"code":"X"}}`, wantErr: ErrBackend},
		{name: "null error is absent", status: 200, body: `{"error":null,"follow_up":"q"}`, wantQuery: "q"},
		{name: "fastapi detail", status: 500, body: `{"detail":"Invalid response from model"}`, wantErr: ErrBackend},
		{name: "error on 4xx", status: 422, body: `{"error":"bad"}`, wantErr: ErrBackend},
		{name: "bare 502", status: 502, body: `Bad Gateway`, wantErr: ErrTransport},
		{name: "garbage body", status: 200, body: `<html>`, wantErr: ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := decodeResponse(tt.status, []byte(tt.body))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "error %v should wrap %v", err, tt.wantErr)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, result.FollowUp)
		})
	}
}

func TestDiagnoseUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Diagnose(context.Background(), payload.Payload{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestDiagnoseHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL).Diagnose(ctx, payload.Payload{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(srv.URL).Health(context.Background()))

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"starting"}`))
	}))
	defer bad.Close()

	err := NewClient(bad.URL).Health(context.Background())
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestTransportFunc(t *testing.T) {
	called := false
	var tr Transport = TransportFunc(func(ctx context.Context, p payload.Payload) (*payload.Result, error) {
		called = true
		return &payload.Result{RootCause: p.Summary}, nil
	})
	result, err := tr.Diagnose(context.Background(), payload.Payload{Summary: "x"})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "x", result.RootCause)
}
