package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/berth-dev/triage/internal/payload"
)

// DefaultBaseURL is where the diagnosis service listens by default.
const DefaultBaseURL = "http://localhost:8000"

// maxResponseBytes caps how much of a reply is read.
const maxResponseBytes = 8 << 20

// Client is an HTTP Transport for the diagnosis service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient returns a Client for baseURL. The http.Client carries no timeout
// of its own; the caller's context bounds each call.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// wireResponse accepts both the success and the error shapes. Error may be a
// plain string or any JSON value; FastAPI-style services report Detail.
type wireResponse struct {
	RootCause  *string         `json:"root_cause"`
	Patches    []string        `json:"patches"`
	FollowUp   *string         `json:"follow_up"`
	Confidence *float64        `json:"confidence"`
	AgentBlock *string         `json:"agent_block"`
	Error      json.RawMessage `json:"error"`
	Detail     json.RawMessage `json:"detail"`
}

// Diagnose POSTs p to /diagnose and decodes the reply.
func (c *Client) Diagnose(ctx context.Context, p payload.Payload) (*payload.Result, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/diagnose", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrTransport, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransport, ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	log.Debug().
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("diagnose call finished")

	return decodeResponse(resp.StatusCode, raw)
}

// decodeResponse maps a status code and body onto a Result or an error.
// Missing fields are treated as absent rather than as a protocol error.
func decodeResponse(status int, raw []byte) (*payload.Result, error) {
	var wire wireResponse
	decodeErr := json.Unmarshal(raw, &wire)

	if decodeErr == nil {
		if msg, ok := errorMessage(wire.Error); ok {
			return nil, fmt.Errorf("%w: %s", ErrBackend, msg)
		}
		if status >= 400 {
			if msg, ok := errorMessage(wire.Detail); ok {
				return nil, fmt.Errorf("%w: %s", ErrBackend, msg)
			}
		}
	}

	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d: %s", ErrTransport, status, snippet(raw))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: invalid response body: %v", ErrTransport, decodeErr)
	}

	result := &payload.Result{
		Patches:    wire.Patches,
		Confidence: wire.Confidence,
	}
	if wire.RootCause != nil {
		result.RootCause = *wire.RootCause
	}
	if wire.FollowUp != nil {
		result.FollowUp = *wire.FollowUp
	}
	if wire.AgentBlock != nil {
		result.AgentBlock = *wire.AgentBlock
	}
	return result, nil
}

// errorMessage renders a non-null error value as text.
func errorMessage(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		if strings.TrimSpace(text) == "" {
			return "", false
		}
		return text, true
	}
	return string(trimmed), true
}

func snippet(raw []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(raw))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// Health calls GET /healthz and reports whether the service answered ok.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrTransport, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return fmt.Errorf("%w: invalid health response: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		return fmt.Errorf("%w: unhealthy: status %d, %q", ErrTransport, resp.StatusCode, body.Status)
	}
	return nil
}
