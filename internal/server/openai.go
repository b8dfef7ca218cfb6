package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultOpenAIBaseURL is the public OpenAI API.
const DefaultOpenAIBaseURL = "https://api.openai.com"

const (
	openAITimeout     = 30 * time.Second
	maxErrorBodyBytes = 2048
)

// Errors returned by OpenAI.Complete.
var (
	ErrUnauthorized  = errors.New("openai: unauthorized")
	ErrUnavailable   = errors.New("openai: service unavailable")
	ErrEmptyResponse = errors.New("openai: empty response")
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// modelAnswer is the JSON object the system prompt asks the model to return.
type modelAnswer struct {
	RootCause  string   `json:"root_cause"`
	Confidence float64  `json:"confidence"`
	Patches    []string `json:"patches"`
	FollowUp   *string  `json:"follow_up"`
	AgentBlock string   `json:"agent_block"`
}

// OpenAI is an Oracle backed by the chat completions endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAI creates an OpenAI oracle. An empty baseURL uses DefaultOpenAIBaseURL.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: openAITimeout},
	}
}

// Complete sends the system and user prompts to req.Model at temperature 0
// and parses the JSON object in the reply.
func (o *OpenAI) Complete(ctx context.Context, req Request) (Answer, error) {
	body, err := json.Marshal(chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return Answer{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Answer{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return Answer{}, fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Answer{}, ErrUnauthorized
	case resp.StatusCode >= 500:
		return Answer{}, ErrUnavailable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return Answer{}, fmt.Errorf("openai: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return Answer{}, fmt.Errorf("openai: decoding response: %w", err)
	}
	if len(chat.Choices) == 0 || strings.TrimSpace(chat.Choices[0].Message.Content) == "" {
		return Answer{}, ErrEmptyResponse
	}
	return parseModelAnswer(chat.Choices[0].Message.Content)
}

// parseModelAnswer reads the model's JSON object, tolerating a Markdown code fence.
func parseModelAnswer(content string) (Answer, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	var m modelAnswer
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return Answer{}, fmt.Errorf("openai: model reply is not JSON: %w", err)
	}
	a := Answer{
		RootCause:  m.RootCause,
		Confidence: m.Confidence,
		Patches:    m.Patches,
		AgentBlock: m.AgentBlock,
	}
	if m.FollowUp != nil {
		a.FollowUp = *m.FollowUp
	}
	return a, nil
}

// Fallback tries Primary and answers from Secondary when Primary fails.
type Fallback struct {
	Primary   Oracle
	Secondary Oracle
}

// Complete implements Oracle.
func (f Fallback) Complete(ctx context.Context, req Request) (Answer, error) {
	a, err := f.Primary.Complete(ctx, req)
	if err == nil {
		return a, nil
	}
	zerolog.Ctx(ctx).Warn().Err(err).Str("model", req.Model).Msg("model call failed; using simulator")
	return f.Secondary.Complete(ctx, req)
}

// NewOracle returns the OpenAI oracle with the Simulator as fallback when
// apiKey is set, and the Simulator alone otherwise.
func NewOracle(apiKey, baseURL string) Oracle {
	if strings.TrimSpace(apiKey) == "" {
		return Simulator{}
	}
	return Fallback{Primary: NewOpenAI(apiKey, baseURL), Secondary: Simulator{}}
}
