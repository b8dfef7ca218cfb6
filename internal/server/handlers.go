package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"

	"github.com/berth-dev/triage/internal/metrics"
	"github.com/berth-dev/triage/internal/payload"
	"github.com/berth-dev/triage/prompts"
)

// diagnoseResponse always carries all five keys; follow_up is null when absent.
type diagnoseResponse struct {
	RootCause  string   `json:"root_cause"`
	Confidence float64  `json:"confidence"`
	Patches    []string `json:"patches"`
	FollowUp   *string  `json:"follow_up"`
	AgentBlock string   `json:"agent_block"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	var req payload.Payload
	if !s.readJSON(w, r, &req) {
		return
	}

	files := DecodeFiles(req.Files)
	refs := ParseErrorLog(req.ErrorLog)
	prompt := BuildPrompt(PromptInput{
		ErrorLog:  req.ErrorLog,
		Summary:   req.Summary,
		Retrieved: Retrieve(files, req.ErrorLog+"\n"+req.Summary, s.retrieveK),
		Context:   ExtractContext(files, refs, s.contextLines),
	})
	model := ChooseModel(req.ErrorLog, len(req.Files))

	start := time.Now()
	answer, err := s.oracle.Complete(r.Context(), Request{
		Model:  model,
		System: prompts.DiagnoseSystemPrompt,
		Prompt: prompt,
		Files:  files,
		Refs:   refs,
	})
	elapsed := time.Since(start)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("model", model).Msg("oracle failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: fmt.Sprintf("Invalid response from model: %v", err)})
		return
	}

	resp := diagnoseResponse{
		RootCause:  answer.RootCause,
		Confidence: answer.Confidence,
		Patches:    answer.Patches,
		AgentBlock: answer.AgentBlock,
	}
	if resp.Patches == nil {
		resp.Patches = []string{}
	}
	if answer.FollowUp != "" {
		q := answer.FollowUp
		resp.FollowUp = &q
	}

	s.record(r, metrics.Call{
		Source:           metrics.SourceServer,
		SessionID:        middleware.GetReqID(r.Context()),
		DurationMs:       elapsed.Milliseconds(),
		Outcome:          outcomeOf(answer),
		FileCount:        len(req.Files),
		PayloadBytes:     req.Size(),
		PromptTokens:     countTokens(prompt),
		CompletionTokens: completionTokens(answer),
		Confidence:       &resp.Confidence,
	})

	hlog.FromRequest(r).Debug().
		Str("model", model).
		Int("files", len(files)).
		Int("refs", len(refs)).
		Float64("confidence", answer.Confidence).
		Msg("diagnosed")

	writeJSON(w, http.StatusOK, resp)
}

func outcomeOf(a Answer) string {
	if a.FollowUp != "" {
		return "follow_up"
	}
	return "result"
}

func completionTokens(a Answer) int {
	n := countTokens(a.RootCause) + countTokens(a.FollowUp) + countTokens(a.AgentBlock)
	for _, p := range a.Patches {
		n += countTokens(p)
	}
	return n
}

func (s *Server) record(r *http.Request, call metrics.Call) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordCall(context.WithoutCancel(r.Context()), call); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("record call metrics")
	}
}

// readJSON decodes the request body into v. Malformed bodies get a 422 with
// a detail message.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		status := http.StatusUnprocessableEntity
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse{Detail: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
