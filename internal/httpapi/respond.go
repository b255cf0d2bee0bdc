package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jxucoder/llmrelay/internal/relay"
	"github.com/jxucoder/llmrelay/pkg/llm"
)

// Error types reported in the "type" field of an error body.
const (
	TypeValidation = "validation_error"
	TypeNotFound   = "not_found"
	TypeThrottled  = "throttled"
	TypeInternal   = "internal"
)

// StatusClientClosedRequest is reported when the caller went away before the
// provider answered.
const StatusClientClosedRequest = 499

// --- Response types ---

type completionResponse struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Content      string    `json:"content"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Usage        llm.Usage `json:"usage"`
	LatencyMS    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

type errorResponse struct {
	Error     string     `json:"error"`
	Type      string     `json:"type"`
	RequestID string     `json:"request_id,omitempty"`
	Fields    url.Values `json:"fields,omitempty"`
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, typ, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Type:      typ,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeValidation(w http.ResponseWriter, r *http.Request, fields url.Values) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:     "request validation failed",
		Type:      TypeValidation,
		RequestID: middleware.GetReqID(r.Context()),
		Fields:    fields,
	})
}

func writeCompletion(w http.ResponseWriter, res *relay.Result) {
	writeJSON(w, http.StatusOK, completionResponse{
		ID:           res.ID,
		RequestID:    res.RequestID,
		Provider:     res.Provider,
		Model:        res.Model,
		Content:      res.Content,
		FinishReason: res.FinishReason,
		Usage:        res.Usage,
		LatencyMS:    res.Latency.Milliseconds(),
		CreatedAt:    res.CreatedAt,
	})
}

// writeLLMError maps a relay failure to a status and a body. Only the
// provider's message for a rejected request reaches the caller; every other
// kind gets a fixed message.
func writeLLMError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := llm.AsError(err)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, TypeInternal, "internal error")
		return
	}

	status, msg := StatusFor(e.Kind), fixedMessages[e.Kind]
	if e.Kind == llm.KindInvalidRequest && e.Message != "" {
		msg = e.Message
	}
	if msg == "" {
		msg = "internal error"
	}
	if e.Kind == llm.KindRateLimited && e.RetryAfter > 0 {
		secs := int((e.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeError(w, r, status, string(e.Kind), msg)
}

// StatusFor returns the HTTP status reported for a failure kind.
func StatusFor(kind llm.Kind) int {
	switch kind {
	case llm.KindInvalidRequest:
		return http.StatusBadRequest
	case llm.KindConfiguration:
		return http.StatusInternalServerError
	case llm.KindUpstream:
		return http.StatusBadGateway
	case llm.KindUnavailable, llm.KindRateLimited:
		return http.StatusServiceUnavailable
	case llm.KindTimeout:
		return http.StatusGatewayTimeout
	case llm.KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

var fixedMessages = map[llm.Kind]string{
	llm.KindInvalidRequest: "the provider rejected the request",
	llm.KindConfiguration:  "the relay is misconfigured",
	llm.KindRateLimited:    "the provider is rate limiting requests, try again later",
	llm.KindTimeout:        "the provider did not respond in time",
	llm.KindUnavailable:    "the provider is unavailable",
	llm.KindUpstream:       "the provider returned an invalid response",
	llm.KindCanceled:       "request canceled",
}
