package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/thedevsaddam/govalidator"

	"github.com/jxucoder/llmrelay/internal/relay"
	"github.com/jxucoder/llmrelay/pkg/llm"
	"github.com/jxucoder/llmrelay/pkg/model"
	"github.com/jxucoder/llmrelay/pkg/store"
)

const (
	formatText       = "text"
	formatJSONObject = "json_object"
)

// --- Request types ---

type completionRequest struct {
	Prompt         string `json:"prompt"`
	System         string `json:"system"`
	MaxTokens      int    `json:"max_tokens"`
	ResponseFormat string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages       []chatMessage `json:"messages"`
	System         string        `json:"system"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat string        `json:"response_format"`
}

type listResponse struct {
	Completions []*model.Record `json:"completions"`
}

// --- Handlers ---

func (h *Handler) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	fields := h.validate(w, r, &req, govalidator.MapData{
		"prompt":          []string{"required"},
		"response_format": []string{"in:" + formatText + "," + formatJSONObject},
	})
	if _, ok := fields["body"]; ok {
		writeValidation(w, r, fields)
		return
	}
	if fields == nil {
		fields = url.Values{}
	}
	if _, ok := fields["prompt"]; !ok {
		if strings.TrimSpace(req.Prompt) == "" {
			fields.Add("prompt", "The prompt field is required")
		} else {
			h.checkLength(fields, "prompt", req.Prompt)
		}
	}
	h.checkLength(fields, "system", req.System)
	checkMaxTokens(fields, req.MaxTokens)
	if len(fields) > 0 {
		writeValidation(w, r, fields)
		return
	}

	h.complete(w, r, &relay.Prompt{
		RequestID: middleware.GetReqID(r.Context()),
		System:    req.System,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: req.Prompt}},
		MaxTokens: req.MaxTokens,
		JSON:      req.ResponseFormat == formatJSONObject,
	})
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	fields := h.validate(w, r, &req, govalidator.MapData{
		"messages":        []string{"required"},
		"response_format": []string{"in:" + formatText + "," + formatJSONObject},
	})
	if _, ok := fields["body"]; ok {
		writeValidation(w, r, fields)
		return
	}
	if fields == nil {
		fields = url.Values{}
	}
	h.checkMessages(fields, req.Messages)
	h.checkLength(fields, "system", req.System)
	checkMaxTokens(fields, req.MaxTokens)
	if len(fields) > 0 {
		writeValidation(w, r, fields)
		return
	}

	msgs := make([]llm.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = llm.Message{Role: llm.Role(m.Role), Content: m.Content}
	}
	h.complete(w, r, &relay.Prompt{
		RequestID: middleware.GetReqID(r.Context()),
		System:    req.System,
		Messages:  msgs,
		MaxTokens: req.MaxTokens,
		JSON:      req.ResponseFormat == formatJSONObject,
	})
}

// complete runs one relay call under the request context and writes the
// outcome.
func (h *Handler) complete(w http.ResponseWriter, r *http.Request, p *relay.Prompt) {
	res, err := h.relay.Complete(r.Context(), p)
	if err != nil {
		writeLLMError(w, r, err)
		return
	}
	writeCompletion(w, res)
}

func (h *Handler) handleListCompletions(w http.ResponseWriter, r *http.Request) {
	audit := h.relay.Audit()
	if audit == nil {
		writeError(w, r, http.StatusNotFound, TypeNotFound, "audit log is disabled; set LLMRELAY_AUDIT_DB to enable it")
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			writeValidation(w, r, url.Values{"limit": {fmt.Sprintf("The limit field must be between 1 and %d", maxListLimit)}})
			return
		}
		limit = n
	}

	records, err := audit.ListRecords(r.Context(), limit)
	if err != nil {
		h.log.WithField("error", err.Error()).Error("listing audit records")
		writeError(w, r, http.StatusInternalServerError, TypeInternal, "failed to list completions")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Completions: records})
}

func (h *Handler) handleGetCompletion(w http.ResponseWriter, r *http.Request) {
	audit := h.relay.Audit()
	if audit == nil {
		writeError(w, r, http.StatusNotFound, TypeNotFound, "audit log is disabled; set LLMRELAY_AUDIT_DB to enable it")
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := audit.GetRecord(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, TypeNotFound, "completion not found")
		return
	}
	if err != nil {
		h.log.WithField("error", err.Error()).Error("reading audit record")
		writeError(w, r, http.StatusInternalServerError, TypeInternal, "failed to read completion")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- Validation ---

// validate decodes the JSON body into data and applies rules. A body that
// is not JSON is reported under the "body" key.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request, data any, rules govalidator.MapData) url.Values {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	opts := govalidator.Options{
		Request: r,
		Data:    data,
		Rules:   rules,
	}
	e := govalidator.New(opts).ValidateJSON()
	if len(e) == 0 {
		return nil
	}
	if _, ok := e["_error"]; ok {
		return url.Values{"body": {"The request body must be a JSON object"}}
	}
	return e
}

// checkLength limits s to MaxPromptChars characters.
func (h *Handler) checkLength(fields url.Values, key, s string) {
	if utf8.RuneCountInString(s) > h.opts.MaxPromptChars {
		fields.Add(key, fmt.Sprintf("The %s field may not be greater than %d characters", key[strings.LastIndex(key, ".")+1:], h.opts.MaxPromptChars))
	}
}

func (h *Handler) checkMessages(fields url.Values, msgs []chatMessage) {
	if len(msgs) == 0 {
		if _, ok := fields["messages"]; !ok {
			fields.Add("messages", "The messages field is required")
		}
		return
	}
	for i, m := range msgs {
		key := fmt.Sprintf("messages.%d", i)
		switch llm.Role(m.Role) {
		case llm.RoleUser, llm.RoleAssistant:
		default:
			fields.Add(key+".role", "The role field must be one of user, assistant")
		}
		if strings.TrimSpace(m.Content) == "" {
			fields.Add(key+".content", "The content field is required")
		} else {
			h.checkLength(fields, key+".content", m.Content)
		}
	}
	if last := msgs[len(msgs)-1]; llm.Role(last.Role) != llm.RoleUser {
		fields.Add("messages", "The last message must have role user")
	}
}

func checkMaxTokens(fields url.Values, n int) {
	if n < 0 {
		fields.Add("max_tokens", "The max_tokens field must not be negative")
	}
}
