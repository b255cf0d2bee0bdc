package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jxucoder/llmrelay/pkg/llm"
	"github.com/jxucoder/llmrelay/pkg/llm/anthropic"
)

const testKey = "sk-ant-REDACTED"

func newTestServer(t *testing.T, handler http.HandlerFunc) *anthropic.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return anthropic.New(testKey, srv.URL, 5*time.Second)
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func readBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(body, &req))
	return req
}

func TestComplete_SimpleText(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, testKey, r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Empty(t, r.Header.Get("Authorization"))

		req := readBody(t, r)
		assert.Equal(t, "claude-3-5-haiku-latest", req["model"])
		assert.Equal(t, float64(0), req["temperature"])
		assert.Equal(t, float64(4096), req["max_tokens"])
		assert.Equal(t, "be brief", req["system"])

		msgs, ok := req["messages"].([]any)
		require.True(t, ok)
		require.Len(t, msgs, 1)

		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":    "msg_1",
			"model": "claude-3-5-haiku-20241022",
			"content": []map[string]any{
				{"type": "text", "text": "Hello"},
				{"type": "text", "text": " there"},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 12, "output_tokens": 3},
		})
	})

	got, err := client.Complete(context.Background(), &llm.Request{
		Model:    "claude-3-5-haiku-latest",
		System:   "be brief",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", got.Content)
	assert.Equal(t, "end_turn", got.FinishReason)
	assert.Equal(t, llm.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, got.Usage)
	assert.Equal(t, "anthropic", client.Name())
}

func TestComplete_JSONModeAppendsInstruction(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		req := readBody(t, r)
		system, _ := req["system"].(string)
		assert.Contains(t, system, "be brief")
		assert.Contains(t, system, "JSON object")
		assert.Equal(t, float64(100), req["max_tokens"])

		writeJSON(t, w, http.StatusOK, map[string]any{
			"content":     []map[string]any{{"type": "text", "text": `{"a":1}`}},
			"stop_reason": "end_turn",
		})
	})

	got, err := client.Complete(context.Background(), &llm.Request{
		Model:     "claude-3-5-haiku-latest",
		System:    "be brief",
		MaxTokens: 100,
		JSON:      true,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-latest", got.Model)
}

func TestComplete_Overloaded(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, 529, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"},
		})
	})

	_, err := client.Complete(context.Background(), &llm.Request{
		Model:    "claude-3-5-haiku-latest",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	e, ok := llm.AsError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindUnavailable, e.Kind)
	assert.Equal(t, "overloaded_error", e.Code)
	assert.Equal(t, "Overloaded", e.Message)
}

func TestComplete_NoTextContent(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"content":     []map[string]any{},
			"stop_reason": "max_tokens",
		})
	})

	_, err := client.Complete(context.Background(), &llm.Request{
		Model:    "claude-3-5-haiku-latest",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	assert.Equal(t, llm.KindUpstream, llm.KindOf(err))
}
