package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestReadPrompt(t *testing.T) {
	got, err := readPrompt([]string{"hello"}, strings.NewReader("ignored"))
	if err != nil || got != "hello" {
		t.Errorf("readPrompt(arg) = %q, %v", got, err)
	}

	got, err = readPrompt([]string{"-"}, strings.NewReader("  from stdin\n"))
	if err != nil || got != "from stdin" {
		t.Errorf("readPrompt(-) = %q, %v", got, err)
	}

	if _, err := readPrompt(nil, strings.NewReader("   ")); err == nil {
		t.Error("empty stdin should fail")
	}
}

func TestRunComplete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/completions" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body completeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if body.Prompt != "2+2?" || body.System != "math" || body.ResponseFormat != "json_object" || body.MaxTokens != 10 {
			t.Errorf("request body = %+v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-1","model":"gpt-4o-mini","content":"{\"answer\":4}","latency_ms":12,"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`))
	}))
	defer srv.Close()

	var out, errOut bytes.Buffer
	opts := completeOptions{System: "math", JSON: true, MaxTokens: 10, Timeout: 5 * time.Second, Verbose: true}
	if err := runComplete(context.Background(), &out, &errOut, srv.URL+"/", "2+2?", opts); err != nil {
		t.Fatalf("runComplete: %v", err)
	}
	if out.String() != "{\"answer\":4}\n" {
		t.Errorf("stdout = %q", out.String())
	}
	if !strings.Contains(errOut.String(), "id=cmpl-1") || !strings.Contains(errOut.String(), "tokens=8") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRunComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"request validation failed","type":"validation_error","fields":{"prompt":["The prompt field is required"]}}`))
	}))
	defer srv.Close()

	err := runComplete(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, srv.URL, "x", completeOptions{Timeout: 5 * time.Second})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"validation_error", "HTTP 400", "prompt: The prompt field is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should contain %q", err.Error(), want)
		}
	}
}

func TestRunComplete_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := runComplete(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, srv.URL, "x", completeOptions{Timeout: 5 * time.Second})
	if err == nil || !strings.Contains(err.Error(), "HTTP 502") {
		t.Fatalf("err = %v; want HTTP 502", err)
	}
}
