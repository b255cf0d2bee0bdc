// Package model holds the data types persisted by llmrelay.
package model

import (
	"time"

	"github.com/jxucoder/llmrelay/pkg/llm"
)

// Outcome is the result of a relayed completion.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Record is one audit log entry. It describes a completion call without
// storing the prompt or the generated text.
type Record struct {
	ID          string  `json:"id"`
	RequestID   string  `json:"request_id"`
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	PromptChars int     `json:"prompt_chars"`
	Messages    int     `json:"messages"`
	JSON        bool    `json:"json"`
	Outcome     Outcome `json:"outcome"`
	ErrorKind   string  `json:"error_kind,omitempty"`
	// Status is the provider HTTP status, 0 when no response arrived.
	Status    int       `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	Usage     llm.Usage `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}
