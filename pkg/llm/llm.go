// Package llm defines the provider-neutral completion interface used by llmrelay.
package llm

import "context"

// Role identifies the author of a message in a completion request.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn sent to the provider.
type Message struct {
	Role    Role
	Content string
}

// Request is one completion call. Model and Temperature are always sent to
// the provider, including a zero temperature.
type Request struct {
	Model       string
	Temperature float64
	// MaxTokens caps generated tokens. Zero leaves the provider default.
	MaxTokens int
	System    string
	Messages  []Message
	// JSON asks the provider to return a single JSON object.
	JSON bool
}

// Usage reports token accounting returned by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a successful provider response.
type Completion struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	Usage        Usage
}

// Client issues completion calls against a hosted provider.
// Implementations return *Error for every failure.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Completion, error)
	// Name is the provider identifier, e.g. "openai".
	Name() string
}
