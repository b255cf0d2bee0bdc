// Package openai implements llm.Client using the OpenAI Chat Completions API.
package openai

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/jxucoder/llmrelay/pkg/llm"
)

const (
	// DefaultBaseURL is the public OpenAI endpoint.
	DefaultBaseURL  = "https://api.openai.com"
	completionsPath = "/v1/chat/completions"
	providerName    = "openai"
)

var _ llm.Client = (*Client)(nil)

// Client implements llm.Client using the OpenAI Chat Completions API.
type Client struct {
	apiKey string
	rest   *resty.Client
}

// New creates a client for the OpenAI API. baseURL defaults to
// DefaultBaseURL when empty; timeout bounds every HTTP exchange.
func New(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey: apiKey,
		rest:   llm.NewRESTClient(baseURL, timeout, nil).SetAuthToken(apiKey),
	}
}

// WithLogger sends transport warnings to log.
func (c *Client) WithLogger(log logrus.FieldLogger) *Client {
	c.rest.SetLogger(log)
	return c
}

func (c *Client) Name() string { return providerName }

func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Completion, error) {
	var result apiResponse
	if err := llm.PostJSON(ctx, c.rest, providerName, c.apiKey, completionsPath, nil, buildRequest(req), &result); err != nil {
		return nil, err
	}

	if len(result.Choices) == 0 {
		return nil, &llm.Error{Kind: llm.KindUpstream, Provider: providerName, Message: "no choices in response"}
	}
	choice := result.Choices[0]
	content := ""
	if choice.Message.Content != nil {
		content = *choice.Message.Content
	}
	if strings.TrimSpace(content) == "" {
		return nil, &llm.Error{
			Kind:     llm.KindUpstream,
			Provider: providerName,
			Message:  "empty completion (finish_reason " + choice.FinishReason + ")",
		}
	}

	model := result.Model
	if model == "" {
		model = req.Model
	}
	total := result.Usage.TotalTokens
	if total == 0 {
		total = result.Usage.PromptTokens + result.Usage.CompletionTokens
	}
	return &llm.Completion{
		ID:           result.ID,
		Model:        model,
		Content:      content,
		FinishReason: choice.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      total,
		},
	}, nil
}

// --- wire types ---

type apiRequest struct {
	Model          string          `json:"model"`
	Messages       []apiMessage    `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type apiResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Choices []apiChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiChoice struct {
	Message struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

func buildRequest(req *llm.Request) apiRequest {
	out := apiRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		out.Messages = append(out.Messages, apiMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, apiMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.JSON {
		out.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return out
}
