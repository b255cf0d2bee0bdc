// Package anthropic implements llm.Client using the Anthropic Messages API.
package anthropic

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/jxucoder/llmrelay/pkg/llm"
)

const (
	// DefaultBaseURL is the public Anthropic endpoint.
	DefaultBaseURL = "https://api.anthropic.com"
	messagesPath   = "/v1/messages"
	apiVersion     = "2023-06-01"
	providerName   = "anthropic"

	// defaultMaxTokens is sent when the request leaves MaxTokens unset;
	// the Messages API requires the field.
	defaultMaxTokens = 4096

	jsonInstruction = "Respond with a single valid JSON object and nothing else."
)

var _ llm.Client = (*Client)(nil)

// Client implements llm.Client using the Anthropic Messages API.
type Client struct {
	apiKey string
	rest   *resty.Client
}

// New creates a client for the Anthropic API. baseURL defaults to
// DefaultBaseURL when empty.
func New(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey: apiKey,
		rest:   llm.NewRESTClient(baseURL, timeout, nil),
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
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": apiVersion,
	}
	if err := llm.PostJSON(ctx, c.rest, providerName, c.apiKey, messagesPath, headers, buildRequest(req), &result); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, &llm.Error{
			Kind:     llm.KindUpstream,
			Provider: providerName,
			Message:  "no text content in response (stop_reason " + result.StopReason + ")",
		}
	}

	model := result.Model
	if model == "" {
		model = req.Model
	}
	return &llm.Completion{
		ID:           result.ID,
		Model:        model,
		Content:      text.String(),
		FinishReason: result.StopReason,
		Usage: llm.Usage{
			PromptTokens:     result.Usage.InputTokens,
			CompletionTokens: result.Usage.OutputTokens,
			TotalTokens:      result.Usage.InputTokens + result.Usage.OutputTokens,
		},
	}, nil
}

// --- wire types ---

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func buildRequest(req *llm.Request) apiRequest {
	out := apiRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.System,
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaultMaxTokens
	}
	if req.JSON {
		if out.System != "" {
			out.System += "\n\n"
		}
		out.System += jsonInstruction
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, apiMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
