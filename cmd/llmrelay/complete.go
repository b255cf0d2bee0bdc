package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

type completeOptions struct {
	System    string
	JSON      bool
	MaxTokens int
	Timeout   time.Duration
	Verbose   bool
}

var completeOpts completeOptions

var completeCmd = &cobra.Command{
	Use:   "complete [prompt]",
	Short: "Send a prompt to a running llmrelay server",
	Long: `Send a prompt to a running llmrelay server and print the completion.
With no argument, or "-", the prompt is read from stdin.

  llmrelay complete "Name three primary colors" --json
  echo "Summarize this" | llmrelay complete --server http://relay:8000`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && stdinIsTerminal() {
			return errors.New("pass a prompt argument or pipe one on stdin")
		}
		prompt, err := readPrompt(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return runComplete(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), serverURL, prompt, completeOpts)
	},
}

func init() {
	completeCmd.Flags().StringVar(&completeOpts.System, "system", "", "System instruction sent with the prompt")
	completeCmd.Flags().BoolVar(&completeOpts.JSON, "json", false, "Ask for a single JSON object")
	completeCmd.Flags().IntVar(&completeOpts.MaxTokens, "max-tokens", 0, "Cap generated tokens (0 = server default)")
	completeCmd.Flags().DurationVar(&completeOpts.Timeout, "timeout", 2*time.Minute, "Request timeout")
	completeCmd.Flags().BoolVarP(&completeOpts.Verbose, "verbose", "v", false, "Print id, model and token usage to stderr")
	rootCmd.AddCommand(completeCmd)
}

type completeRequest struct {
	Prompt         string `json:"prompt"`
	System         string `json:"system,omitempty"`
	MaxTokens      int    `json:"max_tokens,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type completeResponse struct {
	ID        string `json:"id"`
	Model     string `json:"model"`
	Content   string `json:"content"`
	LatencyMS int64  `json:"latency_ms"`
	Usage     struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error     string              `json:"error"`
	Type      string              `json:"type"`
	RequestID string              `json:"request_id"`
	Fields    map[string][]string `json:"fields"`
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}
	return prompt, nil
}

func runComplete(ctx context.Context, out, errOut io.Writer, server, prompt string, opts completeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	body := completeRequest{
		Prompt:    prompt,
		System:    opts.System,
		MaxTokens: opts.MaxTokens,
	}
	if opts.JSON {
		body.ResponseFormat = "json_object"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(server, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	var result completeResponse
	var apiErr apiError
	resp, err := client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post("/api/completions")
	if err != nil {
		return fmt.Errorf("contacting %s: %w", server, err)
	}
	if resp.IsError() {
		return formatAPIError(resp.StatusCode(), &apiErr)
	}

	fmt.Fprintln(out, result.Content)
	if opts.Verbose {
		fmt.Fprintf(errOut, "id=%s model=%s latency=%dms tokens=%d (prompt %d, completion %d)\n",
			result.ID, result.Model, result.LatencyMS,
			result.Usage.TotalTokens, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	}
	return nil
}

func formatAPIError(status int, e *apiError) error {
	if e.Error == "" {
		return fmt.Errorf("server returned HTTP %d", status)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, HTTP %d)", e.Error, e.Type, status)
	for field, msgs := range e.Fields {
		fmt.Fprintf(&b, "\n  %s: %s", field, strings.Join(msgs, "; "))
	}
	return errors.New(b.String())
}

// stdinIsTerminal reports whether stdin is interactive.
func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
