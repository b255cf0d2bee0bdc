package llm

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// maxErrorBody bounds how much of a non-JSON error body is kept.
const maxErrorBody = 512

// NewRESTClient returns a resty client for a JSON provider API rooted at
// baseURL. Retries are disabled: a request reaches the provider at most once.
// resty's own warnings go to log; nil means the logrus standard logger.
func NewRESTClient(baseURL string, timeout time.Duration, log logrus.FieldLogger) *resty.Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return resty.New().
		SetLogger(log).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// errorBody matches the error envelope used by both OpenAI and Anthropic.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// PostJSON sends body to path and decodes a 2xx response into out. Every
// failure is returned as *Error with secret scrubbed from provider text.
func PostJSON(ctx context.Context, rc *resty.Client, provider, secret, path string, headers map[string]string, body, out any) error {
	var apiErr errorBody
	resp, err := rc.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		SetResult(out).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		// A response arrived but its body could not be decoded.
		if resp != nil && resp.RawResponse != nil && ctx.Err() == nil && resp.IsSuccess() {
			return &Error{
				Kind:       KindUpstream,
				Provider:   provider,
				StatusCode: resp.StatusCode(),
				Message:    "malformed provider response",
				Err:        err,
			}
		}
		return FromTransport(ctx, provider, err)
	}

	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = truncate(strings.TrimSpace(string(resp.Body())), maxErrorBody)
		}
		code := apiErr.Error.Type
		if s, ok := apiErr.Error.Code.(string); ok && s != "" {
			code = s
		}
		e := FromStatus(provider, resp.StatusCode(), code, Scrub(msg, secret))
		e.RetryAfter = ParseRetryAfter(resp.Header())
		return e
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}
