package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind categorizes a provider failure.
type Kind string

const (
	// KindInvalidRequest means the provider rejected the caller's input.
	KindInvalidRequest Kind = "invalid_request"
	// KindConfiguration means the deployment is misconfigured (bad key, unknown model).
	KindConfiguration Kind = "configuration"
	KindRateLimited   Kind = "rate_limited"
	KindTimeout       Kind = "timeout"
	// KindUnavailable covers network failures and provider overload.
	KindUnavailable Kind = "unavailable"
	// KindUpstream is a provider-side fault: 5xx or an unusable payload.
	KindUpstream Kind = "upstream"
	// KindCanceled means the caller went away before the provider answered.
	KindCanceled Kind = "canceled"
)

// Error is the typed failure returned by every Client.
type Error struct {
	Kind     Kind
	Provider string
	// StatusCode is the provider's HTTP status, 0 for transport failures.
	StatusCode int
	// Code is the provider's machine-readable error code, if any.
	Code    string
	Message string
	// RetryAfter is the provider's hint for rate-limited responses.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the same request may succeed later.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindUnavailable:
		return true
	}
	return false
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// FromStatus classifies a non-2xx provider response.
func FromStatus(provider string, status int, code, message string) *Error {
	e := &Error{Provider: provider, StatusCode: status, Code: code, Message: message}
	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Kind = KindTimeout
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		status == http.StatusNotFound || status == http.StatusPaymentRequired:
		e.Kind = KindConfiguration
	case status == http.StatusServiceUnavailable || status == 529:
		e.Kind = KindUnavailable
	case status >= 500:
		e.Kind = KindUpstream
	case status >= 400:
		e.Kind = KindInvalidRequest
	default:
		e.Kind = KindUpstream
	}
	return e
}

// FromTransport classifies an error raised before a provider status was
// received. ctx is the context the call was made with.
func FromTransport(ctx context.Context, provider string, err error) *Error {
	if e, ok := AsError(err); ok {
		return e
	}
	e := &Error{Provider: provider, Err: err}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		e.Kind = KindCanceled
		e.Message = "request canceled"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.Kind = KindTimeout
		e.Message = "provider did not respond in time"
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Kind = KindTimeout
		e.Message = "provider did not respond in time"
	default:
		e.Kind = KindUnavailable
		e.Message = "provider unreachable"
	}
	return e
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. It returns 0 when the header is absent or unparseable.
func ParseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Scrub replaces every occurrence of secret in s. Providers sometimes echo
// part of the credential in auth errors, so the full key and its
// distinctive tail are both removed.
func Scrub(s, secret string) string {
	if secret == "" || s == "" {
		return s
	}
	s = strings.ReplaceAll(s, secret, "[redacted]")
	if len(secret) > 8 {
		s = strings.ReplaceAll(s, secret[len(secret)-4:], "****")
	}
	return s
}
