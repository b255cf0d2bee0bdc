// Package relay forwards validated prompts to the configured LLM provider.
//
// A Service applies the deployment's fixed model, temperature, token cap and
// timeout to every call. Each Complete makes exactly one provider call.
package relay

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jxucoder/llmrelay/internal/logging"
	"github.com/jxucoder/llmrelay/internal/metrics"
	"github.com/jxucoder/llmrelay/pkg/llm"
	"github.com/jxucoder/llmrelay/pkg/model"
	"github.com/jxucoder/llmrelay/pkg/store"
)

// auditTimeout bounds the audit write after the provider call has finished.
const auditTimeout = 5 * time.Second

// Options is the fixed per-deployment call configuration.
type Options struct {
	Model       string
	Temperature float64
	// MaxTokens caps every call. 0 leaves the provider default and accepts
	// any per-request value.
	MaxTokens int
	// Timeout bounds a single provider call. 0 means no relay deadline.
	Timeout time.Duration
}

// Prompt is one validated inbound request.
type Prompt struct {
	RequestID string
	System    string
	Messages  []llm.Message
	// MaxTokens is the caller's override, capped by Options.MaxTokens.
	MaxTokens int
	JSON      bool
}

// Chars returns the prompt length in characters, system text included.
func (p *Prompt) Chars() int {
	n := utf8.RuneCountInString(p.System)
	for _, m := range p.Messages {
		n += utf8.RuneCountInString(m.Content)
	}
	return n
}

// Result is a successful relayed completion.
type Result struct {
	ID           string
	RequestID    string
	Provider     string
	Model        string
	Content      string
	FinishReason string
	Usage        llm.Usage
	Latency      time.Duration
	CreatedAt    time.Time
}

// Service relays prompts to a single llm.Client.
type Service struct {
	client  llm.Client
	opts    Options
	metrics *metrics.Metrics
	audit   store.AuditStore
	log     logrus.FieldLogger
}

// New creates a Service. audit may be nil to disable the audit log. A nil
// metrics or logger gets a private default.
func New(client llm.Client, opts Options, m *metrics.Metrics, audit store.AuditStore, log logrus.FieldLogger) *Service {
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Service{
		client:  client,
		opts:    opts,
		metrics: m,
		audit:   audit,
		log:     log,
	}
}

// Options returns the call configuration.
func (s *Service) Options() Options { return s.opts }

// Provider returns the provider name.
func (s *Service) Provider() string { return s.client.Name() }

// Audit returns the audit store, or nil when disabled.
func (s *Service) Audit() store.AuditStore { return s.audit }

// Complete sends p to the provider. Failures are *llm.Error values. ctx is
// the parent of the provider call, so canceling it aborts the call.
func (s *Service) Complete(ctx context.Context, p *Prompt) (*Result, error) {
	provider := s.client.Name()
	if len(p.Messages) == 0 {
		return nil, &llm.Error{Kind: llm.KindInvalidRequest, Provider: provider, Message: "no messages"}
	}

	req := &llm.Request{
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.maxTokens(p.MaxTokens),
		System:      p.System,
		Messages:    p.Messages,
		JSON:        p.JSON,
	}

	callCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	id := "cmpl-" + uuid.NewString()
	start := time.Now()
	comp, err := s.client.Complete(callCtx, req)
	elapsed := time.Since(start)

	if err == nil && (comp == nil || comp.Content == "") {
		err = &llm.Error{Kind: llm.KindUpstream, Provider: provider, Message: "empty completion"}
	}
	if err != nil {
		e := llm.FromTransport(callCtx, provider, err)
		s.finish(ctx, id, p, req, nil, e, elapsed)
		return nil, e
	}

	res := &Result{
		ID:           id,
		RequestID:    p.RequestID,
		Provider:     provider,
		Model:        comp.Model,
		Content:      comp.Content,
		FinishReason: comp.FinishReason,
		Usage:        comp.Usage,
		Latency:      elapsed,
		CreatedAt:    time.Now().UTC(),
	}
	if res.Model == "" {
		res.Model = req.Model
	}
	s.finish(ctx, id, p, req, res, nil, elapsed)
	return res, nil
}

func (s *Service) maxTokens(override int) int {
	limit := s.opts.MaxTokens
	if override <= 0 {
		return limit
	}
	if limit > 0 && override > limit {
		return limit
	}
	return override
}

// finish records metrics, the audit entry and the log line for one call.
func (s *Service) finish(ctx context.Context, id string, p *Prompt, req *llm.Request, res *Result, callErr *llm.Error, elapsed time.Duration) {
	provider := s.client.Name()

	rec := &model.Record{
		ID:          id,
		RequestID:   p.RequestID,
		Provider:    provider,
		Model:       req.Model,
		Temperature: req.Temperature,
		PromptChars: p.Chars(),
		Messages:    len(p.Messages),
		JSON:        p.JSON,
		LatencyMS:   elapsed.Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}

	fields := logrus.Fields{
		"request_id":    p.RequestID,
		"completion_id": id,
		"provider":      provider,
		"model":         req.Model,
		"temperature":   req.Temperature,
		"prompt_chars":  rec.PromptChars,
		"latency_ms":    rec.LatencyMS,
	}

	if callErr != nil {
		s.metrics.ObserveProvider(provider, string(callErr.Kind), elapsed)
		rec.Outcome = model.OutcomeError
		rec.ErrorKind = string(callErr.Kind)
		rec.Status = callErr.StatusCode
		fields["outcome"] = model.OutcomeError
		fields["kind"] = callErr.Kind
		fields["transient"] = callErr.Transient()
		if callErr.StatusCode != 0 {
			fields["status"] = callErr.StatusCode
		}
		s.log.WithFields(fields).Warn("completion failed")
	} else {
		s.metrics.ObserveProvider(provider, "", elapsed)
		s.metrics.AddTokens(provider, res.Usage.PromptTokens, res.Usage.CompletionTokens)
		rec.Model = res.Model
		rec.Outcome = model.OutcomeSuccess
		rec.Status = 200
		rec.Usage = res.Usage
		rec.CreatedAt = res.CreatedAt
		fields["outcome"] = model.OutcomeSuccess
		fields["model"] = res.Model
		fields["finish_reason"] = res.FinishReason
		fields["total_tokens"] = res.Usage.TotalTokens
		s.log.WithFields(fields).Info("completion served")
	}

	s.record(ctx, rec)
}

// record writes rec to the audit log. A caller that went away is still
// audited; write failures are logged and never fail the request.
func (s *Service) record(ctx context.Context, rec *model.Record) {
	if s.audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()

	if err := s.audit.AddRecord(actx, rec); err != nil {
		s.log.WithFields(logrus.Fields{
			"completion_id": rec.ID,
			"error":         err.Error(),
		}).Error("writing audit record")
	}
}
