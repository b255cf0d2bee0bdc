package httpapi

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jxucoder/llmrelay/pkg/llm"
	"github.com/jxucoder/llmrelay/pkg/model"
	"github.com/jxucoder/llmrelay/pkg/store"
)

// stubLLM answers every call with fn, or echoes the last message.
type stubLLM struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req *llm.Request) (*llm.Completion, error)

	mu   sync.Mutex
	last *llm.Request
}

func (s *stubLLM) Name() string { return "stub" }

func (s *stubLLM) Complete(ctx context.Context, req *llm.Request) (*llm.Completion, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.last = req
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, req)
	}
	msg := req.Messages[len(req.Messages)-1]
	return &llm.Completion{
		ID:           "prov-1",
		Model:        req.Model,
		Content:      "echo: " + msg.Content,
		FinishReason: "stop",
		Usage:        llm.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}, nil
}

func (s *stubLLM) lastRequest() *llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// failWith returns a stub whose every call fails with err.
func failWith(err error) *stubLLM {
	return &stubLLM{fn: func(context.Context, *llm.Request) (*llm.Completion, error) {
		return nil, err
	}}
}

// memStore is an in-memory audit store.
type memStore struct {
	mu      sync.Mutex
	records map[string]*model.Record
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*model.Record{}}
}

func (m *memStore) AddRecord(_ context.Context, rec *model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *memStore) GetRecord(_ context.Context, id string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) ListRecords(_ context.Context, limit int) ([]*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }
