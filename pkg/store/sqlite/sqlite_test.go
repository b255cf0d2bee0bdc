package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jxucoder/llmrelay/pkg/llm"
	"github.com/jxucoder/llmrelay/pkg/model"
	"github.com/jxucoder/llmrelay/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rec := &model.Record{
		ID:          "cmpl-abc",
		RequestID:   "req-1",
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Temperature: 0,
		PromptChars: 42,
		Messages:    1,
		JSON:        true,
		Outcome:     model.OutcomeSuccess,
		Status:      200,
		LatencyMS:   350,
		Usage:       llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		CreatedAt:   now,
	}
	if err := s.AddRecord(ctx, rec); err != nil {
		t.Fatalf("add record: %v", err)
	}

	got, err := s.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if got.RequestID != "req-1" || got.Model != "gpt-4o-mini" || got.Outcome != model.OutcomeSuccess {
		t.Fatalf("unexpected record: %+v", got)
	}
	if !got.JSON || got.PromptChars != 42 || got.Messages != 1 {
		t.Fatalf("request shape not preserved: %+v", got)
	}
	if got.Usage != rec.Usage {
		t.Fatalf("usage = %+v; want %+v", got.Usage, rec.Usage)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v; want %v", got.CreatedAt, now)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRecord(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
}

func TestAddRecordSetsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	rec := &model.Record{ID: "cmpl-1", Provider: "openai", Model: "m", Outcome: model.OutcomeError, ErrorKind: "timeout", Status: 504}
	if err := s.AddRecord(context.Background(), rec); err != nil {
		t.Fatalf("add record: %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("CreatedAt was not set")
	}

	got, err := s.GetRecord(context.Background(), "cmpl-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if got.ErrorKind != "timeout" || got.Status != 504 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestDuplicateID(t *testing.T) {
	s := newTestStore(t)
	rec := &model.Record{ID: "dup", Provider: "openai", Model: "m", Outcome: model.OutcomeSuccess}
	if err := s.AddRecord(context.Background(), rec); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := s.AddRecord(context.Background(), rec); err == nil {
		t.Fatal("expected error inserting duplicate id")
	}
}

func TestListRecordsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		rec := &model.Record{
			ID:        fmt.Sprintf("cmpl-%d", i),
			Provider:  "openai",
			Model:     "m",
			Outcome:   model.OutcomeSuccess,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AddRecord(ctx, rec); err != nil {
			t.Fatalf("add record %d: %v", i, err)
		}
	}

	got, err := s.ListRecords(ctx, 3)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d; want 3", len(got))
	}
	for i, want := range []string{"cmpl-4", "cmpl-3", "cmpl-2"} {
		if got[i].ID != want {
			t.Errorf("records[%d] = %s; want %s", i, got[i].ID, want)
		}
	}

	empty, err := s.ListRecords(ctx, 0)
	if err != nil {
		t.Fatalf("list with zero limit: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("zero limit = %v; want empty slice", empty)
	}
}

func TestConcurrentAdds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.AddRecord(ctx, &model.Record{
				ID:       fmt.Sprintf("c-%02d", i),
				Provider: "openai",
				Model:    "m",
				Outcome:  model.OutcomeSuccess,
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent add: %v", err)
		}
	}

	got, err := s.ListRecords(ctx, 100)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("len = %d; want 20", len(got))
	}
}
