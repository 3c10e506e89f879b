package llmcall

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/proposer/internal/providers"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "calls.db"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFromChatResult(t *testing.T) {
	if FromChatResult(nil, RecordOptions{}) != nil {
		t.Fatal("expected nil for nil result")
	}

	temp := 0.2
	call := FromChatResult(&providers.ChatResult{
		Content:          `{"sections":[]}`,
		PromptTokens:     120,
		CompletionTokens: 30,
		CostUSD:          0.001,
		TotalTime:        1500 * time.Millisecond,
		Provider:         "openrouter",
		ModelUsed:        "openai/gpt-4o-mini",
		Attempts:         2,
		Success:          false,
		ErrorMessage:     "boom",
	}, RecordOptions{RunID: "run-1", Stage: "identify", PromptKey: "analysis.identify.user", Temperature: &temp})

	if call.ID == "" {
		t.Error("expected generated ID")
	}
	if call.LatencyMs != 1500 {
		t.Errorf("LatencyMs = %d, want 1500", call.LatencyMs)
	}
	if call.RunID != "run-1" || call.Stage != "identify" {
		t.Errorf("unexpected context: %+v", call)
	}
	if call.Error != "boom" {
		t.Errorf("Error = %q, want boom", call.Error)
	}
	if call.Temperature == nil || *call.Temperature != 0.2 {
		t.Errorf("Temperature = %v", call.Temperature)
	}
}

func TestStore_InsertGetList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	temp := 0.0
	calls := []*Call{
		{ID: "a", Timestamp: base, RunID: "r1", Stage: "identify", PromptKey: "k.identify", Provider: "mock", Model: "m", Success: true, Temperature: &temp},
		{ID: "b", Timestamp: base.Add(time.Second), RunID: "r1", Stage: "match", PromptKey: "k.match", Provider: "mock", Model: "m", Success: false, Error: "bad json"},
		{ID: "c", Timestamp: base.Add(2 * time.Second), RunID: "r2", Stage: "match", PromptKey: "k.match", Provider: "mock", Model: "m", Success: true},
	}
	if err := store.Insert(ctx, calls...); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := store.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Error != "bad json" || got.Success {
		t.Errorf("unexpected call: %+v", got)
	}
	if !got.Timestamp.Equal(base.Add(time.Second)) {
		t.Errorf("Timestamp = %v", got.Timestamp)
	}
	if got.Temperature != nil {
		t.Errorf("expected nil temperature, got %v", *got.Temperature)
	}

	a, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if a.Temperature == nil || *a.Temperature != 0 {
		t.Errorf("expected explicit zero temperature, got %v", a.Temperature)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	t.Run("filter by run newest first", func(t *testing.T) {
		list, err := store.List(ctx, QueryFilter{RunID: "r1"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 2 || list[0].ID != "b" || list[1].ID != "a" {
			t.Errorf("unexpected list: %+v", list)
		}
	})

	t.Run("filter by success", func(t *testing.T) {
		ok := true
		list, err := store.List(ctx, QueryFilter{Success: &ok})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 2 {
			t.Errorf("len = %d, want 2", len(list))
		}
	})

	t.Run("limit and offset", func(t *testing.T) {
		list, err := store.List(ctx, QueryFilter{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 1 || list[0].ID != "b" {
			t.Errorf("unexpected page: %+v", list)
		}
	})

	t.Run("time window", func(t *testing.T) {
		after := base
		list, err := store.List(ctx, QueryFilter{After: &after})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 2 {
			t.Errorf("len = %d, want 2", len(list))
		}
	})

	counts, err := store.CountByPromptKey(ctx, "")
	if err != nil {
		t.Fatalf("CountByPromptKey() error = %v", err)
	}
	if counts["k.match"] != 2 || counts["k.identify"] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestRecorder(t *testing.T) {
	store := openTestStore(t)
	rec := NewRecorder(RecorderConfig{Store: store, FlushInterval: time.Hour})
	rec.Start(context.Background())

	for i := 0; i < 5; i++ {
		rec.Record(&providers.ChatResult{Provider: "mock", Success: true}, RecordOptions{RunID: "run", PromptKey: "k"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rec.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	list, err := store.List(ctx, QueryFilter{RunID: "run"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 5 {
		t.Errorf("recorded %d calls, want 5", len(list))
	}

	rec.Record(&providers.ChatResult{Provider: "mock"}, RecordOptions{RunID: "late"})
	rec.Stop()
	list, _ = store.List(ctx, QueryFilter{RunID: "late"})
	if len(list) != 1 {
		t.Errorf("Stop should flush pending calls, got %d", len(list))
	}

	// Recording after Stop is dropped, not a panic.
	rec.Record(&providers.ChatResult{Provider: "mock"}, RecordOptions{})
	rec.Stop()
}

func TestRecorder_RecordAfterStopIsDropped(t *testing.T) {
	store := openTestStore(t)
	rec := NewRecorder(RecorderConfig{Store: store, FlushInterval: time.Hour})
	rec.Start(context.Background())
	rec.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Record(&providers.ChatResult{Provider: "mock"}, RecordOptions{RunID: "after-stop"})
		}()
	}
	wg.Wait()

	if err := rec.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() after Stop error = %v", err)
	}
	list, err := store.List(context.Background(), QueryFilter{RunID: "after-stop"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("recorded %d calls after Stop, want 0", len(list))
	}
}

func TestNilRecorder(t *testing.T) {
	var rec *Recorder
	rec.Record(&providers.ChatResult{}, RecordOptions{})
	rec.Stop()
	if err := rec.Flush(context.Background()); err != nil {
		t.Errorf("Flush() on nil recorder = %v", err)
	}
}
