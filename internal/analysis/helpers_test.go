package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errTransport = errors.New("connection reset by peer")

// fakeCompleter routes requests to per-stage handlers and counts calls.
type fakeCompleter struct {
	mu       sync.Mutex
	handlers map[string]func(req CompletionRequest) (string, error)
	calls    map[string]int
	requests []CompletionRequest
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{
		handlers: make(map[string]func(req CompletionRequest) (string, error)),
		calls:    make(map[string]int),
	}
}

func (f *fakeCompleter) on(stage string, h func(req CompletionRequest) (string, error)) *fakeCompleter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[stage] = h
	return f
}

func (f *fakeCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls[req.Stage]++
	f.requests = append(f.requests, req)
	h := f.handlers[req.Stage]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if h == nil {
		return "", errors.New("no handler for stage " + req.Stage)
	}
	return h(req)
}

func (f *fakeCompleter) count(stage string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[stage]
}

func (f *fakeCompleter) requestsFor(stage string) []CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []CompletionRequest
	for _, r := range f.requests {
		if r.Stage == stage {
			out = append(out, r)
		}
	}
	return out
}

func mustJSON(t testing.TB, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func reply(t testing.TB, v any) func(CompletionRequest) (string, error) {
	body := mustJSON(t, v)
	return func(CompletionRequest) (string, error) { return body, nil }
}

func fail(err error) func(CompletionRequest) (string, error) {
	return func(CompletionRequest) (string, error) { return "", err }
}

func sectionsReply(pairs ...string) map[string]any {
	sections := make([]map[string]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		sections = append(sections, map[string]string{"title": pairs[i], "content": pairs[i+1]})
	}
	return map[string]any{"sections": sections}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAnalyzer(t testing.TB, c Completer, mutate ...func(*Config)) *Analyzer {
	t.Helper()
	cfg := Config{Completer: c, Logger: quietLogger()}
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}
