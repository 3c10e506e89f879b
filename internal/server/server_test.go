package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/proposer/internal/config"
	"github.com/jackzampolin/proposer/internal/home"
	"github.com/jackzampolin/proposer/internal/prompts"
	"github.com/jackzampolin/proposer/internal/providers"
	"github.com/jackzampolin/proposer/internal/server/endpoints"
)

const testConfig = `
analysis:
  chunk_size: 2000
prompts:
  overrides:
    - key: analysis.identify.system
      text: "Find the sections."
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	cm, err := config.NewManager(cfgPath)
	if err != nil {
		t.Fatalf("config.NewManager() error = %v", err)
	}
	h, err := home.New(dir)
	if err != nil {
		t.Fatal(err)
	}

	srv, err := New(Config{
		Host:          "127.0.0.1",
		Port:          "0",
		ConfigManager: cm,
		Home:          h,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if srv.callStore != nil {
			srv.callStore.Close()
		}
	})
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func TestNew_Defaults(t *testing.T) {
	srv := newTestServer(t)

	if srv.Addr() != "127.0.0.1:0" {
		t.Errorf("Addr() = %q", srv.Addr())
	}
	if srv.IsRunning() {
		t.Error("server should not be running before Start")
	}
	if srv.JobManager() == nil {
		t.Error("JobManager() is nil")
	}
	if srv.callStore == nil {
		t.Error("llm call store should be open when llmcalls.enabled is true")
	}
	if len(srv.Registry().ListLLM()) != 0 {
		t.Errorf("expected no providers without API keys, got %v", srv.Registry().ListLLM())
	}
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t)

	t.Run("health", func(t *testing.T) {
		rec := do(t, srv, "GET", "/health", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp endpoints.HealthResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Status != "ok" {
			t.Errorf("Status = %q, want ok", resp.Status)
		}
	})

	t.Run("ready without provider", func(t *testing.T) {
		rec := do(t, srv, "GET", "/ready", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("analyze without provider", func(t *testing.T) {
		rec := do(t, srv, "POST", "/api/analyze", map[string]any{"content": "# Pricing\n\nNew price"})
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("prompt override from config", func(t *testing.T) {
		rec := do(t, srv, "GET", "/api/prompts/analysis.identify.system", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var p prompts.ResolvedPrompt
		if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
			t.Fatal(err)
		}
		if !p.IsOverride || p.Text != "Find the sections." {
			t.Errorf("got %+v, want override text", p)
		}
	})

	t.Run("unknown prompt", func(t *testing.T) {
		rec := do(t, srv, "GET", "/api/prompts/nope", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("config", func(t *testing.T) {
		rec := do(t, srv, "GET", "/api/config", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "analysis.chunk_size") {
			t.Errorf("expected analysis.chunk_size in %s", rec.Body.String())
		}
	})

	t.Run("llm calls", func(t *testing.T) {
		rec := do(t, srv, "GET", "/api/llmcalls", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("swagger", func(t *testing.T) {
		rec := do(t, srv, "GET", "/swagger.json", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var doc map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
			t.Fatalf("swagger.json is not JSON: %v", err)
		}
		if _, ok := doc["paths"]; !ok {
			t.Error("swagger.json has no paths")
		}
	})

	t.Run("unknown analysis", func(t *testing.T) {
		rec := do(t, srv, "GET", "/api/analyses/missing", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestServer_AnalyzeWithProvider(t *testing.T) {
	srv := newTestServer(t)

	mock := providers.NewMockClient()
	mock.Handler = func(req *providers.ChatRequest) (string, error) {
		schema := ""
		if req.ResponseFormat != nil {
			schema = string(req.ResponseFormat.JSONSchema)
		}
		switch {
		case strings.Contains(schema, "identified_sections"):
			return `{"sections":[{"title":"Pricing","content":"New price"}]}`, nil
		case strings.Contains(schema, "merged_content"):
			return `{"content":"merged"}`, nil
		}
		return "", fmt.Errorf("unexpected request")
	}
	srv.Registry().RegisterLLM("openrouter", mock)

	rec := do(t, srv, "POST", "/api/analyze", map[string]any{
		"content":  "# Pricing\n\nNew price",
		"sections": []map[string]any{{"id": "s2", "title": "Pricing", "content": "Old"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp endpoints.AnalyzeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Sections) != 1 || resp.Sections[0].ID != "s2" {
		t.Fatalf("sections = %+v, want s2", resp.Sections)
	}
	if !strings.Contains(resp.Sections[0].Content, "merged") {
		t.Errorf("content = %q, want merged", resp.Sections[0].Content)
	}
	if len(resp.Unmatched) != 0 {
		t.Errorf("unmatched = %+v, want none", resp.Unmatched)
	}

	rec = do(t, srv, "GET", "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", rec.Code)
	}
}

func TestServer_Lifecycle(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	var addr string
	deadline := time.Now().Add(5 * time.Second)
	for addr == "" && time.Now().Before(deadline) {
		addr = srv.ListenAddr()
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		cancel()
		t.Fatal("server did not start listening")
	}

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		cancel()
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
	if !srv.IsRunning() {
		t.Error("IsRunning() = false while serving")
	}

	if err := srv.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}
