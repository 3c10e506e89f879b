package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.LLMProviders["openrouter"].APIKey != "${OPENROUTER_API_KEY}" {
		t.Error("expected openrouter API key placeholder")
	}
	if got := cfg.Analysis.CallTimeoutDuration(); got != 30*time.Second {
		t.Errorf("CallTimeoutDuration() = %v, want 30s", got)
	}
	if got := cfg.Server.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %s", got)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")
		if result := ResolveEnvVars("${TEST_API_KEY}"); result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		if result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}"); result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		if result := ResolveEnvVars("literal-value"); result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_ToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "or-key-123")

	cfg := &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {Type: "openrouter", Model: "m", APIKey: "${TEST_OPENROUTER_KEY}", RateLimit: 60, Enabled: true},
			"literal":    {Type: "openai", APIKey: "direct-key", BaseURL: "http://localhost:1234"},
		},
	}

	reg := cfg.ToProviderRegistryConfig()
	if got := reg.LLMProviders["openrouter"]; got.APIKey != "or-key-123" || got.RateLimit != 60 || !got.Enabled {
		t.Errorf("unexpected openrouter config: %+v", got)
	}
	if got := reg.LLMProviders["literal"]; got.APIKey != "direct-key" || got.BaseURL != "http://localhost:1234" {
		t.Errorf("unexpected literal config: %+v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.ChunkSize = 0
	cfg.Analysis.MergeThreshold = 1.5
	cfg.Analysis.CallTimeout = "soon"
	cfg.Defaults.LLMProvider = "nope"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"chunk_size", "merge_threshold", "call_timeout", "nope"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestConfig_ValidateRejectsZeroConfidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.MergeThreshold = 0
	cfg.Analysis.SemanticMinConfidence = -0.1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for zero confidence settings")
	}
	for _, want := range []string{"merge_threshold", "semantic_min_confidence"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}

	cfg.Analysis.MergeThreshold = 1
	cfg.Analysis.SemanticMinConfidence = 0.01
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestPromptsCfg_OverrideMap(t *testing.T) {
	p := PromptsCfg{Overrides: []PromptOverride{
		{Key: "analysis.identify.system", Text: "a"},
		{Key: "", Text: "ignored"},
		{Key: "analysis.identify.system", Text: "b"},
	}}
	got := p.OverrideMap()
	if len(got) != 1 || got["analysis.identify.system"] != "b" {
		t.Errorf("OverrideMap() = %v", got)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("defaults without config file", func(t *testing.T) {
		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get(); !reflect.DeepEqual(got, DefaultConfig()) {
			t.Errorf("config = %+v, want defaults %+v", got, DefaultConfig())
		}
		if mgr.ConfigFile() != "" {
			t.Errorf("ConfigFile() = %s, want empty", mgr.ConfigFile())
		}
	})

	t.Run("finds config in search dir", func(t *testing.T) {
		path := writeConfig(t, "analysis:\n  chunk_size: 1500\n")
		mgr, err := NewManager("", filepath.Dir(path))
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Analysis.ChunkSize; got != 1500 {
			t.Errorf("ChunkSize = %d, want 1500", got)
		}
	})

	t.Run("partial file merges with defaults", func(t *testing.T) {
		path := writeConfig(t, `
analysis:
  chunk_size: 2000
  fallback_model: "anthropic/claude-sonnet-4"
prompts:
  overrides:
    - key: analysis.identify.system
      text: "custom"
`)
		mgr, err := NewManager(path)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.Analysis.ChunkSize != 2000 {
			t.Errorf("ChunkSize = %d, want 2000", cfg.Analysis.ChunkSize)
		}
		if cfg.Analysis.FallbackModel != "anthropic/claude-sonnet-4" {
			t.Errorf("FallbackModel = %s", cfg.Analysis.FallbackModel)
		}
		if cfg.Analysis.MergeThreshold != 0.7 {
			t.Errorf("MergeThreshold = %v, want default 0.7", cfg.Analysis.MergeThreshold)
		}
		if cfg.LLMProviders["openrouter"].RateLimit != 150 {
			t.Errorf("openrouter RateLimit = %d, want default 150", cfg.LLMProviders["openrouter"].RateLimit)
		}
		if got := cfg.Prompts.OverrideMap()["analysis.identify.system"]; got != "custom" {
			t.Errorf("override = %q, want custom", got)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("PROPOSER_ANALYSIS_CHUNK_SIZE", "1234")
		t.Setenv("PROPOSER_SERVER_PORT", "9999")
		path := writeConfig(t, "analysis:\n  chunk_size: 2000\n")

		mgr, err := NewManager(path)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if cfg.Analysis.ChunkSize != 1234 {
			t.Errorf("ChunkSize = %d, want 1234", cfg.Analysis.ChunkSize)
		}
		if cfg.Server.Port != "9999" {
			t.Errorf("Port = %s, want 9999", cfg.Server.Port)
		}
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := writeConfig(t, "analysis:\n  merge_threshold: 2\n")
		if _, err := NewManager(path); err == nil {
			t.Fatal("expected error for out-of-range threshold")
		}
	})

	t.Run("unreadable file is an error", func(t *testing.T) {
		path := writeConfig(t, "analysis: [unclosed\n")
		if _, err := NewManager(path); err == nil {
			t.Fatal("expected parse error")
		}
	})
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Proposer configuration") {
		t.Error("missing header")
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("failed to load written defaults: %v", err)
	}
	cfg := mgr.Get()
	want := DefaultConfig()
	if cfg.Analysis != want.Analysis {
		t.Errorf("Analysis = %+v, want %+v", cfg.Analysis, want.Analysis)
	}
	if !reflect.DeepEqual(cfg.LLMProviders, want.LLMProviders) {
		t.Errorf("LLMProviders = %+v, want %+v", cfg.LLMProviders, want.LLMProviders)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("PROPOSER_TEST_DOTENV=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("PROPOSER_TEST_DOTENV") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envFile); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("PROPOSER_TEST_DOTENV"); got != "from-file" {
		t.Errorf("PROPOSER_TEST_DOTENV = %q, want from-file", got)
	}
}

func TestManager_ResetToDefault(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "analysis:\n  chunk_size: 2000\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var got atomic.Int32
	mgr.OnChange(func(cfg *Config) { got.Store(int32(cfg.Analysis.ChunkSize)) })

	if err := mgr.ResetToDefault("analysis.chunk_size"); err != nil {
		t.Fatalf("ResetToDefault() error = %v", err)
	}
	if got.Load() != 4000 {
		t.Errorf("callback saw chunk_size %d, want 4000", got.Load())
	}
	if mgr.Get().Analysis.ChunkSize != 4000 {
		t.Errorf("ChunkSize = %d, want 4000", mgr.Get().Analysis.ChunkSize)
	}

	if err := mgr.ResetToDefault("no.such.key"); err == nil {
		t.Error("expected ErrNoDefault")
	}
}

func TestManager_Entries(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, `
llm_providers:
  openai:
    api_key: "sk-literal"
`))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	entries := make(map[string]Entry)
	for _, e := range mgr.Entries() {
		entries[e.Key] = e
	}

	if got := entries["llm_providers.openai.api_key"].Value; got != "****" {
		t.Errorf("literal api key not redacted: %v", got)
	}
	if got := entries["llm_providers.openrouter.api_key"].Value; got != "${OPENROUTER_API_KEY}" {
		t.Errorf("env reference should be shown, got %v", got)
	}
	chunk := entries["analysis.chunk_size"]
	if chunk.Description == "" || chunk.Default != 4000 {
		t.Errorf("unexpected chunk_size entry: %+v", chunk)
	}
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "server:\n  port: \"9000\"\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().Server.Port
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "analysis:\n  default_model: \"initial\"\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if got := mgr.Get().Analysis.DefaultModel; got != "initial" {
		t.Fatalf("initial value mismatch: got %s", got)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value
	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Analysis.DefaultModel)
	})

	mgr.WatchConfig(nil)

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("analysis:\n  default_model: \"updated\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, _ := lastValue.Load().(string); v == "updated" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Analysis.DefaultModel; got != "updated" {
		t.Errorf("config not updated: got %s", got)
	}
}
