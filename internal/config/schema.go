package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds proposer configuration.
// Stored at: {home}/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Analysis     AnalysisCfg               `mapstructure:"analysis" yaml:"analysis"`
	Server       ServerCfg                 `mapstructure:"server" yaml:"server"`
	LLMCalls     LLMCallsCfg               `mapstructure:"llmcalls" yaml:"llmcalls"`
	Prompts      PromptsCfg                `mapstructure:"prompts" yaml:"prompts"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type      string `mapstructure:"type" yaml:"type"`             // "openrouter", "openai"
	Model     string `mapstructure:"model" yaml:"model"`           // Model name
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`     // Optional endpoint override
	RateLimit int    `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per minute
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selection and run limits.
type DefaultsCfg struct {
	LLMProvider       string `mapstructure:"llm_provider" yaml:"llm_provider"`
	MaxConcurrentRuns int    `mapstructure:"max_concurrent_runs" yaml:"max_concurrent_runs"`
	MaxRunRecords     int    `mapstructure:"max_run_records" yaml:"max_run_records"`
}

// AnalysisCfg tunes the document analysis pipeline.
type AnalysisCfg struct {
	DefaultModel          string  `mapstructure:"default_model" yaml:"default_model"`
	FallbackModel         string  `mapstructure:"fallback_model" yaml:"fallback_model"`
	ChunkSize             int     `mapstructure:"chunk_size" yaml:"chunk_size"`
	MatchBatchSize        int     `mapstructure:"match_batch_size" yaml:"match_batch_size"`
	IdentifyWorkers       int     `mapstructure:"identify_workers" yaml:"identify_workers"`
	MergeThreshold        float64 `mapstructure:"merge_threshold" yaml:"merge_threshold"`
	SemanticMinConfidence float64 `mapstructure:"semantic_min_confidence" yaml:"semantic_min_confidence"`
	CallTimeout           string  `mapstructure:"call_timeout" yaml:"call_timeout"` // Go duration, e.g. "30s"
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// LLMCallsCfg configures model call history.
type LLMCallsCfg struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	DBPath        string `mapstructure:"db_path" yaml:"db_path"` // Empty = {home}/data/llmcalls.db
	BatchSize     int    `mapstructure:"batch_size" yaml:"batch_size"`
	FlushInterval string `mapstructure:"flush_interval" yaml:"flush_interval"`
}

// PromptsCfg holds prompt text overrides.
type PromptsCfg struct {
	Overrides []PromptOverride `mapstructure:"overrides" yaml:"overrides"`
}

// PromptOverride replaces the embedded text of one prompt. Prompt keys
// contain dots, so overrides are a list rather than a map.
type PromptOverride struct {
	Key  string `mapstructure:"key" yaml:"key"`
	Text string `mapstructure:"text" yaml:"text"`
}

// OverrideMap returns overrides keyed by prompt key. Later entries win.
func (p PromptsCfg) OverrideMap() map[string]string {
	m := make(map[string]string, len(p.Overrides))
	for _, o := range p.Overrides {
		if o.Key != "" {
			m[o.Key] = o.Text
		}
	}
	return m
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {
				Type:      "openrouter",
				Model:     "openai/gpt-4o-mini",
				APIKey:    "${OPENROUTER_API_KEY}",
				RateLimit: 150,
				Enabled:   true,
			},
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o-mini",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 500,
				Enabled:   false,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider:       "openrouter",
			MaxConcurrentRuns: 2,
			MaxRunRecords:     100,
		},
		Analysis: AnalysisCfg{
			DefaultModel:          "openai/gpt-4o-mini",
			FallbackModel:         "openai/gpt-4o",
			ChunkSize:             4000,
			MatchBatchSize:        3,
			IdentifyWorkers:       1,
			MergeThreshold:        0.7,
			SemanticMinConfidence: 0.5,
			CallTimeout:           "30s",
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		LLMCalls: LLMCallsCfg{
			Enabled:       true,
			BatchSize:     50,
			FlushInterval: "2s",
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// CallTimeoutDuration parses CallTimeout. Invalid values yield zero.
func (a AnalysisCfg) CallTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(a.CallTimeout)
	return d
}

// FlushIntervalDuration parses FlushInterval. Invalid values yield zero.
func (l LLMCallsCfg) FlushIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(l.FlushInterval)
	return d
}

// Addr returns host:port for the HTTP listener.
func (s ServerCfg) Addr() string {
	return s.Host + ":" + s.Port
}

// Validate reports every out-of-range setting.
func (c *Config) Validate() error {
	var errs []error
	a := c.Analysis
	if a.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("analysis.chunk_size must be positive, got %d", a.ChunkSize))
	}
	if a.MatchBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("analysis.match_batch_size must be positive, got %d", a.MatchBatchSize))
	}
	if a.IdentifyWorkers <= 0 {
		errs = append(errs, fmt.Errorf("analysis.identify_workers must be positive, got %d", a.IdentifyWorkers))
	}
	if a.MergeThreshold <= 0 || a.MergeThreshold > 1 {
		errs = append(errs, fmt.Errorf("analysis.merge_threshold must be within (0,1], got %g", a.MergeThreshold))
	}
	if a.SemanticMinConfidence <= 0 || a.SemanticMinConfidence > 1 {
		errs = append(errs, fmt.Errorf("analysis.semantic_min_confidence must be within (0,1], got %g", a.SemanticMinConfidence))
	}
	if _, err := time.ParseDuration(a.CallTimeout); a.CallTimeout != "" && err != nil {
		errs = append(errs, fmt.Errorf("analysis.call_timeout: %w", err))
	}
	if _, err := time.ParseDuration(c.LLMCalls.FlushInterval); c.LLMCalls.FlushInterval != "" && err != nil {
		errs = append(errs, fmt.Errorf("llmcalls.flush_interval: %w", err))
	}
	if p := c.Defaults.LLMProvider; p != "" {
		if _, ok := c.LLMProviders[p]; !ok {
			errs = append(errs, fmt.Errorf("defaults.llm_provider %q is not configured", p))
		}
	}
	return errors.Join(errs...)
}
