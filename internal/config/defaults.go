package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// Entry is one flattened configuration key.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// DefaultEntries returns the default configuration as flattened keys.
// They are registered with viper so environment overrides resolve per key.
func DefaultEntries() []Entry {
	return []Entry{
		// LLM Providers - OpenRouter
		{Key: "llm_providers.openrouter.type", Value: "openrouter", Description: "LLM provider type for OpenRouter"},
		{Key: "llm_providers.openrouter.model", Value: "openai/gpt-4o-mini", Description: "Default model for OpenRouter"},
		{Key: "llm_providers.openrouter.api_key", Value: "${OPENROUTER_API_KEY}", Description: "OpenRouter API key (uses environment variable)"},
		{Key: "llm_providers.openrouter.base_url", Value: "", Description: "Override the OpenRouter endpoint"},
		{Key: "llm_providers.openrouter.rate_limit", Value: 150, Description: "Requests per minute for OpenRouter"},
		{Key: "llm_providers.openrouter.enabled", Value: true, Description: "Whether the OpenRouter provider is enabled"},

		// LLM Providers - OpenAI
		{Key: "llm_providers.openai.type", Value: "openai", Description: "LLM provider type for OpenAI"},
		{Key: "llm_providers.openai.model", Value: "gpt-4o-mini", Description: "Default model for OpenAI"},
		{Key: "llm_providers.openai.api_key", Value: "${OPENAI_API_KEY}", Description: "OpenAI API key (uses environment variable)"},
		{Key: "llm_providers.openai.base_url", Value: "", Description: "Override the OpenAI endpoint"},
		{Key: "llm_providers.openai.rate_limit", Value: 500, Description: "Requests per minute for OpenAI"},
		{Key: "llm_providers.openai.enabled", Value: false, Description: "Whether the OpenAI provider is enabled"},

		// Defaults
		{Key: "defaults.llm_provider", Value: "openrouter", Description: "LLM provider used by the analysis pipeline"},
		{Key: "defaults.max_concurrent_runs", Value: 2, Description: "Asynchronous analysis runs executing at once"},
		{Key: "defaults.max_run_records", Value: 100, Description: "Finished runs kept in memory"},

		// Analysis
		{Key: "analysis.default_model", Value: "openai/gpt-4o-mini", Description: "Model for every pipeline stage"},
		{Key: "analysis.fallback_model", Value: "openai/gpt-4o", Description: "Model for the identification retry"},
		{Key: "analysis.chunk_size", Value: 4000, Description: "Maximum chunk length in characters"},
		{Key: "analysis.match_batch_size", Value: 3, Description: "Candidates matched concurrently per batch"},
		{Key: "analysis.identify_workers", Value: 1, Description: "Chunks identified concurrently"},
		{Key: "analysis.merge_threshold", Value: 0.7, Description: "Minimum match confidence to merge content"},
		{Key: "analysis.semantic_min_confidence", Value: 0.5, Description: "Semantic matches at or below this are dropped"},
		{Key: "analysis.call_timeout", Value: "30s", Description: "Timeout for each model call"},

		// Server
		{Key: "server.host", Value: "127.0.0.1", Description: "HTTP listen host"},
		{Key: "server.port", Value: "8080", Description: "HTTP listen port"},

		// Model call history
		{Key: "llmcalls.enabled", Value: true, Description: "Record every model call"},
		{Key: "llmcalls.db_path", Value: "", Description: "SQLite path (empty = {home}/data/llmcalls.db)"},
		{Key: "llmcalls.batch_size", Value: 50, Description: "Calls written per batch"},
		{Key: "llmcalls.flush_interval", Value: "2s", Description: "Maximum delay before a partial batch is written"},
	}
}

// GetDefault returns the default entry for a config key, or nil.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ResetToDefault restores key to its default value in the running config.
// Returns ErrNoDefault if no default exists for the key.
func (cm *Manager) ResetToDefault(key string) error {
	def := GetDefault(key)
	if def == nil {
		return fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	cm.v.Set(key, def.Value)
	return cm.reload()
}

func setDefaults(v *viper.Viper) {
	for _, entry := range DefaultEntries() {
		v.SetDefault(entry.Key, entry.Value)
	}
}

// Entries returns every effective key sorted by name. Literal API keys are redacted.
func (cm *Manager) Entries() []Entry {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	keys := cm.v.AllKeys()
	sort.Strings(keys)
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		entry := Entry{Key: key, Value: cm.v.Get(key)}
		if def := GetDefault(key); def != nil {
			entry.Default = def.Value
			entry.Description = def.Description
		}
		if strings.HasSuffix(key, ".api_key") {
			entry.Value = redact(entry.Value)
		}
		entries = append(entries, entry)
	}
	return entries
}

func redact(v any) any {
	s, ok := v.(string)
	if !ok || s == "" || envRefPattern.MatchString(s) && envRefPattern.ReplaceAllString(s, "") == "" {
		return v
	}
	return "****"
}
