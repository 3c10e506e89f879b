package svcctx

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/proposer/internal/analysis"
	"github.com/jackzampolin/proposer/internal/config"
	"github.com/jackzampolin/proposer/internal/docext"
	"github.com/jackzampolin/proposer/internal/llmcall"
	"github.com/jackzampolin/proposer/internal/prompts"
	"github.com/jackzampolin/proposer/internal/providers"
)

// ErrNoProvider is returned when the configured LLM provider is not registered,
// usually because its API key is missing.
var ErrNoProvider = errors.New("no LLM provider available")

// AnalyzerSource hands out an Analyzer built from the current configuration.
type AnalyzerSource interface {
	Analyzer() (*analysis.Analyzer, error)
}

// AnalyzerFactory builds analyzers from live config, so provider and tuning
// changes apply to the next run without a restart.
type AnalyzerFactory struct {
	Config   *config.Manager
	Registry *providers.Registry
	Prompts  *prompts.Resolver
	Recorder *llmcall.Recorder // optional
	Logger   *slog.Logger
}

// Analyzer implements AnalyzerSource.
func (f *AnalyzerFactory) Analyzer() (*analysis.Analyzer, error) {
	cfg := f.Config.Get()

	name := cfg.Defaults.LLMProvider
	client, err := f.Registry.GetLLM(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not registered (check its api_key)", ErrNoProvider, name)
	}

	a := cfg.Analysis
	return analysis.New(analysis.Config{
		Completer:             analysis.NewProviderCompleter(client, f.Recorder),
		Prompts:               f.Prompts,
		Extractor:             docext.Auto{},
		DefaultModel:          a.DefaultModel,
		FallbackModel:         a.FallbackModel,
		MaxChunkSize:          a.ChunkSize,
		MatchBatchSize:        a.MatchBatchSize,
		IdentifyWorkers:       a.IdentifyWorkers,
		MergeThreshold:        a.MergeThreshold,
		SemanticMinConfidence: a.SemanticMinConfidence,
		CallTimeout:           a.CallTimeoutDuration(),
		Logger:                f.Logger,
	})
}

// NewPromptResolver returns a resolver with every analysis prompt registered
// and the config overrides applied.
func NewPromptResolver(cfg *config.Config, logger *slog.Logger) *prompts.Resolver {
	r := prompts.NewResolver(logger)
	analysis.RegisterPrompts(r)
	r.SetOverrides(cfg.Prompts.OverrideMap())
	return r
}

var _ AnalyzerSource = (*AnalyzerFactory)(nil)
