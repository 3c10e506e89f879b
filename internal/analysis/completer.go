package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackzampolin/proposer/internal/llmcall"
	"github.com/jackzampolin/proposer/internal/prompts"
	"github.com/jackzampolin/proposer/internal/providers"
)

// CompletionRequest is one call to the language model.
type CompletionRequest struct {
	System string
	User   string

	// Model overrides the client default when set.
	Model string

	// JSON requests a JSON object response. Schema, when set, constrains it.
	JSON   bool
	Schema json.RawMessage

	Timeout time.Duration

	// Traceability
	PromptKey string
	Stage     string
}

// Completer returns the raw text of a model completion.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}

type runIDKey struct{}

// WithRunID tags ctx with the analysis run it belongs to. Recorded LLM calls
// carry the ID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run ID set by WithRunID.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// ProviderCompleter is the production Completer. It sends requests through a
// providers.LLMClient and records every call.
type ProviderCompleter struct {
	client   providers.LLMClient
	recorder *llmcall.Recorder
}

// NewProviderCompleter creates a completer over client. recorder may be nil.
func NewProviderCompleter(client providers.LLMClient, recorder *llmcall.Recorder) *ProviderCompleter {
	return &ProviderCompleter{client: client, recorder: recorder}
}

// Complete implements Completer. Authentication failures are returned
// wrapped in ErrFatal.
func (c *ProviderCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	chatReq := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Model:   req.Model,
		Timeout: req.Timeout,
	}
	switch {
	case len(req.Schema) > 0:
		chatReq.ResponseFormat = &providers.ResponseFormat{Type: "json_schema", JSONSchema: req.Schema}
	case req.JSON:
		chatReq.ResponseFormat = &providers.ResponseFormat{Type: "json_object"}
	}

	result, err := c.client.Chat(ctx, chatReq)
	c.recorder.Record(result, llmcall.RecordOptions{
		RunID:      RunIDFromContext(ctx),
		Stage:      req.Stage,
		PromptKey:  req.PromptKey,
		PromptHash: prompts.HashText(req.System + req.User),
	})
	if err != nil {
		if providers.IsAuthError(err) {
			return "", fmt.Errorf("%w: %w", ErrFatal, err)
		}
		return "", err
	}
	if len(result.ParsedJSON) > 0 {
		return string(result.ParsedJSON), nil
	}
	return result.Content, nil
}

var _ Completer = (*ProviderCompleter)(nil)
