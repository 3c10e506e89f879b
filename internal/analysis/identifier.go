package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackzampolin/proposer/internal/prompts"
	"github.com/jackzampolin/proposer/internal/prompts/identify"
)

// UntitledSection is the title given to identified content without one.
const UntitledSection = "Untitled Section"

// Identifier extracts candidate sections from a chunk of document text.
type Identifier struct {
	completer     Completer
	prompts       *prompts.Resolver
	model         string
	fallbackModel string
	timeout       time.Duration
	logger        *slog.Logger
}

// Identify returns the candidate sections in chunk. index is 1-based.
//
// A failed call is retried once against the fallback model with the reduced
// prompt. If that fails too the chunk yields no sections and no error. Only
// fatal errors and cancellation are returned.
func (id *Identifier) Identify(ctx context.Context, chunk string, index, total int) ([]CandidateSection, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	sections, err := id.attempt(ctx, identify.SystemPromptKey, id.model, chunk, index, total)
	if err == nil {
		return sections, nil
	}
	if stop := stopErr(ctx, err); stop != nil {
		return nil, stop
	}
	id.logger.Warn("section identification failed, retrying with fallback model",
		"stage", StageProcessing, "chunk", index, "model", id.fallbackModel, "error", err)

	sections, err = id.attempt(ctx, identify.FallbackPromptKey, id.fallbackModel, chunk, index, total)
	if err == nil {
		return sections, nil
	}
	if stop := stopErr(ctx, err); stop != nil {
		return nil, stop
	}
	id.logger.Warn("fallback identification failed, skipping chunk",
		"stage", StageProcessing, "chunk", index, "error", err)
	return nil, nil
}

func (id *Identifier) attempt(ctx context.Context, systemKey, model, chunk string, index, total int) ([]CandidateSection, error) {
	system, err := id.prompts.Render(systemKey, nil)
	if err != nil {
		return nil, err
	}
	user, err := id.prompts.Render(identify.UserPromptKey, identify.UserPromptData{
		Chunk: chunk,
		Index: index,
		Total: total,
	})
	if err != nil {
		return nil, err
	}

	raw, err := id.completer.Complete(ctx, CompletionRequest{
		System:    system,
		User:      user,
		Model:     model,
		JSON:      true,
		Schema:    identify.SchemaJSON(),
		Timeout:   id.timeout,
		PromptKey: systemKey,
		Stage:     "identify",
	})
	if err != nil {
		return nil, err
	}

	result, err := decodeStructured[identify.Result](raw, identify.SchemaJSON())
	if err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}

	sections := make([]CandidateSection, 0, len(result.Sections))
	for _, s := range result.Sections {
		content := strings.TrimSpace(s.Content)
		if content == "" {
			continue
		}
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = UntitledSection
		}
		sections = append(sections, CandidateSection{Title: title, Content: content})
	}
	return sections, nil
}
