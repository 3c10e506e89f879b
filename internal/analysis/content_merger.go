package analysis

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/jackzampolin/proposer/internal/prompts"
	"github.com/jackzampolin/proposer/internal/prompts/mergecontent"
)

// DefaultMergeThreshold is the minimum confidence for merging matched content.
const DefaultMergeThreshold = 0.7

// ContentMerger folds new content into an existing section body through the
// model, producing sanitized HTML.
type ContentMerger struct {
	completer Completer
	prompts   *prompts.Resolver
	model     string
	timeout   time.Duration
	policy    *bluemonday.Policy
	logger    *slog.Logger
}

// MergeContent returns the merge of newContent into existingContent.
//
// Existing content is never lost: if the model call fails or returns nothing
// usable, existingContent is returned unchanged. When existingContent is
// empty the fallback is newContent wrapped in paragraphs. Only fatal errors
// and cancellation are returned.
func (cm *ContentMerger) MergeContent(ctx context.Context, title, newContent, existingContent string) (string, error) {
	if strings.TrimSpace(newContent) == "" {
		return existingContent, nil
	}
	if err := checkCancelled(ctx); err != nil {
		return "", err
	}

	fallback := existingContent
	if strings.TrimSpace(existingContent) == "" {
		fallback = cm.paragraphs(newContent)
	}

	merged, err := cm.merge(ctx, title, newContent, existingContent)
	if err != nil {
		if stop := stopErr(ctx, err); stop != nil {
			return "", stop
		}
		cm.logger.Warn("content merge failed, keeping existing content",
			"stage", StageMatching, "section", title, "error", err)
		return fallback, nil
	}
	if merged == "" {
		cm.logger.Warn("content merge returned empty content, keeping existing content",
			"stage", StageMatching, "section", title)
		return fallback, nil
	}
	return merged, nil
}

func (cm *ContentMerger) merge(ctx context.Context, title, newContent, existingContent string) (string, error) {
	system, err := cm.prompts.Render(mergecontent.SystemPromptKey, nil)
	if err != nil {
		return "", err
	}
	user, err := cm.prompts.Render(mergecontent.UserPromptKey, mergecontent.UserPromptData{
		Title:    title,
		Existing: existingContent,
		New:      newContent,
	})
	if err != nil {
		return "", err
	}

	raw, err := cm.completer.Complete(ctx, CompletionRequest{
		System:    system,
		User:      user,
		Model:     cm.model,
		JSON:      true,
		Schema:    mergecontent.SchemaJSON(),
		Timeout:   cm.timeout,
		PromptKey: mergecontent.UserPromptKey,
		Stage:     "merge",
	})
	if err != nil {
		return "", err
	}

	result, err := decodeStructured[mergecontent.Result](raw, mergecontent.SchemaJSON())
	if err != nil {
		return "", fmt.Errorf("decode merged content: %w", err)
	}
	return strings.TrimSpace(cm.policy.Sanitize(result.Content)), nil
}

// paragraphs renders plain text as escaped HTML paragraphs.
func (cm *ContentMerger) paragraphs(text string) string {
	var b strings.Builder
	for _, p := range splitParagraphs(text) {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return cm.policy.Sanitize(b.String())
}
