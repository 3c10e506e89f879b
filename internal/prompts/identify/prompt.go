// Package identify holds the prompts and output schema for splitting a
// document chunk into candidate sections.
package identify

import (
	_ "embed"

	"github.com/jackzampolin/proposer/internal/prompts"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed fallback.tmpl
var fallbackPrompt string

//go:embed user.tmpl
var userPromptTmpl string

// Prompt keys
const (
	SystemPromptKey   = "analysis.identify.system"
	FallbackPromptKey = "analysis.identify.fallback"
	UserPromptKey     = "analysis.identify.user"
)

// UserPromptData is the data for the user prompt template.
type UserPromptData struct {
	Chunk string
	Index int // 1-based
	Total int
}

// RegisterPrompts registers the identify prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Section identification system prompt - segments a chunk into proposal sections",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         FallbackPromptKey,
		Text:        fallbackPrompt,
		Description: "Reduced section identification prompt used with the fallback model",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "Section identification user prompt template",
	})
}
