// Package mergecontent holds the prompts and output schema for merging new
// content into an existing section body.
package mergecontent

import (
	_ "embed"

	"github.com/jackzampolin/proposer/internal/prompts"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

// Prompt keys
const (
	SystemPromptKey = "analysis.merge.system"
	UserPromptKey   = "analysis.merge.user"
)

// UserPromptData is the data for the user prompt template.
type UserPromptData struct {
	Title    string
	Existing string
	New      string
}

// RegisterPrompts registers the content merge prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Content merge system prompt - combines bodies without duplication, returns HTML",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "Content merge user prompt template",
	})
}
