// Package match holds the prompts and output schema for the semantic
// matching tier.
package match

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
	SystemPromptKey = "analysis.match.system"
	UserPromptKey   = "analysis.match.user"
)

// SystemPromptData is the data for the system prompt template.
type SystemPromptData struct {
	MinConfidence float64
}

// SectionRef is an existing section as shown to the model.
type SectionRef struct {
	ID    string
	Title string
}

// UserPromptData is the data for the user prompt template.
type UserPromptData struct {
	Title    string
	Content  string
	Sections []SectionRef
}

// RegisterPrompts registers the match prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Semantic section matching system prompt",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "Semantic section matching user prompt template",
	})
}
