// Package unmatched holds the prompts and output schema for suggesting
// placements for content that matched no existing section.
package unmatched

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
	SystemPromptKey = "analysis.unmatched.system"
	UserPromptKey   = "analysis.unmatched.user"
)

// SectionRef is an existing section as shown to the model.
type SectionRef struct {
	ID    string
	Title string
}

// Item is one unmatched candidate.
type Item struct {
	Index   int
	Title   string
	Content string
}

// UserPromptData is the data for the user prompt template.
type UserPromptData struct {
	Sections []SectionRef
	Items    []Item
}

// RegisterPrompts registers the unmatched analysis prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SystemPromptKey,
		Text:        systemPrompt,
		Description: "Unmatched content analysis system prompt - ranks placement suggestions",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         UserPromptKey,
		Text:        userPromptTmpl,
		Description: "Unmatched content analysis user prompt template",
	})
}
