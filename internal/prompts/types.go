// Package prompts manages the prompt templates used by the analysis stages.
//
// Embedded .tmpl files in each stage package are the defaults. Configuration
// may override any prompt by key; overrides are applied at resolution time so
// a config reload takes effect on the next model call.
package prompts

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   // Hierarchical key: analysis.identify.system
	Text        string   // The prompt text (Go template)
	Description string   // Human-readable description
	Variables   []string // Extracted template variables
	Hash        string   // SHA256 of the text
}

// ResolvedPrompt is a prompt after overrides have been applied.
type ResolvedPrompt struct {
	Key         string   `json:"key"`
	Text        string   `json:"text"`
	Description string   `json:"description,omitempty"`
	Variables   []string `json:"variables,omitempty"`
	Hash        string   `json:"hash"`
	IsOverride  bool     `json:"is_override"`
}
