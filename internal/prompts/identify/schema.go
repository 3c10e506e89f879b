package identify

import "encoding/json"

// Schema is the JSON schema for section identification output.
var Schema = map[string]any{
	"name":   "identified_sections",
	"strict": true,
	"schema": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sections": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":   map[string]any{"type": "string", "description": "Normalized section title"},
						"content": map[string]any{"type": "string", "description": "Section body copied from the chunk"},
					},
					"required":             []string{"title", "content"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"sections"},
		"additionalProperties": false,
	},
}

// Section is one identified section.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Result represents the parsed identification output.
type Result struct {
	Sections []Section `json:"sections"`
}

// SchemaJSON returns Schema marshalled for a response format.
func SchemaJSON() json.RawMessage {
	b, _ := json.Marshal(Schema)
	return b
}
