package mergecontent

import "encoding/json"

// Schema is the JSON schema for content merge output.
var Schema = map[string]any{
	"name":   "merged_content",
	"strict": true,
	"schema": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string", "description": "Merged section body as HTML"},
		},
		"required":             []string{"content"},
		"additionalProperties": false,
	},
}

// Result represents the parsed merge output.
type Result struct {
	Content string `json:"content"`
}

// SchemaJSON returns Schema marshalled for a response format.
func SchemaJSON() json.RawMessage {
	b, _ := json.Marshal(Schema)
	return b
}
