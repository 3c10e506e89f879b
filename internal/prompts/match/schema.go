package match

import "encoding/json"

// Schema is the JSON schema for semantic matching output.
var Schema = map[string]any{
	"name":   "section_matches",
	"strict": true,
	"schema": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"matches": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"sectionId":  map[string]any{"type": "string", "description": "Id of an existing section"},
						"confidence": map[string]any{"type": "number", "description": "Match confidence 0.0-1.0"},
					},
					"required":             []string{"sectionId", "confidence"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"matches"},
		"additionalProperties": false,
	},
}

// Match is one semantic match.
type Match struct {
	SectionID  string  `json:"sectionId"`
	Confidence float64 `json:"confidence"`
}

// Result represents the parsed matching output.
type Result struct {
	Matches []Match `json:"matches"`
}

// SchemaJSON returns Schema marshalled for a response format.
func SchemaJSON() json.RawMessage {
	b, _ := json.Marshal(Schema)
	return b
}
