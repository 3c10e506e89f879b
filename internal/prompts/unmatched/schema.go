package unmatched

import "encoding/json"

// Schema is the JSON schema for unmatched analysis output.
var Schema = map[string]any{
	"name":   "unmatched_analysis",
	"strict": true,
	"schema": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"analysis": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"index": map[string]any{"type": "integer", "description": "Index of the unmatched item"},
						"potentialSections": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"sectionId": map[string]any{"type": "string"},
									"relevance": map[string]any{"type": "number", "description": "Relevance 0.0-1.0"},
								},
								"required":             []string{"sectionId", "relevance"},
								"additionalProperties": false,
							},
						},
					},
					"required":             []string{"index", "potentialSections"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"analysis"},
		"additionalProperties": false,
	},
}

// Suggestion is one proposed placement.
type Suggestion struct {
	SectionID string  `json:"sectionId"`
	Relevance float64 `json:"relevance"`
}

// Entry is the analysis for one unmatched item.
type Entry struct {
	Index             int          `json:"index"`
	PotentialSections []Suggestion `json:"potentialSections"`
}

// Result represents the parsed analysis output.
type Result struct {
	Analysis []Entry `json:"analysis"`
}

// SchemaJSON returns Schema marshalled for a response format.
func SchemaJSON() json.RawMessage {
	b, _ := json.Marshal(Schema)
	return b
}
