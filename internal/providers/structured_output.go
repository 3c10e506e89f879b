package providers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrStructuredOutput marks model output that is not valid JSON or does not match the requested schema.
var ErrStructuredOutput = errors.New("invalid structured output")

// schemaCache holds compiled schemas keyed by their raw text.
var schemaCache sync.Map

// decodeStructuredContent parses model output and validates it against the
// schema carried by rf, if any.
func decodeStructuredContent(rf *ResponseFormat, content string) (json.RawMessage, error) {
	parsed, err := parseStructuredJSON(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructuredOutput, err)
	}
	if rf != nil && len(rf.JSONSchema) > 0 {
		if err := ValidateStructuredJSON(rf.JSONSchema, parsed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStructuredOutput, err)
		}
	}
	return parsed, nil
}

// parseStructuredJSON parses JSON from model output, recovering from
// markdown code fences and surrounding prose.
func parseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	for _, candidate := range []string{content, stripCodeFences(content), extractJSONCandidate(content)} {
		if candidate == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			continue
		}
		normalized, err := json.Marshal(parsed)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize structured output: %w", err)
		}
		return normalized, nil
	}
	return nil, fmt.Errorf("failed to parse structured JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if last := len(lines) - 1; strings.TrimSpace(lines[last]) == "```" {
		lines = lines[:last]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJSONCandidate returns the span from the first '{' or '[' to its last matching closer.
func extractJSONCandidate(content string) string {
	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if content[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(content, closer)
	if end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}

// DecodeStructured extracts the JSON object from raw model output (tolerating
// code fences and surrounding prose) and validates it against schema.
func DecodeStructured(schema json.RawMessage, content string) (json.RawMessage, error) {
	return decodeStructuredContent(&ResponseFormat{Type: "json_schema", JSONSchema: schema}, content)
}

// ValidateStructuredJSON validates parsed JSON against a schema. The schema may be
// a bare JSON Schema document or wrapped as {"name","strict","schema"}.
func ValidateStructuredJSON(schemaRaw, parsed json.RawMessage) error {
	if len(schemaRaw) == 0 || len(parsed) == 0 {
		return nil
	}

	schema, err := compileSchema(schemaRaw)
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return fmt.Errorf("failed to decode structured JSON for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("structured output does not match schema: %w", err)
	}
	return nil
}

func compileSchema(schemaRaw json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schemaRaw)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	coreSchema, err := extractValidationSchema(schemaRaw)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(coreSchema)); err != nil {
		return nil, fmt.Errorf("failed to load structured schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile structured schema: %w", err)
	}
	schemaCache.Store(key, schema)
	return schema, nil
}

func extractValidationSchema(schemaRaw json.RawMessage) (json.RawMessage, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(schemaRaw, &root); err != nil {
		return nil, fmt.Errorf("invalid structured schema JSON: %w", err)
	}
	// OpenAI/OpenRouter wrapper: {"name","strict","schema":{...}}
	if inner, ok := root["schema"]; ok {
		return inner, nil
	}
	return schemaRaw, nil
}

// schemaParts splits a wrapped schema into its name, strict flag and bare schema.
func schemaParts(schemaRaw json.RawMessage) (name string, strict bool, schema map[string]any, err error) {
	var wrapper struct {
		Name   string         `json:"name"`
		Strict bool           `json:"strict"`
		Schema map[string]any `json:"schema"`
	}
	if err := json.Unmarshal(schemaRaw, &wrapper); err != nil {
		return "", false, nil, fmt.Errorf("invalid structured schema JSON: %w", err)
	}
	if wrapper.Schema == nil {
		var bare map[string]any
		if err := json.Unmarshal(schemaRaw, &bare); err != nil {
			return "", false, nil, fmt.Errorf("invalid structured schema JSON: %w", err)
		}
		wrapper.Schema = bare
	}
	if wrapper.Name == "" {
		wrapper.Name = "response"
	}
	return wrapper.Name, wrapper.Strict, wrapper.Schema, nil
}
