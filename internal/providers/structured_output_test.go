package providers

import (
	"encoding/json"
	"testing"
)

func TestParseStructuredJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "plain", content: `{"ok":true}`, want: `{"ok":true}`},
		{name: "code fence", content: "```json\n{\"ok\":true}\n```", want: `{"ok":true}`},
		{name: "surrounding prose", content: `Here you go: {"ok": true} hope it helps`, want: `{"ok":true}`},
		{name: "array", content: `[1, 2]`, want: `[1,2]`},
		{name: "empty", content: "  ", wantErr: true},
		{name: "garbage", content: "no json here", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStructuredJSON(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseStructuredJSON() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateStructuredJSON_EnforcesBounds(t *testing.T) {
	schema := json.RawMessage(`{
		"name":"section_matches",
		"strict":true,
		"schema":{
			"type":"object",
			"properties":{
				"confidence":{"type":"number","minimum":0,"maximum":1}
			},
			"required":["confidence"],
			"additionalProperties":false
		}
	}`)

	if err := ValidateStructuredJSON(schema, json.RawMessage(`{"confidence":0.9}`)); err != nil {
		t.Fatalf("ValidateStructuredJSON(valid) error = %v", err)
	}
	if err := ValidateStructuredJSON(schema, json.RawMessage(`{"confidence":5}`)); err == nil {
		t.Fatal("ValidateStructuredJSON(invalid) expected error, got nil")
	}
}

func TestSchemaParts(t *testing.T) {
	name, strict, schema, err := schemaParts(json.RawMessage(`{"name":"x","strict":true,"schema":{"type":"object"}}`))
	if err != nil {
		t.Fatalf("schemaParts() error = %v", err)
	}
	if name != "x" || !strict || schema["type"] != "object" {
		t.Errorf("got name=%s strict=%v schema=%v", name, strict, schema)
	}

	name, _, schema, err = schemaParts(json.RawMessage(`{"type":"object"}`))
	if err != nil {
		t.Fatalf("schemaParts(bare) error = %v", err)
	}
	if name != "response" || schema["type"] != "object" {
		t.Errorf("bare schema: name=%s schema=%v", name, schema)
	}
}
