package prompts

import (
	"strings"
	"testing"
)

func newTestResolver() *Resolver {
	r := NewResolver(nil)
	r.Register(EmbeddedPrompt{Key: "test.greeting", Text: "Hello {{.Name}}"})
	r.Register(EmbeddedPrompt{Key: "test.plain", Text: "No variables"})
	return r
}

func TestExtractVariables(t *testing.T) {
	got := ExtractVariables("{{.B}} and {{ .A }} and {{.B}} and {{.Candidate.Title}}")
	want := []string{"A", "B", "Candidate.Title"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ExtractVariables() = %v, want %v", got, want)
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := newTestResolver()

	t.Run("embedded default", func(t *testing.T) {
		p, err := r.Resolve("test.greeting")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.IsOverride {
			t.Error("expected embedded prompt")
		}
		if len(p.Variables) != 1 || p.Variables[0] != "Name" {
			t.Errorf("Variables = %v", p.Variables)
		}
		if p.Hash != HashText("Hello {{.Name}}") {
			t.Error("hash mismatch")
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		if _, err := r.Resolve("missing"); err == nil {
			t.Error("expected error for unknown key")
		}
	})

	t.Run("override", func(t *testing.T) {
		r := newTestResolver()
		r.SetOverrides(map[string]string{
			"test.greeting": "Hi {{.Name}}!",
			"test.unknown":  "ignored",
		})
		p, err := r.Resolve("test.greeting")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !p.IsOverride || p.Text != "Hi {{.Name}}!" {
			t.Errorf("got %+v", p)
		}
		if _, err := r.Resolve("test.unknown"); err == nil {
			t.Error("override for unknown key should not create a prompt")
		}
	})
}

func TestResolver_Render(t *testing.T) {
	t.Run("renders data", func(t *testing.T) {
		r := newTestResolver()
		got, err := r.Render("test.greeting", struct{ Name string }{"Ada"})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if got != "Hello Ada" {
			t.Errorf("Render() = %q", got)
		}
	})

	t.Run("broken override falls back to default", func(t *testing.T) {
		r := newTestResolver()
		r.SetOverrides(map[string]string{"test.greeting": "Hi {{.Missing"})
		got, err := r.Render("test.greeting", struct{ Name string }{"Ada"})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if got != "Hello Ada" {
			t.Errorf("Render() = %q, want default", got)
		}
	})

	t.Run("missing data field is an error", func(t *testing.T) {
		r := newTestResolver()
		if _, err := r.Render("test.greeting", map[string]string{}); err == nil {
			t.Error("expected error for missing key")
		}
	})
}

func TestResolver_All(t *testing.T) {
	r := newTestResolver()
	all := r.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d prompts, want 2", len(all))
	}
	if all[0].Key != "test.greeting" || all[1].Key != "test.plain" {
		t.Errorf("All() not sorted: %s, %s", all[0].Key, all[1].Key)
	}
}
