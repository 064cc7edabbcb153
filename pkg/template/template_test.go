package template

import (
	"context"
	"strings"
	"testing"

	"github.com/agpm-dev/agpm/pkg/resource"
)

func TestRender(t *testing.T) {
	r := NewRenderer("/project", 1<<20)

	out, err := r.Render("Hello {{.name}}!", map[string]interface{}{"name": "world"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "Hello world!" {
		t.Errorf("Render() = %q", out)
	}
}

func TestRenderMissingVariable(t *testing.T) {
	r := NewRenderer("/project", 1<<20)
	if _, err := r.Render("{{.missing}}", map[string]interface{}{}); err == nil {
		t.Error("expected error for missing variable")
	}
}

func TestRenderInvalidSyntax(t *testing.T) {
	r := NewRenderer("/project", 1<<20)
	if _, err := r.Render("{{.unclosed", nil); err == nil {
		t.Error("expected error for invalid syntax")
	}
}

func TestResourceIDString(t *testing.T) {
	id := ResourceID{
		Name:        "reviewer",
		Source:      "community",
		Tool:        "claude-code",
		Type:        resource.Agent,
		VariantHash: "abc123",
	}
	s := id.String()
	for _, part := range []string{"agents/", "community:", "reviewer", "@abc123"} {
		if !strings.Contains(s, part) {
			t.Errorf("ID %q missing %q", s, part)
		}
	}

	local := ResourceID{Name: "helper", Type: resource.Snippet}
	if strings.Contains(local.String(), ":") {
		t.Errorf("sourceless ID %q should not carry a source separator", local.String())
	}
}

func TestDefaultContextBuilder(t *testing.T) {
	b := NewDefaultContextBuilder("/project")
	id := ResourceID{Name: "reviewer", Source: "community", Tool: "claude-code", Type: resource.Agent, VariantHash: "x"}

	ctx1, sum1, err := b.BuildContext(context.Background(), id, map[string]interface{}{"flavor": "strict"})
	if err != nil {
		t.Fatalf("BuildContext() error = %v", err)
	}
	if ctx1["name"] != "reviewer" {
		t.Errorf("context name = %v", ctx1["name"])
	}
	if ctx1["flavor"] != "strict" {
		t.Errorf("variant input not merged: %v", ctx1["flavor"])
	}
	if !strings.HasPrefix(sum1, "sha256:") {
		t.Errorf("checksum %q missing prefix", sum1)
	}

	// Deterministic: same inputs, same checksum.
	_, sum2, err := b.BuildContext(context.Background(), id, map[string]interface{}{"flavor": "strict"})
	if err != nil {
		t.Fatal(err)
	}
	if sum1 != sum2 {
		t.Error("context checksum not deterministic")
	}

	// Different variant inputs change the checksum.
	_, sum3, err := b.BuildContext(context.Background(), id, map[string]interface{}{"flavor": "lenient"})
	if err != nil {
		t.Fatal(err)
	}
	if sum1 == sum3 {
		t.Error("different variant inputs produced identical checksums")
	}
}
