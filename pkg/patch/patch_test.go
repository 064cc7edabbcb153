package patch

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestApplyFrontmatter(t *testing.T) {
	content := "---\nmodel: sonnet\ntemperature: 0.5\n---\nBody text\n"

	patched, applied, err := Apply(content, "agents/foo.md",
		map[string]interface{}{"model": "haiku"}, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !strings.Contains(patched, "model: haiku") {
		t.Errorf("patched content missing override: %q", patched)
	}
	if !strings.Contains(patched, "temperature: 0.5") {
		t.Errorf("unpatched field lost: %q", patched)
	}
	if !strings.HasSuffix(patched, "Body text\n") {
		t.Errorf("body altered: %q", patched)
	}
	if len(applied) != 1 || applied[0].Name != "model" || applied[0].Value != "haiku" {
		t.Errorf("applied = %+v, want single model=haiku", applied)
	}
}

func TestPrivateOverridesProject(t *testing.T) {
	content := "---\nmodel: sonnet\n---\nBody\n"

	patched, applied, err := Apply(content, "agents/foo.md",
		map[string]interface{}{"model": "haiku", "temperature": 0.1},
		map[string]interface{}{"model": "opus"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !strings.Contains(patched, "model: opus") {
		t.Errorf("private patch did not win: %q", patched)
	}

	// Applied records the final values in sorted order.
	if len(applied) != 2 {
		t.Fatalf("applied = %+v, want 2 fields", applied)
	}
	if applied[0].Name != "model" || applied[0].Value != "opus" {
		t.Errorf("applied[0] = %+v, want model=opus", applied[0])
	}
	if applied[1].Name != "temperature" {
		t.Errorf("applied[1] = %+v, want temperature", applied[1])
	}
}

func TestApplyNoPatches(t *testing.T) {
	content := "---\na: 1\n---\nBody\n"
	patched, applied, err := Apply(content, "x.md", nil, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if patched != content {
		t.Error("content changed with no patches")
	}
	if applied != nil {
		t.Errorf("applied = %+v, want nil", applied)
	}
}

func TestApplyJSON(t *testing.T) {
	content := `{"command": "node", "args": ["server.js"]}`
	patched, _, err := Apply(content, "mcp/server.json",
		map[string]interface{}{"command": "bun"}, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(patched), &obj); err != nil {
		t.Fatalf("patched JSON invalid: %v", err)
	}
	if obj["command"] != "bun" {
		t.Errorf("command = %v, want bun", obj["command"])
	}
	if _, ok := obj["args"]; !ok {
		t.Error("unpatched key lost")
	}
}

func TestApplyNoFrontmatterFails(t *testing.T) {
	if _, _, err := Apply("no frontmatter here", "x.md",
		map[string]interface{}{"model": "haiku"}, nil); err == nil {
		t.Error("patching a document without frontmatter should fail")
	}
}

func TestAppliedEqual(t *testing.T) {
	a := Applied{{Name: "model", Value: "haiku"}}
	b := Applied{{Name: "model", Value: "haiku"}}
	c := Applied{{Name: "model", Value: "opus"}}

	if !a.Equal(b) {
		t.Error("identical applied sets compare unequal")
	}
	if a.Equal(c) {
		t.Error("different values compare equal")
	}
	if a.Equal(nil) {
		t.Error("non-empty equals nil")
	}
}

func TestPatchesGet(t *testing.T) {
	p := Patches{
		"agents": {
			"reviewer": {"model": "haiku"},
		},
	}
	if got := p.Get("agents", "reviewer"); got == nil || got["model"] != "haiku" {
		t.Errorf("Get() = %v", got)
	}
	if p.Get("agents", "other") != nil {
		t.Error("Get() for unknown name should be nil")
	}
	if p.Get("commands", "reviewer") != nil {
		t.Error("Get() for unknown type should be nil")
	}
	var nilPatches Patches
	if nilPatches.Get("agents", "reviewer") != nil {
		t.Error("Get() on nil Patches should be nil")
	}
}
