package markdown

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantFormat Format
		wantBody   string
	}{
		{
			name:       "yaml frontmatter",
			content:    "---\ntitle: test\n---\n# Content",
			wantFormat: FormatYAML,
			wantBody:   "# Content",
		},
		{
			name:       "toml frontmatter",
			content:    "+++\ntitle = \"test\"\n+++\nBody here",
			wantFormat: FormatTOML,
			wantBody:   "Body here",
		},
		{
			name:       "no frontmatter",
			content:    "# Just a heading\nSome content",
			wantFormat: FormatNone,
			wantBody:   "# Just a heading\nSome content",
		},
		{
			name:       "empty frontmatter",
			content:    "---\n---\n# Content",
			wantFormat: FormatYAML,
			wantBody:   "# Content",
		},
		{
			name:       "delimiter later in document",
			content:    "# Heading\n---\nNot frontmatter",
			wantFormat: FormatNone,
			wantBody:   "# Heading\n---\nNot frontmatter",
		},
		{
			name:       "unclosed frontmatter",
			content:    "---\ntitle: test\nno closing fence",
			wantFormat: FormatNone,
		},
		{
			name:       "crlf line endings",
			content:    "---\r\ntitle: test\r\n---\r\n# Content",
			wantFormat: FormatYAML,
		},
		{
			name:       "empty content",
			content:    "",
			wantFormat: FormatNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.content)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if doc.Format != tt.wantFormat {
				t.Errorf("Format = %v, want %v", doc.Format, tt.wantFormat)
			}
			if tt.wantBody != "" && doc.Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", doc.Body, tt.wantBody)
			}
		})
	}
}

func TestParseFields(t *testing.T) {
	doc, err := Parse("---\nmodel: haiku\ncount: 3\n---\nBody")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if doc.Fields["model"] != "haiku" {
		t.Errorf("Fields[model] = %v, want haiku", doc.Fields["model"])
	}
	if doc.Fields["count"] != 3 {
		t.Errorf("Fields[count] = %v, want 3", doc.Fields["count"])
	}
}

func TestParseInvalidFrontmatter(t *testing.T) {
	doc, err := Parse("---\na: [unclosed\n---\nBody")
	if err != nil {
		t.Fatalf("invalid frontmatter must not be a parse error, got %v", err)
	}
	if doc.Warning == "" {
		t.Error("expected a warning for invalid frontmatter")
	}
	if doc.Fields != nil {
		t.Error("invalid frontmatter must yield nil Fields")
	}
	if doc.Body != "Body" {
		t.Errorf("Body = %q, want %q", doc.Body, "Body")
	}
}

func TestSplice(t *testing.T) {
	doc, err := Parse("---\nmodel: sonnet\n---\nThe body stays.\n")
	if err != nil {
		t.Fatal(err)
	}
	out := doc.Splice("model: haiku")
	want := "---\nmodel: haiku\n---\nThe body stays.\n"
	if out != want {
		t.Errorf("Splice() = %q, want %q", out, want)
	}

	// Round trip: splicing the original raw reproduces the document.
	if got := doc.Splice(doc.Raw); got != "---\nmodel: sonnet\n---\nThe body stays.\n" {
		t.Errorf("identity splice = %q", got)
	}
}

func TestRender(t *testing.T) {
	doc, err := Parse("---\nmodel: sonnet\n---\nBody\n")
	if err != nil {
		t.Fatal(err)
	}
	doc.Fields["model"] = "haiku"
	out, err := doc.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "model: haiku") {
		t.Errorf("Render() = %q, missing patched field", out)
	}
	if !strings.HasSuffix(out, "Body\n") {
		t.Errorf("Render() = %q, body altered", out)
	}
}

func TestGetBool(t *testing.T) {
	doc, err := Parse("---\nagpm:\n  templating: true\nother: false\n---\nx")
	if err != nil {
		t.Fatal(err)
	}
	if !doc.GetBool("agpm.templating") {
		t.Error("GetBool(agpm.templating) = false, want true")
	}
	if doc.GetBool("other") {
		t.Error("GetBool(other) = true, want false")
	}
	if doc.GetBool("missing.path") {
		t.Error("GetBool(missing.path) = true, want false")
	}
}
