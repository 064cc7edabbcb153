// Package markdown parses Markdown documents with frontmatter. Frontmatter
// is YAML between "---" fences or TOML between "+++" fences at the top of
// the file. Invalid frontmatter is not fatal: the document is treated as
// having no metadata and a warning is recorded for the caller to surface.
package markdown

import (
	"bytes"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies the frontmatter syntax of a document.
type Format int

const (
	// FormatNone means the document has no frontmatter fences.
	FormatNone Format = iota
	// FormatYAML means "---" fences.
	FormatYAML
	// FormatTOML means "+++" fences.
	FormatTOML
)

const (
	yamlDelimiter = "---"
	tomlDelimiter = "+++"
)

// Document is a parsed Markdown file. Raw holds the frontmatter text
// between the fences (without the fences themselves); Body holds everything
// after the closing fence. Fields is nil when frontmatter is absent or
// failed to parse.
type Document struct {
	Format  Format
	Raw     string
	Body    string
	Fields  map[string]interface{}
	Warning string
}

// HasFrontmatter reports whether the document carries frontmatter fences.
func (d *Document) HasFrontmatter() bool {
	return d.Format != FormatNone
}

// Parse splits content into frontmatter and body and decodes the metadata.
// A syntactically broken metadata block yields a Document with nil Fields
// and a non-empty Warning rather than an error; only I/O-level misuse
// returns an error.
func Parse(content string) (*Document, error) {
	delim, format := detectDelimiter(content)
	if format == FormatNone {
		return &Document{Format: FormatNone, Body: content}, nil
	}

	raw, body, ok := splitFences(content, delim)
	if !ok {
		// Opening fence without a closing one: treat the whole file as body.
		return &Document{Format: FormatNone, Body: content}, nil
	}

	doc := &Document{Format: format, Raw: raw, Body: body}

	if strings.TrimSpace(raw) == "" {
		doc.Fields = map[string]interface{}{}
		return doc, nil
	}

	fields := make(map[string]interface{})
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal([]byte(raw), &fields)
	case FormatTOML:
		err = toml.Unmarshal([]byte(raw), &fields)
	}
	if err != nil {
		doc.Warning = fmt.Sprintf("invalid frontmatter: %v", err)
		return doc, nil
	}

	doc.Fields = fields
	return doc, nil
}

// detectDelimiter returns the fence in use on the first line, if any.
func detectDelimiter(content string) (string, Format) {
	trimmed := strings.TrimLeft(content, " \t")
	switch {
	case strings.HasPrefix(trimmed, yamlDelimiter+"\n"), strings.HasPrefix(trimmed, yamlDelimiter+"\r\n"):
		return yamlDelimiter, FormatYAML
	case strings.HasPrefix(trimmed, tomlDelimiter+"\n"), strings.HasPrefix(trimmed, tomlDelimiter+"\r\n"):
		return tomlDelimiter, FormatTOML
	default:
		return "", FormatNone
	}
}

// splitFences extracts the text between the opening fence and a closing
// fence at the start of a line. Returns ok=false when no closing fence
// exists.
func splitFences(content, delim string) (raw, body string, ok bool) {
	trimmed := strings.TrimLeft(content, " \t")

	after := trimmed[len(delim):]
	after = strings.TrimPrefix(after, "\r")
	after = strings.TrimPrefix(after, "\n")

	end := findClosingFence([]byte(after), delim)
	if end == -1 {
		return "", "", false
	}

	raw = after[:end]

	rest := after[end+len(delim):]
	rest = strings.TrimPrefix(rest, "\r")
	rest = strings.TrimPrefix(rest, "\n")
	return raw, rest, true
}

// findClosingFence finds a fence at the start of a line within content.
func findClosingFence(content []byte, delim string) int {
	d := []byte(delim)
	if bytes.HasPrefix(content, append(d, '\n')) ||
		bytes.HasPrefix(content, append(d, '\r', '\n')) ||
		bytes.Equal(content, d) {
		return 0
	}

	offset := 0
	search := content
	for {
		nl := bytes.IndexByte(search, '\n')
		if nl == -1 {
			return -1
		}
		lineStart := nl + 1
		if lineStart >= len(search) {
			return -1
		}
		remaining := search[lineStart:]
		if bytes.HasPrefix(remaining, append(d, '\n')) ||
			bytes.HasPrefix(remaining, append(d, '\r', '\n')) ||
			bytes.Equal(remaining, d) {
			return offset + lineStart
		}
		offset += lineStart
		search = remaining
	}
}

// Splice rebuilds the document with newRaw as the frontmatter text and the
// original body untouched. Used after rendering frontmatter in isolation.
func (d *Document) Splice(newRaw string) string {
	if !d.HasFrontmatter() {
		return d.Body
	}
	delim := yamlDelimiter
	if d.Format == FormatTOML {
		delim = tomlDelimiter
	}
	raw := newRaw
	if raw != "" && !strings.HasSuffix(raw, "\n") {
		raw += "\n"
	}
	return delim + "\n" + raw + delim + "\n" + d.Body
}

// Render re-serializes Fields as frontmatter around the body. Keys are
// emitted in the encoder's deterministic order, so rendering the same
// fields always yields the same bytes.
func (d *Document) Render() (string, error) {
	if !d.HasFrontmatter() || d.Fields == nil {
		return d.Body, nil
	}

	var raw []byte
	var err error
	switch d.Format {
	case FormatYAML:
		raw, err = yaml.Marshal(d.Fields)
	case FormatTOML:
		raw, err = toml.Marshal(d.Fields)
	}
	if err != nil {
		return "", fmt.Errorf("serializing frontmatter: %w", err)
	}
	if len(d.Fields) == 0 {
		raw = nil
	}

	return d.Splice(string(raw)), nil
}

// GetBool returns a nested boolean field addressed by dotted path, e.g.
// "agpm.templating". Missing or non-boolean values return false.
func (d *Document) GetBool(path string) bool {
	if d == nil || d.Fields == nil {
		return false
	}
	var cur interface{} = map[string]interface{}(d.Fields)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return false
		}
		cur, ok = m[part]
		if !ok {
			return false
		}
	}
	b, ok := cur.(bool)
	return ok && b
}
