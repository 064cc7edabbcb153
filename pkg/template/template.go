// Package template defines the rendering contract the installer consumes.
// Context construction is pluggable via ContextBuilder; rendering itself is
// a thin engine over text/template. The installer renders frontmatter
// unconditionally and the full document only when the rendered frontmatter
// opts in with agpm.templating: true.
package template

import (
	"context"
	"fmt"
	"strings"
	texttemplate "text/template"

	"github.com/agpm-dev/agpm/pkg/resource"
)

// ResourceID identifies a resource variant for context construction.
// VariantHash distinguishes otherwise-identical resources rendered with
// different parameters.
type ResourceID struct {
	Name        string
	Source      string
	Tool        string
	Type        resource.Type
	VariantHash string
}

// String returns the stable identifier used to key per-resource results.
func (id ResourceID) String() string {
	var b strings.Builder
	b.WriteString(id.Type.Plural())
	b.WriteByte('/')
	if id.Source != "" {
		b.WriteString(id.Source)
		b.WriteByte(':')
	}
	b.WriteString(id.Name)
	if id.VariantHash != "" {
		b.WriteByte('@')
		b.WriteString(id.VariantHash)
	}
	return b.String()
}

// ContextBuilder produces the rendering context for one resource. The
// returned checksum is a SHA-256 over the context inputs and is persisted
// in the lockfile as context_checksum so context changes can be detected
// without re-rendering.
type ContextBuilder interface {
	BuildContext(ctx context.Context, id ResourceID, variantInputs map[string]interface{}) (map[string]interface{}, string, error)
}

// Renderer renders template content against a context built by a
// ContextBuilder.
type Renderer struct {
	projectDir         string
	maxContentFileSize int64
}

// NewRenderer creates a renderer. maxContentFileSize bounds the size of
// content files a context may embed; it is enforced by builders, carried
// here for parity with the install context.
func NewRenderer(projectDir string, maxContentFileSize int64) *Renderer {
	return &Renderer{projectDir: projectDir, maxContentFileSize: maxContentFileSize}
}

// Render executes content as a template against context. Missing variables
// and syntax errors are render-time failures; the installer fails the
// single resource and the batch aggregates them.
func (r *Renderer) Render(content string, context map[string]interface{}) (string, error) {
	tmpl, err := texttemplate.New("resource").Option("missingkey=error").Parse(content)
	if err != nil {
		return "", fmt.Errorf("invalid template syntax: %w", err)
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, context); err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return out.String(), nil
}
