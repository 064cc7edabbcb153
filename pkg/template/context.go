package template

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DefaultContextBuilder builds rendering contexts from the resource's own
// identity and variant inputs. Richer builders (dependency graphs, snippet
// embedding) satisfy the same interface; the installer does not care where
// the context comes from.
type DefaultContextBuilder struct {
	projectDir string
}

// NewDefaultContextBuilder creates the built-in context builder.
func NewDefaultContextBuilder(projectDir string) *DefaultContextBuilder {
	return &DefaultContextBuilder{projectDir: projectDir}
}

// BuildContext implements ContextBuilder. The returned checksum is a
// SHA-256 over the canonical JSON encoding of the context, so any change in
// context inputs changes the checksum.
func (b *DefaultContextBuilder) BuildContext(_ context.Context, id ResourceID, variantInputs map[string]interface{}) (map[string]interface{}, string, error) {
	tmplContext := map[string]interface{}{
		"name":    id.Name,
		"source":  id.Source,
		"tool":    id.Tool,
		"type":    id.Type.String(),
		"project": b.projectDir,
		"variant": variantInputs,
	}
	for k, v := range variantInputs {
		if _, reserved := tmplContext[k]; !reserved {
			tmplContext[k] = v
		}
	}

	checksum, err := ContextChecksum(tmplContext)
	if err != nil {
		return nil, "", err
	}
	return tmplContext, checksum, nil
}

// ContextChecksum digests a rendering context. Canonical JSON (sorted
// object keys) keeps the digest deterministic.
func ContextChecksum(context map[string]interface{}) (string, error) {
	data, err := json.Marshal(context)
	if err != nil {
		return "", fmt.Errorf("encoding template context: %w", err)
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
