// Package patch applies field-level overrides to resource content before
// templating. Patches are not textual diffs: each patch sets a frontmatter
// field (Markdown resources) or a top-level key (JSON resources) to a fixed
// value. Project-level patches apply first, then private patches overlay
// them.
package patch

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/agpm-dev/agpm/pkg/markdown"
)

// Patches maps (resource_type_plural, lookup_name) to field overrides.
type Patches map[string]map[string]map[string]interface{}

// Get returns the field overrides for a resource, or nil.
func (p Patches) Get(resourceTypePlural, name string) map[string]interface{} {
	if p == nil {
		return nil
	}
	byName, ok := p[resourceTypePlural]
	if !ok {
		return nil
	}
	return byName[name]
}

// Applied records, sorted by field name, every field that was overridden
// and its final value.
type Applied []Field

// Field is a single applied override.
type Field struct {
	Name  string
	Value interface{}
}

// Equal compares two applied-patch records field by field.
func (a Applied) Equal(b Applied) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !reflect.DeepEqual(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

// Apply overlays project then private patches onto content. filePath
// selects the patching strategy: ".json" files are patched as JSON objects,
// everything else as Markdown frontmatter. The returned Applied lists every
// overridden field once, sorted by field name across both layers, with
// private values superseding project values for the same field.
func Apply(content, filePath string, project, private map[string]interface{}) (string, Applied, error) {
	if len(project) == 0 && len(private) == 0 {
		return content, nil, nil
	}

	merged := make(map[string]interface{}, len(project)+len(private))
	for k, v := range project {
		merged[k] = v
	}
	for k, v := range private {
		merged[k] = v
	}

	applied := make(Applied, 0, len(merged))
	for _, name := range sortedKeys(merged) {
		applied = append(applied, Field{Name: name, Value: merged[name]})
	}

	if strings.HasSuffix(filePath, ".json") {
		patched, err := applyJSON(content, merged)
		if err != nil {
			return "", nil, err
		}
		return patched, applied, nil
	}

	patched, err := applyFrontmatter(content, merged)
	if err != nil {
		return "", nil, err
	}
	return patched, applied, nil
}

func applyFrontmatter(content string, fields map[string]interface{}) (string, error) {
	doc, err := markdown.Parse(content)
	if err != nil {
		return "", err
	}
	if !doc.HasFrontmatter() {
		return "", fmt.Errorf("cannot patch fields: document has no frontmatter")
	}
	if doc.Fields == nil {
		return "", fmt.Errorf("cannot patch fields: %s", doc.Warning)
	}

	for k, v := range fields {
		doc.Fields[k] = v
	}
	return doc.Render()
}

func applyJSON(content string, fields map[string]interface{}) (string, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return "", fmt.Errorf("cannot patch JSON content: %w", err)
	}
	for k, v := range fields {
		obj[k] = v
	}
	out, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serializing patched JSON: %w", err)
	}
	return string(out) + "\n", nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
