package lockfile

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// marshalLockFile renders the lockfile with a fixed key order per entry and
// applied_patches / variant_inputs as inline tables, keeping the file
// compact and diff-friendly. The standard marshaler would emit sub-tables
// for those maps, which balloons diffs when a single patch changes.
func marshalLockFile(lf *LockFile) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "version = %d\n", lf.Version)

	for _, src := range lf.Sources {
		b.WriteString("\n[[sources]]\n")
		writeKV(&b, "name", src.Name)
		writeKV(&b, "url", src.URL)
		writeKV(&b, "commit", src.Commit)
		writeKV(&b, "fetched_at", src.FetchedAt)
	}

	for _, s := range lf.sections() {
		for _, r := range *s.Entries {
			fmt.Fprintf(&b, "\n[[%s]]\n", s.Type.Plural())
			if err := writeResource(&b, r); err != nil {
				return "", err
			}
		}
	}

	return b.String(), nil
}

func writeResource(b *strings.Builder, r *LockedResource) error {
	writeKV(b, "name", r.Name)
	if r.ManifestAlias != "" {
		writeKV(b, "manifest_alias", r.ManifestAlias)
	}
	if r.Source != "" {
		writeKV(b, "source", r.Source)
	}
	if r.URL != "" {
		writeKV(b, "url", r.URL)
	}
	writeKV(b, "path", r.Path)
	if r.Version != "" {
		writeKV(b, "version", r.Version)
	}
	if r.ResolvedCommit != "" {
		writeKV(b, "resolved_commit", r.ResolvedCommit)
	}
	writeKV(b, "checksum", r.Checksum)
	if r.ContextChecksum != "" {
		writeKV(b, "context_checksum", r.ContextChecksum)
	}
	writeKV(b, "installed_at", r.InstalledAt)
	if r.Install != nil && !*r.Install {
		fmt.Fprintf(b, "install = false\n")
	}
	if r.Tool != "" {
		writeKV(b, "tool", r.Tool)
	}
	if len(r.VariantInputs) > 0 {
		inline, err := inlineTable(r.VariantInputs)
		if err != nil {
			return fmt.Errorf("encoding variant_inputs for %s: %w", r.Name, err)
		}
		fmt.Fprintf(b, "variant_inputs = %s\n", inline)
	}
	if len(r.AppliedPatches) > 0 {
		inline, err := inlineTable(r.AppliedPatches)
		if err != nil {
			return fmt.Errorf("encoding applied_patches for %s: %w", r.Name, err)
		}
		fmt.Fprintf(b, "applied_patches = %s\n", inline)
	}
	return nil
}

func writeKV(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s = %s\n", key, tomlString(value))
}

// inlineTable encodes a map as a TOML inline table with sorted keys.
func inlineTable(m map[string]interface{}) (string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := tomlValue(m[k])
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s = %s", tomlKey(k), v))
	}
	return "{ " + strings.Join(parts, ", ") + " }", nil
}

func tomlValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", fmt.Errorf("TOML cannot represent null values")
	case string:
		return tomlString(val), nil
	case bool:
		return fmt.Sprintf("%t", val), nil
	case int:
		return fmt.Sprintf("%d", val), nil
	case int64:
		return fmt.Sprintf("%d", val), nil
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return fmt.Sprintf("%.1f", val), nil
		}
		return fmt.Sprintf("%g", val), nil
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, err := tomlValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case map[string]interface{}:
		return inlineTable(val)
	default:
		return "", fmt.Errorf("unsupported TOML value type %T", v)
	}
}

// tomlKey emits a bare key when legal and a quoted key otherwise.
func tomlKey(k string) string {
	for _, r := range k {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return tomlString(k)
		}
	}
	if k == "" {
		return tomlString(k)
	}
	return k
}

// tomlString encodes a basic TOML string.
func tomlString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
