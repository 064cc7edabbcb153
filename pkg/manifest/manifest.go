// Package manifest reads the slice of the project manifest the installation
// engine consumes: the named sources and the patch override maps. Full
// manifest semantics (dependency declarations, version constraints, pattern
// expansion) belong to the resolver and are not modeled here.
package manifest

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/agpm-dev/agpm/pkg/patch"
)

const (
	// FileName is the project manifest.
	FileName = "agpm.toml"
	// PrivateFileName overlays user-private patches; it is expected to be
	// gitignored.
	PrivateFileName = "agpm.private.toml"
	// LockFileName is the companion lockfile.
	LockFileName = "agpm.lock"
)

// Manifest is the engine-facing view of a project manifest.
type Manifest struct {
	// Sources maps source names to Git URLs or local paths.
	Sources map[string]string `toml:"sources"`

	// Patches maps resource_type_plural -> name -> field overrides.
	Patches patch.Patches `toml:"patches"`
}

// Load reads a manifest file. A missing file is an error: the caller
// decides whether absence is acceptable.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest file not found: %s", path)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// LoadOptional reads a manifest, returning an empty one when the file does
// not exist. Used for the private overlay.
func LoadOptional(path string) (*Manifest, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Manifest{}, nil
	}
	return Load(path)
}

// Exists reports whether a manifest file is present.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
