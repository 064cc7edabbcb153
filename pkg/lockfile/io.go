package lockfile

import (
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/agpm-dev/agpm/pkg/errors"
	"github.com/agpm-dev/agpm/pkg/fsutil"
)

// header warns against hand-editing; it is prepended to every save.
const header = "# Auto-generated lockfile - DO NOT EDIT\n"

// ParseError reports a syntactically invalid lockfile.
type ParseError struct {
	File   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid lockfile %s: %s\n\nThe lockfile may be corrupted. You can:\n- Delete it and run 'agpm install' to regenerate it\n- Check for syntax errors if you manually edited the file", e.File, e.Reason)
}

// VersionError reports a lockfile written by a newer agpm.
type VersionError struct {
	Found     int
	Supported int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("lockfile version %d is newer than supported version %d\n\nThis lockfile was created by a newer version of agpm.\nPlease update agpm to use this lockfile.", e.Found, e.Supported)
}

// Load reads a lockfile from disk. A missing or empty file yields an empty
// lockfile, not an error. After parsing, each entry is stamped with the
// resource type of the section it appeared in, given a default tool when
// absent, and has its variant hash recomputed.
func Load(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading lockfile %s: %w", path, err)
	}

	if strings.TrimSpace(string(data)) == "" {
		return New(), nil
	}

	var lf LockFile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, errors.Validation(&ParseError{File: path, Reason: err.Error()}, "")
	}

	for _, s := range lf.sections() {
		for _, r := range *s.Entries {
			r.ResourceType = s.Type
			if r.Tool == "" {
				r.Tool = s.Type.DefaultTool()
			}
			r.RecomputeVariantHash()
		}
	}

	if lf.Version > CurrentVersion {
		return nil, errors.Validation(&VersionError{Found: lf.Version, Supported: CurrentVersion}, "")
	}

	return &lf, nil
}

// Save writes the lockfile atomically with the warning header and the
// custom formatting (inline applied_patches, deterministic key order).
func (lf *LockFile) Save(path string) error {
	lf.Normalize()

	content, err := marshalLockFile(lf)
	if err != nil {
		return fmt.Errorf("serializing lockfile: %w", err)
	}

	if err := fsutil.AtomicWrite(path, []byte(header+content)); err != nil {
		return fmt.Errorf("writing lockfile %s: %w", path, err)
	}
	return nil
}
