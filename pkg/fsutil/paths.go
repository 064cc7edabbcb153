package fsutil

import (
	"path/filepath"
	"strings"
)

// NormalizePath performs a purely logical normalization of a path: it cleans
// "." and ".." segments and converts separators, without touching the
// filesystem. Relative segments that would escape the root are preserved so
// IsSafePath can reject them.
func NormalizePath(path string) string {
	return filepath.Clean(filepath.FromSlash(path))
}

// IsSafePath reports whether p, after logical normalization, stays under
// base. Neither path is resolved against the filesystem, so the check is a
// defense against traversal in untrusted relative paths, not symlinks.
func IsSafePath(base, p string) bool {
	normBase := NormalizePath(base)
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(normBase, target)
	}
	target = NormalizePath(target)

	rel, err := filepath.Rel(normBase, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
