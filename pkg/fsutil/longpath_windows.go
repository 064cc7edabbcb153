//go:build windows

package fsutil

import (
	"path/filepath"
	"strings"
)

// legacyPathLimit is the classic MAX_PATH limit on Windows. Paths at or
// beyond it need the extended-length prefix to be addressable.
const legacyPathLimit = 260

// longPath applies the \\?\ extended-length prefix to absolute paths that
// exceed the legacy limit. Relative and already-prefixed paths are returned
// unchanged.
func longPath(path string) string {
	if len(path) < legacyPathLimit {
		return path
	}
	if strings.HasPrefix(path, `\\?\`) {
		return path
	}
	if !filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, `\\`) {
		// UNC path: \\server\share -> \\?\UNC\server\share
		return `\\?\UNC` + path[1:]
	}
	return `\\?\` + path
}
