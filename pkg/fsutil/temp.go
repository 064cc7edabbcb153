package fsutil

import (
	"fmt"
	"os"
)

// TempDir is a uniquely named directory under the OS temp dir that is
// removed when Close is called. Callers should defer Close immediately after
// a successful New so the directory is released on all exit paths.
type TempDir struct {
	path string
}

// NewTempDir creates a temp directory with the given name pattern.
func NewTempDir(pattern string) (*TempDir, error) {
	path, err := os.MkdirTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	return &TempDir{path: path}, nil
}

// Path returns the directory path.
func (t *TempDir) Path() string {
	return t.path
}

// Close removes the directory tree. Safe to call more than once.
func (t *TempDir) Close() error {
	if t.path == "" {
		return nil
	}
	path := t.path
	t.path = ""
	return RemoveDirAll(path)
}
