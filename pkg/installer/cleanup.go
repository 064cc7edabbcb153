package installer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agpm-dev/agpm/pkg/fsutil"
	"github.com/agpm-dev/agpm/pkg/lockfile"
	"github.com/agpm-dev/agpm/pkg/tools"
)

// CleanupRemovedArtifacts compares the old lockfile against the new one and
// deletes files whose entry disappeared or relocated. After each removal it
// walks upward deleting empty parents, stopping at the owning tool's root
// (e.g. .claude/) and never leaving the project root. Idempotent: a crash
// between lockfile save and cleanup is safe because the next run re-derives
// the same diff.
func CleanupRemovedArtifacts(projectDir string, old, current *lockfile.LockFile) (int, error) {
	if old == nil {
		return 0, nil
	}

	newPaths := make(map[string]string)
	if current != nil {
		for _, r := range current.AllResources() {
			newPaths[r.ID().String()] = installedPath(r)
		}
	}

	cleaned := 0
	for _, r := range old.AllResources() {
		oldPath := installedPath(r)
		if oldPath == "" {
			continue
		}
		if newPath, ok := newPaths[r.ID().String()]; ok && newPath == oldPath {
			continue
		}

		if !fsutil.IsSafePath(projectDir, oldPath) {
			slog.Warn("refusing to clean path outside the project root", "path", oldPath)
			continue
		}

		abs := filepath.Join(projectDir, oldPath)
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			continue
		}
		if err := os.Remove(abs); err != nil {
			return cleaned, fmt.Errorf("removing stale artifact %s: %w", oldPath, err)
		}
		cleaned++

		removeEmptyParents(projectDir, filepath.Dir(abs), cleanupCeiling(r))
	}

	return cleaned, nil
}

// installedPath returns the project-relative destination recorded for an
// entry, deriving the default when installed_at is absent.
func installedPath(r *lockfile.LockedResource) string {
	if r.InstalledAt != "" {
		return filepath.ToSlash(r.InstalledAt)
	}
	toolName := r.Tool
	if toolName == "" {
		toolName = r.ResourceType.DefaultTool()
	}
	tool, err := tools.Parse(toolName)
	if err != nil {
		return ""
	}
	return filepath.ToSlash(filepath.Join(tool.ResourceDir(r.ResourceType), r.Name+".md"))
}

// cleanupCeiling resolves the directory the empty-parent walk must not
// cross for an entry's tool. The ceiling guards against over-eager pruning
// when installed_at is malformed.
func cleanupCeiling(r *lockfile.LockedResource) string {
	toolName := r.Tool
	if toolName == "" {
		toolName = r.ResourceType.DefaultTool()
	}
	tool, err := tools.Parse(toolName)
	if err != nil {
		return ".claude"
	}
	return tool.CleanupCeiling()
}

// removeEmptyParents deletes empty directories from dir upward until a
// non-empty directory, the ceiling, or the project root stops the walk.
func removeEmptyParents(projectDir, dir, ceiling string) {
	ceilingAbs := filepath.Join(projectDir, ceiling)

	for {
		if dir == projectDir || dir == ceilingAbs {
			return
		}
		rel, err := filepath.Rel(projectDir, dir)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
