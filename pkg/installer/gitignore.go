package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agpm-dev/agpm/pkg/fsutil"
)

// addToGitignore appends a project-relative path to the project's
// .gitignore, creating the file on demand and suppressing duplicates.
// Callers add the path BEFORE writing the artifact so a crash mid-install
// cannot leave an untracked file committable. Entries are never removed:
// stale lines are harmless.
func addToGitignore(projectDir, relPath string, mu *sync.Mutex) error {
	mu.Lock()
	defer mu.Unlock()

	gitignorePath := filepath.Join(projectDir, ".gitignore")
	line := filepath.ToSlash(relPath)

	existing, err := os.ReadFile(gitignorePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading .gitignore: %w", err)
	}

	for _, l := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(l) == line {
			return nil
		}
	}

	content := string(existing)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += line + "\n"

	if err := fsutil.AtomicWrite(gitignorePath, []byte(content)); err != nil {
		return fmt.Errorf("updating .gitignore: %w", err)
	}
	return nil
}
