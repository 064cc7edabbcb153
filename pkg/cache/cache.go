// Package cache manages bare Git repositories and SHA-keyed worktrees under
// the agpm cache root. It coordinates concurrent access three ways: an
// in-process worktree map deduplicates creation within a process,
// cross-process file locks serialize clones and worktree admin against
// other agpm processes, and a persistent registry remembers worktree
// provenance across runs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agpm-dev/agpm/pkg/fsutil"
	"github.com/agpm-dev/agpm/pkg/gitcmd"
)

// Cache is a cheaply copyable handle to the on-disk cache. Copies share
// state: the worktree coordination map, the fetched-repo set, and the
// registry all live behind one shared pointer.
type Cache struct {
	dir   string
	state *sharedState
}

type sharedState struct {
	dirHash string

	worktreeMu *timedMutex
	worktrees  map[string]*worktreeState

	// fetchLocks is reserved for per-repo fetch serialization; fetches are
	// currently deduplicated per process via fetchedRepos instead.
	fetchLocks map[string]*sync.Mutex

	// fetchMu guards fetchedRepos. A plain timed mutex, not an RWMutex:
	// the set is touched once per repo per process, so a read fast path
	// buys nothing, and sync.RWMutex cannot carry the bounded-timeout
	// acquisition every in-process lock here must have.
	fetchMu      *timedMutex
	fetchedRepos map[string]bool

	registryMu *timedMutex
	registry   *registry
}

// New opens (creating on demand) the cache rooted at dir.
func New(dir string) (*Cache, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving cache directory: %w", err)
	}

	for _, sub := range []string{"sources", "worktrees", ".locks"} {
		if err := fsutil.EnsureDir(filepath.Join(abs, sub)); err != nil {
			return nil, err
		}
	}

	sum := sha256.Sum256([]byte(abs))

	return &Cache{
		dir: abs,
		state: &sharedState{
			dirHash:      hex.EncodeToString(sum[:])[:8],
			worktreeMu:   newTimedMutex("worktree map"),
			worktrees:    make(map[string]*worktreeState),
			fetchLocks:   make(map[string]*sync.Mutex),
			fetchMu:      newTimedMutex("fetched-repo set"),
			fetchedRepos: make(map[string]bool),
			registryMu:   newTimedMutex("worktree registry"),
			registry:     loadRegistry(filepath.Join(abs, "worktrees")),
		},
	}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

// Clone returns a handle aliasing the same cache state.
func (c *Cache) Clone() *Cache {
	return &Cache{dir: c.dir, state: c.state}
}

// bareRepoPath returns the bare clone location for a parsed identity.
func (c *Cache) bareRepoPath(owner, repo string) string {
	return filepath.Join(c.dir, "sources", fmt.Sprintf("%s_%s.git", owner, repo))
}

// worktreePath returns the worktree location for an identity and SHA.
func (c *Cache) worktreePath(owner, repo, sha string) string {
	return filepath.Join(c.dir, "worktrees", fmt.Sprintf("%s_%s_%s", owner, repo, sha[:8]))
}

// worktreeKey builds the in-process coordination key. The cache-dir hash
// keeps keys distinct when tests run multiple caches in one process.
func (c *Cache) worktreeKey(owner, repo, sha string) string {
	return fmt.Sprintf("%s:%s_%s:%s", c.state.dirHash, owner, repo, sha)
}

// localPathBlacklist lists roots that can never be used as a local source.
var localPathBlacklist = []string{"/", "/bin", "/boot", "/dev", "/etc", "/lib", "/proc", "/root", "/sbin", "/sys", "/usr", "/var"}

// validateLocalPath canonicalizes a local source path (resolving symlinks)
// and rejects it when the canonical path is one of the blacklisted system
// roots or does not exist. Symlinks are followed wherever they point; no
// other symlink check is made.
func validateLocalPath(path string) (string, error) {
	path = strings.TrimPrefix(path, "file://")

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving local source path %s: %w", path, err)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("local source path does not exist: %s", abs)
	}

	for _, banned := range localPathBlacklist {
		if canonical == banned {
			return "", fmt.Errorf("refusing to use system directory as a local source: %s", canonical)
		}
	}

	if _, err := os.Stat(canonical); err != nil {
		return "", fmt.Errorf("local source path not accessible: %w", err)
	}

	return canonical, nil
}

// GetOrCloneSource returns the on-disk location of a source. Local-path
// sources are validated and returned as their canonical path; Git sources are cloned bare on
// first use and fetched at most once per process on subsequent uses. Fetch
// failures degrade to a warning: stale local refs are tolerated.
func (c *Cache) GetOrCloneSource(ctx context.Context, name, url, version string) (string, error) {
	if gitcmd.IsLocalPath(url) {
		if version != "" && version != "local" {
			slog.Warn("version constraints are ignored for local directory sources",
				"source", name, "version", version)
		}
		return validateLocalPath(url)
	}

	lock, err := c.acquireFileLock(ctx, "source-"+name)
	if err != nil {
		return "", err
	}
	defer lock.Release()

	owner, repo, err := gitcmd.ParseGitURL(url)
	if err != nil {
		return "", err
	}

	barePath := c.bareRepoPath(owner, repo)
	if _, statErr := os.Stat(barePath); os.IsNotExist(statErr) {
		if err := c.cloneBare(ctx, owner, repo, url); err != nil {
			return "", err
		}
		return barePath, nil
	}

	if err := c.fetchOncePerProcess(ctx, barePath); err != nil {
		slog.Warn("fetch failed; continuing with cached refs",
			"source", name, "url", gitcmd.StripAuthFromURL(url), "error", err)
	}

	return barePath, nil
}

// cloneBare clones url as a bare repository under the bare-repo file lock,
// re-checking existence after acquisition so concurrent processes clone
// once.
func (c *Cache) cloneBare(ctx context.Context, owner, repo, url string) error {
	lock, err := c.acquireFileLock(ctx, fmt.Sprintf("bare-repo-%s_%s", owner, repo))
	if err != nil {
		return err
	}
	defer lock.Release()

	barePath := c.bareRepoPath(owner, repo)
	if _, err := os.Stat(barePath); err == nil {
		return nil
	}

	if _, err := gitcmd.CloneBare(url, barePath).Run(ctx); err != nil {
		return err
	}

	c.tuneRepoConnection(ctx, barePath)
	c.markFetched(barePath)
	return nil
}

// tuneRepoConnection applies transfer settings to a fresh clone.
// Best-effort: failures only lose the tuning.
func (c *Cache) tuneRepoConnection(ctx context.Context, repoPath string) {
	settings := [][2]string{
		{"http.version", "HTTP/2"},
		{"http.postBuffer", "524288000"},
		{"core.compression", "0"},
	}
	for _, kv := range settings {
		if _, err := gitcmd.ConfigSet(repoPath, kv[0], kv[1]).Run(ctx); err != nil {
			slog.Debug("repo tuning failed", "repo", repoPath, "key", kv[0], "error", err)
		}
	}
}

// fetchOncePerProcess fetches a bare repo at most once per process.
func (c *Cache) fetchOncePerProcess(ctx context.Context, barePath string) error {
	if err := c.state.fetchMu.Lock(); err != nil {
		return err
	}
	fetched := c.state.fetchedRepos[barePath]
	c.state.fetchMu.Unlock()
	if fetched {
		return nil
	}

	if _, err := gitcmd.Fetch(barePath).Run(ctx); err != nil {
		return err
	}

	c.markFetched(barePath)
	return nil
}

func (c *Cache) markFetched(barePath string) {
	if err := c.state.fetchMu.Lock(); err != nil {
		return
	}
	c.state.fetchedRepos[barePath] = true
	c.state.fetchMu.Unlock()
}

// touchRegistry records a successful worktree use.
func (c *Cache) touchRegistry(key, source, version, path string) {
	if err := c.state.registryMu.Lock(); err != nil {
		slog.Warn("skipping registry update", "error", err)
		return
	}
	defer c.state.registryMu.Unlock()
	if err := c.state.registry.touch(key, source, version, path); err != nil {
		slog.Warn("failed to persist worktree registry", "error", err)
	}
}
