package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agpm-dev/agpm/pkg/errors"
	"github.com/agpm-dev/agpm/pkg/fsutil"
	"github.com/agpm-dev/agpm/pkg/gitcmd"
)

// worktreeState is the two-variant coordination record for one worktree
// key: pending (creation in flight, done not yet closed) or ready (path
// set, done closed). Every reader must handle both variants.
type worktreeState struct {
	done chan struct{}
	once sync.Once

	// path and ready are written before notify and only read after the
	// map lock is re-acquired or done is closed.
	path  string
	ready bool
}

func newPendingState() *worktreeState {
	return &worktreeState{done: make(chan struct{})}
}

// notify wakes all waiters. Idempotent: both the creator's publish path and
// a timeout takeover may fire it.
func (s *worktreeState) notify() {
	s.once.Do(func() { close(s.done) })
}

// GetOrCreateWorktreeForSHA returns the path of a worktree checked out at
// the given commit, creating it if needed. sha must be a full 40-character
// lowercase hex SHA. Local-path sources degrade to GetOrCloneSource: they
// have no commits to key worktrees by.
//
// Concurrent callers for the same key coordinate through the in-process
// map: one becomes the creator, the rest wait for its notify. A waiter that
// outlives PendingStateTimeout takes over the slot so an abandoned creation
// cannot wedge the process.
func (c *Cache) GetOrCreateWorktreeForSHA(ctx context.Context, name, url, sha string, opContext string) (string, error) {
	if gitcmd.IsLocalPath(url) {
		return c.GetOrCloneSource(ctx, name, url, "local")
	}

	if !gitcmd.IsValidSHA(sha) {
		return "", errors.Validation(fmt.Errorf("invalid SHA %q for source %s: expected 40 lowercase hex characters", sha, name), "")
	}

	owner, repo, err := gitcmd.ParseGitURL(url)
	if err != nil {
		return "", err
	}
	key := c.worktreeKey(owner, repo, sha)

	for {
		st, creator, readyPath, err := c.claimWorktreeSlot(key)
		if err != nil {
			return "", err
		}

		if readyPath != "" {
			c.touchRegistry(key, url, sha[:8], readyPath)
			return readyPath, nil
		}

		if creator {
			return c.createAndPublish(ctx, st, key, owner, repo, url, sha)
		}

		// Waiter: the done channel was captured while the map lock was
		// held, so a publish between then and now is still observed.
		timer := time.NewTimer(PendingStateTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-st.done:
			timer.Stop()
			// Re-check: the creator may have published or failed.
			continue
		case <-timer.C:
			slog.Warn("worktree creation pending too long; taking over",
				"key", key, "timeout", PendingStateTimeout, "context", opContext)
			fresh, err := c.takeOverSlot(key, st)
			if err != nil {
				return "", err
			}
			if fresh != nil {
				// The slot is ours now; proceed as the creator so the
				// woken waiters have someone to wait on.
				return c.createAndPublish(ctx, fresh, key, owner, repo, url, sha)
			}
			// Someone else already replaced the stuck state; re-check.
			continue
		}
	}
}

// claimWorktreeSlot inspects the coordination map entry for key. The state
// fields are only read while the map lock is held; a ready path is returned
// as a snapshot so callers never touch the state unsynchronized. Vacant
// slots and ready slots whose path was externally deleted are claimed with
// a fresh pending state.
func (c *Cache) claimWorktreeSlot(key string) (st *worktreeState, creator bool, readyPath string, err error) {
	if err := c.state.worktreeMu.Lock(); err != nil {
		return nil, false, "", err
	}
	defer c.state.worktreeMu.Unlock()

	st, ok := c.state.worktrees[key]
	if !ok {
		st = newPendingState()
		c.state.worktrees[key] = st
		return st, true, "", nil
	}

	if st.ready {
		if _, statErr := os.Stat(st.path); statErr == nil {
			return st, false, st.path, nil
		}
		// Externally deleted: reclaim with a fresh pending state.
		fresh := newPendingState()
		c.state.worktrees[key] = fresh
		return fresh, true, "", nil
	}

	return st, false, "", nil
}

// takeOverSlot forcibly replaces a stuck pending state with a fresh one
// owned by the caller, who must proceed as its creator. Other waiters are
// woken so they re-check the new state. Returns nil when the stuck state
// was already replaced by someone else; the caller re-checks instead.
func (c *Cache) takeOverSlot(key string, stuck *worktreeState) (*worktreeState, error) {
	if err := c.state.worktreeMu.Lock(); err != nil {
		return nil, err
	}
	var fresh *worktreeState
	if c.state.worktrees[key] == stuck {
		fresh = newPendingState()
		c.state.worktrees[key] = fresh
	}
	c.state.worktreeMu.Unlock()
	stuck.notify()
	return fresh, nil
}

// createAndPublish runs the creation sequence and publishes the result on
// the pending state we own. On failure the slot is vacated and waiters are
// woken so they re-race the creation instead of hanging.
func (c *Cache) createAndPublish(ctx context.Context, st *worktreeState, key, owner, repo, url, sha string) (string, error) {
	path, err := c.createWorktree(ctx, owner, repo, url, sha)

	lockErr := c.state.worktreeMu.Lock()
	if lockErr == nil {
		if err == nil {
			st.path = path
			st.ready = true
			// Publish unless the slot already holds a ready state; a
			// pending state installed meanwhile by a takeover is replaced.
			if c.state.worktrees[key] == nil || !c.state.worktrees[key].ready {
				c.state.worktrees[key] = st
			}
		} else if c.state.worktrees[key] == st {
			delete(c.state.worktrees, key)
		}
		c.state.worktreeMu.Unlock()
	}
	st.notify()

	if err != nil {
		return "", err
	}
	if lockErr != nil {
		return "", lockErr
	}

	c.touchRegistry(key, url, sha[:8], path)
	return path, nil
}

// createWorktree materializes the worktree on disk: bare clone on demand,
// per-worktree lock, worktree-admin lock, `git worktree add`, then a
// durability fsync of the new directories.
func (c *Cache) createWorktree(ctx context.Context, owner, repo, url, sha string) (string, error) {
	barePath := c.bareRepoPath(owner, repo)
	if _, err := os.Stat(barePath); os.IsNotExist(err) {
		if err := c.cloneBare(ctx, owner, repo, url); err != nil {
			return "", err
		}
	}

	path := c.worktreePath(owner, repo, sha)

	wtLock, err := c.acquireFileLock(ctx, fmt.Sprintf("worktree-%s-%s-%s", owner, repo, sha[:8]))
	if err != nil {
		return "", err
	}
	defer wtLock.Release()

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	// All worktree admin ops against one bare repo share a single git
	// metadata directory; the admin lock is mandatory. Do not prune here:
	// prune affects the whole admin dir and races with sibling creations
	// holding different per-SHA locks.
	adminLock, err := c.acquireFileLock(ctx, fmt.Sprintf("bare-worktree-%s_%s", owner, repo))
	if err != nil {
		return "", err
	}
	defer adminLock.Release()

	_, err = gitcmd.WorktreeAdd(barePath, path, sha, false).Run(ctx)
	if err != nil && gitcmd.IsStaleWorktreeError(err) {
		slog.Debug("stale worktree registration; pruning and retrying", "path", path)
		if _, pruneErr := gitcmd.WorktreePrune(barePath).Run(ctx); pruneErr != nil {
			slog.Warn("worktree prune failed", "repo", barePath, "error", pruneErr)
		}
		_, err = gitcmd.WorktreeAdd(barePath, path, sha, true).Run(ctx)
	}
	if err != nil {
		return "", err
	}

	syncDirs(path, filepath.Join(barePath, "worktrees"))

	return path, nil
}

// syncDirs fsyncs directories created by `git worktree add`. On APFS and
// similar, files created by the child process may not be visible to an
// immediate open without this. Best-effort.
func syncDirs(paths ...string) {
	for _, p := range paths {
		d, err := os.Open(p)
		if err != nil {
			continue
		}
		_ = d.Sync()
		_ = d.Close()
	}
}

// CleanupWorktree removes one worktree. The source URL comes from the
// registry rather than from parsing the path, because owner and repo names
// may themselves contain underscores.
func (c *Cache) CleanupWorktree(ctx context.Context, path string) error {
	var key string
	var entry registryEntry
	var known bool

	if err := c.state.registryMu.Lock(); err != nil {
		return err
	}
	key, entry, known = c.state.registry.findByPath(path)
	c.state.registryMu.Unlock()

	if known {
		if owner, repo, err := gitcmd.ParseGitURL(entry.Source); err == nil {
			barePath := c.bareRepoPath(owner, repo)
			if _, statErr := os.Stat(barePath); statErr == nil {
				adminLock, lockErr := c.acquireFileLock(ctx, fmt.Sprintf("bare-worktree-%s_%s", owner, repo))
				if lockErr != nil {
					return lockErr
				}
				if _, rmErr := gitcmd.WorktreeRemove(barePath, path).Run(ctx); rmErr != nil {
					slog.Debug("git worktree remove failed; falling back to delete",
						"path", path, "error", rmErr)
				}
				adminLock.Release()
			}
		}
	}

	if err := fsutil.RemoveDirAll(path); err != nil {
		return err
	}

	if key != "" {
		if err := c.state.registryMu.Lock(); err != nil {
			return err
		}
		defer c.state.registryMu.Unlock()
		if err := c.state.registry.remove(key); err != nil {
			slog.Warn("failed to update worktree registry", "error", err)
		}
	}

	c.forgetWorktreeByPath(path)
	return nil
}

// forgetWorktreeByPath drops in-process map entries pointing at path.
func (c *Cache) forgetWorktreeByPath(path string) {
	if err := c.state.worktreeMu.Lock(); err != nil {
		return
	}
	defer c.state.worktreeMu.Unlock()
	for key, st := range c.state.worktrees {
		if st.ready && st.path == path {
			delete(c.state.worktrees, key)
		}
	}
}

// CleanupAllWorktrees deletes the whole worktrees subtree, prunes worktree
// metadata in every bare repo, and clears the registry and the in-process
// map.
func (c *Cache) CleanupAllWorktrees(ctx context.Context) error {
	worktreesDir := filepath.Join(c.dir, "worktrees")
	if err := fsutil.RemoveDirAll(worktreesDir); err != nil {
		return err
	}
	if err := fsutil.EnsureDir(worktreesDir); err != nil {
		return err
	}

	sourcesDir := filepath.Join(c.dir, "sources")
	entries, err := os.ReadDir(sourcesDir)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			repoPath := filepath.Join(sourcesDir, entry.Name())
			if _, err := gitcmd.WorktreePrune(repoPath).Run(ctx); err != nil {
				slog.Warn("worktree prune failed", "repo", repoPath, "error", err)
			}
		}
	}

	if err := c.state.worktreeMu.Lock(); err != nil {
		return err
	}
	c.state.worktrees = make(map[string]*worktreeState)
	c.state.worktreeMu.Unlock()

	if err := c.state.registryMu.Lock(); err != nil {
		return err
	}
	defer c.state.registryMu.Unlock()
	return c.state.registry.clear()
}
