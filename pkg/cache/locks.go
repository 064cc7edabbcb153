package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nightlyone/lockfile"

	agpmerrors "github.com/agpm-dev/agpm/pkg/errors"
	"github.com/agpm-dev/agpm/pkg/fsutil"
)

// Cross-process lock names used by the cache:
//
//	source-{name}                     serializes get-or-clone per source
//	bare-repo-{owner}_{repo}          guards the initial bare clone
//	bare-worktree-{owner}_{repo}      serializes all worktree admin ops
//	worktree-{owner}-{repo}-{sha8}    per-worktree creation guard
//
// The bare-worktree lock exists because git keeps a single worktree-admin
// directory per bare repo; concurrent `worktree add` against one repo
// produces "missing but already registered worktree" failures.

// fileLock is a held cross-process lock. Release is idempotent.
type fileLock struct {
	lf       lockfile.Lockfile
	released bool
}

// acquireFileLock takes the named lock under <cache_root>/.locks/,
// polling while another process holds it, bounded by FileLockTimeout.
func (c *Cache) acquireFileLock(ctx context.Context, name string) (*fileLock, error) {
	locksDir := filepath.Join(c.dir, ".locks")
	if err := fsutil.EnsureDir(locksDir); err != nil {
		return nil, err
	}

	path, err := filepath.Abs(filepath.Join(locksDir, name+".lock"))
	if err != nil {
		return nil, fmt.Errorf("resolving lock path for %s: %w", name, err)
	}

	lf, err := lockfile.New(path)
	if err != nil {
		return nil, fmt.Errorf("creating lock %s: %w", name, err)
	}

	deadline := time.Now().Add(FileLockTimeout)
	for {
		err := lf.TryLock()
		if err == nil {
			return &fileLock{lf: lf}, nil
		}
		// ErrBusy means another live process holds it; dead-owner and
		// invalid-pid states are cleaned by the library on the next try.
		if !errors.Is(err, lockfile.ErrBusy) &&
			!errors.Is(err, lockfile.ErrDeadOwner) &&
			!errors.Is(err, lockfile.ErrInvalidPid) &&
			!errors.Is(err, lockfile.ErrRogueDeletion) {
			return nil, fmt.Errorf("acquiring lock %s: %w", name, err)
		}

		if time.Now().After(deadline) {
			return nil, agpmerrors.LockTimeout(&LockTimeoutError{Name: "file lock " + name, Timeout: FileLockTimeout}, "")
		}

		timer := time.NewTimer(FileLockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Release drops the lock. Safe to call more than once.
func (l *fileLock) Release() {
	if l == nil || l.released {
		return
	}
	l.released = true
	_ = l.lf.Unlock()
}
