package cache

import "time"

// Timeouts for lock acquisition and worktree coordination. Package-level
// variables so tests can shorten them; production code treats them as
// constants.
var (
	// MutexTimeout bounds in-process mutex acquisition. Exceeding it is
	// treated as a possible deadlock and surfaced as an error instead of
	// blocking forever.
	MutexTimeout = 30 * time.Second

	// FileLockTimeout bounds cross-process file lock acquisition.
	FileLockTimeout = 5 * time.Minute

	// FileLockPollInterval is the retry cadence while a file lock is busy.
	FileLockPollInterval = 100 * time.Millisecond

	// PendingStateTimeout bounds how long a task waits on another task's
	// in-flight worktree creation before taking over the slot.
	PendingStateTimeout = 2 * time.Minute
)
