package cache

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/agpm-dev/agpm/pkg/errors"
)

// LockTimeoutError reports that an in-process lock could not be acquired
// within its bound. Treated as a possible-deadlock condition.
type LockTimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("possible deadlock: timed out acquiring %s after %s", e.Name, e.Timeout)
}

// timedMutex is a mutex whose Lock is bounded by a timeout. Every
// acquisition site handles the timeout as an error rather than suspending
// forever.
type timedMutex struct {
	name string
	ch   chan struct{}
}

func newTimedMutex(name string) *timedMutex {
	m := &timedMutex{name: name, ch: make(chan struct{}, 1)}
	return m
}

// Lock acquires the mutex or fails after MutexTimeout.
func (m *timedMutex) Lock() error {
	select {
	case m.ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(MutexTimeout)
	defer timer.Stop()

	select {
	case m.ch <- struct{}{}:
		return nil
	case <-timer.C:
		slog.Error("lock acquisition timed out", "lock", m.name, "timeout", MutexTimeout)
		return errors.LockTimeout(&LockTimeoutError{Name: m.name, Timeout: MutexTimeout}, "")
	}
}

// Unlock releases the mutex. Must only be called after a successful Lock.
func (m *timedMutex) Unlock() {
	<-m.ch
}
