// Package lock guards resources shared between agentsync processes.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrHeld is returned when another process owns the lock.
var ErrHeld = errors.New("lock held by another process")

// FileLock is an exclusive, non-blocking lock on a file holding the owner's PID.
type FileLock struct {
	path string
	fl   *flock.Flock
	held bool
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, fl: flock.New(path)}
}

// TryLock acquires the lock or fails immediately with ErrHeld.
func (l *FileLock) TryLock() error {
	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	if !ok {
		if pid, perr := ReadOwner(l.path); perr == nil {
			return fmt.Errorf("%w: %s (pid %d)", ErrHeld, l.path, pid)
		}
		return fmt.Errorf("%w: %s", ErrHeld, l.path)
	}

	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600); err != nil {
		_ = l.fl.Unlock()
		return fmt.Errorf("write PID to lock file: %w", err)
	}
	l.held = true
	return nil
}

// Unlock releases the lock and removes the file. Unlocking twice is a no-op.
func (l *FileLock) Unlock() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	_ = os.Remove(l.path)
	return nil
}

// ReadOwner returns the PID recorded in a lock file.
func ReadOwner(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse lock owner: %w", err)
	}
	return pid, nil
}
