// Package lockfile guards state files that only one runpad process may own,
// such as the drafts database.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrHeld is returned when another live process owns the lock.
var ErrHeld = errors.New("lock held by another process")

// Lock is an exclusive lock file holding the owner's PID.
type Lock struct {
	path string
	held bool
}

// ForFile returns the lock guarding target (target + ".lock").
func ForFile(target string) *Lock {
	return &Lock{path: target + ".lock"}
}

// Acquire takes the lock. A lock left behind by a dead process is reclaimed.
func (l *Lock) Acquire() error {
	if l.held {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	err := l.create()
	if os.IsExist(err) {
		owner, alive := l.owner()
		if alive {
			return fmt.Errorf("%w: %s (pid %d)", ErrHeld, l.path, owner)
		}
		if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("failed to remove stale lock: %w", rmErr)
		}
		err = l.create()
	}
	if err != nil {
		return fmt.Errorf("failed to create lock: %w", err)
	}
	l.held = true
	return nil
}

func (l *Lock) create() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		f.Close()
		os.Remove(l.path)
		return err
	}
	return f.Close()
}

// owner reports the PID recorded in the lock and whether it is still running.
// An unreadable lock counts as abandoned.
func (l *Lock) owner() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if pid == os.Getpid() {
		return pid, true
	}
	return pid, processAlive(pid)
}

// Release drops the lock. Releasing a lock that is not held is a no-op.
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock: %w", err)
	}
	return nil
}

func (l *Lock) Held() bool   { return l.held }
func (l *Lock) Path() string { return l.path }
