//go:build !windows

package lockfile

import (
	"errors"
	"os"
	"syscall"
)

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	// EPERM means the process exists under another user.
	return err == nil || errors.Is(err, syscall.EPERM)
}
