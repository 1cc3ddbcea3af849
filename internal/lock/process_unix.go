//go:build !windows

package lock

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processExists checks pid with signal 0
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM: alive but owned by someone else
	return errors.Is(err, unix.EPERM)
}
