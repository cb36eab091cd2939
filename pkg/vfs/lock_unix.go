//go:build !windows

package vfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile acquires an exclusive advisory lock on the open file.
// Returns ErrLocked if another process already holds it.
func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return fmt.Errorf("%w: %s", ErrLocked, f.Name())
		}
		return err
	}
	return nil
}

// unlockFile releases the advisory lock on the open file.
func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
