//go:build windows

package vfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// lockFile acquires an exclusive lock on the open file.
// Returns ErrLocked if another process already holds it.
func lockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol,
	)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return fmt.Errorf("%w: %s", ErrLocked, f.Name())
		}
		return err
	}
	return nil
}

// unlockFile releases the lock on the open file.
func unlockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}
