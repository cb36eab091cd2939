// ABOUTME: Virtual filesystem boundary for the page store
// ABOUTME: Paths are slash-separated and relative to the store root

package vfs

import "errors"

var (
	// ErrNotFound indicates the requested file or directory does not exist
	ErrNotFound = errors.New("vfs: not found")

	// ErrLocked indicates the lock file is held by another owner
	ErrLocked = errors.New("vfs: locked")

	// ErrReadOnly indicates a mutation on a read-only filesystem
	ErrReadOnly = errors.New("vfs: read only")
)

// Vfs is the hierarchical byte-file store backing a database.
//
// All paths use forward slashes and are interpreted relative to the
// implementation's root. WriteFile and Rename replace the destination
// atomically.
type Vfs interface {
	// Exists reports whether a file or directory exists at path.
	Exists(path string) (bool, error)

	// IsDir reports whether path names a directory.
	IsDir(path string) (bool, error)

	// IsFile reports whether path names a regular file.
	IsFile(path string) (bool, error)

	// CreateDirAll creates a directory and any missing parents.
	CreateDirAll(path string) error

	// ReadFile returns the full contents of a file.
	ReadFile(path string) ([]byte, error)

	// WriteFile atomically replaces the file at path with data.
	WriteFile(path string, data []byte) error

	// RemoveFile deletes a file.
	RemoveFile(path string) error

	// Rename atomically moves src over dst, replacing it if present.
	Rename(src, dst string) error

	// ReadDir returns the names of the entries directly under path.
	ReadDir(path string) ([]string, error)

	// SyncFile flushes a file's contents to stable storage.
	SyncFile(path string) error

	// SyncAll flushes any remaining buffered state, including directory
	// entries where the implementation supports it.
	SyncAll() error

	// Lock acquires an advisory exclusive lock on the named file,
	// creating it if needed. Returns ErrLocked if already held.
	Lock(path string) error

	// Unlock releases a lock previously acquired with Lock.
	Unlock(path string) error
}
