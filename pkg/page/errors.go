// Package page persists B+ tree nodes as individually serialized page
// files behind a Vfs, with copy-on-write parity slots and an atomic
// metadata commit.
package page

import "errors"

var (
	// ErrNotFound indicates the requested page does not exist
	ErrNotFound = errors.New("page: not found")

	// ErrCorrupt indicates a damaged page file or a broken invariant
	ErrCorrupt = errors.New("page: corrupt")

	// ErrUUIDMismatch indicates a page belonging to another database instance
	ErrUUIDMismatch = errors.New("page: uuid mismatch")

	// ErrStaleRevision indicates an on-disk revision ahead of the committed one
	ErrStaleRevision = errors.New("page: revision ahead of metadata")

	// ErrUnsupportedCompression indicates an unknown compression flag
	ErrUnsupportedCompression = errors.New("page: unsupported compression")
)
