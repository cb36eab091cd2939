// Package database is the embedded key-value store facade: a B+ tree
// over a page store behind a pluggable virtual filesystem.
package database

import "errors"

var (
	// ErrLocked indicates another process holds the database lock file
	ErrLocked = errors.New("database: locked by another process")

	// ErrReadOnly indicates a mutation attempted in read-only mode
	ErrReadOnly = errors.New("database: read-only mode")

	// ErrInvalidConfig indicates inconsistent options at open
	ErrInvalidConfig = errors.New("database: invalid configuration")

	// ErrDatabaseAbsent indicates LoadOnly or ReadOnly found no database
	ErrDatabaseAbsent = errors.New("database: no database found")

	// ErrDatabaseExists indicates CreateOnly found an existing database
	ErrDatabaseExists = errors.New("database: already exists")

	// ErrClosed indicates an operation on a closed database handle
	ErrClosed = errors.New("database: closed")
)
