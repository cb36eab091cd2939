// ABOUTME: Open modes and tunables for the database facade
// ABOUTME: DefaultOptions is the supported starting point; zero ints mean default

package database

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nainya/grebedb/pkg/page"
)

// OpenMode controls how Open treats an existing or missing database.
type OpenMode int

const (
	// CreateOrOpen creates a new database or opens an existing one.
	CreateOrOpen OpenMode = iota
	// CreateOnly fails if a database already exists.
	CreateOnly
	// LoadOnly fails if no database exists.
	LoadOnly
	// ReadOnly opens an existing database and rejects mutations. No
	// lock file is created.
	ReadOnly
)

const (
	defaultKeysPerNode    = 1025
	defaultPageCacheSize  = 64
	defaultFlushThreshold = 2048
	minPageCacheSize      = 4
)

// Options configures a database handle. Start from DefaultOptions;
// the zero value disables locking, syncing, and automatic flushing.
type Options struct {
	// OpenMode selects create/open behavior.
	OpenMode OpenMode

	// KeysPerNode is the maximum keys per tree node. Odd, at least 5,
	// fixed at database creation; reopen with the creation-time value.
	KeysPerNode int

	// PageCacheSize bounds resident pages. Size it to at least tree
	// height + 2 so one descent never thrashes.
	PageCacheSize int

	// Compression selects the page payload compression level.
	Compression page.CompressionLevel

	// FileLocking acquires an advisory lock file at open.
	FileLocking bool

	// FileSync issues fsyncs during Flush. Turning it off trades
	// durability for speed.
	FileSync bool

	// AutomaticFlush flushes after AutomaticFlushThreshold
	// modifications and when the handle closes.
	AutomaticFlush bool

	// AutomaticFlushThreshold is the modification count that triggers
	// an automatic flush.
	AutomaticFlushThreshold int

	// Logger receives structured debug events; nil silences them.
	Logger *zerolog.Logger

	// Metrics publishes store counters to the process Prometheus
	// registry on every flush and close.
	Metrics bool
}

// DefaultOptions returns the recommended configuration: locking,
// syncing, and automatic flushing on, low compression.
func DefaultOptions() Options {
	return Options{
		OpenMode:                CreateOrOpen,
		KeysPerNode:             defaultKeysPerNode,
		PageCacheSize:           defaultPageCacheSize,
		Compression:             page.CompressionLow,
		FileLocking:             true,
		FileSync:                true,
		AutomaticFlush:          true,
		AutomaticFlushThreshold: defaultFlushThreshold,
	}
}

// validate fills zero numeric fields with defaults and rejects
// inconsistent settings.
func (o Options) validate() (Options, error) {
	if o.KeysPerNode == 0 {
		o.KeysPerNode = defaultKeysPerNode
	}
	if o.PageCacheSize == 0 {
		o.PageCacheSize = defaultPageCacheSize
	}
	if o.AutomaticFlushThreshold == 0 {
		o.AutomaticFlushThreshold = defaultFlushThreshold
	}

	if o.OpenMode < CreateOrOpen || o.OpenMode > ReadOnly {
		return o, fmt.Errorf("%w: unknown open mode %d", ErrInvalidConfig, o.OpenMode)
	}
	if o.KeysPerNode < 5 || o.KeysPerNode%2 == 0 {
		return o, fmt.Errorf("%w: keys per node must be odd and at least 5, got %d",
			ErrInvalidConfig, o.KeysPerNode)
	}
	if o.PageCacheSize < minPageCacheSize {
		return o, fmt.Errorf("%w: page cache must hold at least %d pages, got %d",
			ErrInvalidConfig, minPageCacheSize, o.PageCacheSize)
	}
	if o.AutomaticFlushThreshold < 1 {
		return o, fmt.Errorf("%w: flush threshold must be positive, got %d",
			ErrInvalidConfig, o.AutomaticFlushThreshold)
	}
	if o.Compression < page.CompressionNone || o.Compression > page.CompressionHigh {
		return o, fmt.Errorf("%w: unknown compression level %d", ErrInvalidConfig, o.Compression)
	}
	return o, nil
}
