// ABOUTME: Database facade: open/get/put/remove/cursor/flush/verify over the tree
// ABOUTME: Owns the lock file, the page store, and the automatic flush policy

package database

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nainya/grebedb/internal/metrics"
	"github.com/nainya/grebedb/pkg/btree"
	"github.com/nainya/grebedb/pkg/page"
	"github.com/nainya/grebedb/pkg/vfs"
)

// LockFileName is the advisory lock file inside the database directory.
const LockFileName = "grebedb_lock.lock"

// Cursor iterates entries in ascending key order.
type Cursor = btree.Cursor

// Range bounds a cursor; see btree.Range.
type Range = btree.Range

// Bound is one end of a cursor range; see btree.Bound.
type Bound = btree.Bound

// ErrCursorInvalidated is returned by a cursor that outlived a mutation.
var ErrCursorInvalidated = btree.ErrCursorInvalidated

// Info describes the committed state of a database.
type Info struct {
	UUID      uuid.UUID
	Revision  uint64
	IDCounter uint64
	FreeIDs   int
	RootID    uint64
}

// Database is a single-handle embedded key-value store. A handle must
// not be shared between goroutines without external exclusion.
type Database struct {
	fs       vfs.Vfs
	store    *page.Store
	tree     *btree.Tree
	opts     Options
	log      zerolog.Logger
	readOnly bool
	locked   bool
	mods     int
	closed   bool
}

// Open opens or creates a database in a directory on the local
// filesystem.
func Open(path string, opts Options) (*Database, error) {
	if opts.OpenMode == CreateOrOpen || opts.OpenMode == CreateOnly {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
	}
	return OpenVfs(vfs.NewOsVfs(path), opts)
}

// OpenVfs opens or creates a database on an arbitrary Vfs.
func OpenVfs(fs vfs.Vfs, opts Options) (*Database, error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	readOnly := opts.OpenMode == ReadOnly
	if readOnly {
		fs = vfs.NewReadOnlyVfs(fs)
	}

	store, err := page.NewStore(fs, page.Config{
		CacheSize:   opts.PageCacheSize,
		Compression: opts.Compression,
		FileSync:    opts.FileSync,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	found, err := store.LoadMetadata()
	if err != nil {
		store.Close()
		return nil, err
	}
	switch {
	case !found && (opts.OpenMode == LoadOnly || readOnly):
		store.Close()
		return nil, ErrDatabaseAbsent
	case found && opts.OpenMode == CreateOnly:
		store.Close()
		return nil, ErrDatabaseExists
	}

	locked := false
	if opts.FileLocking && !readOnly {
		if err := fs.Lock(LockFileName); err != nil {
			store.Close()
			if errors.Is(err, vfs.ErrLocked) {
				return nil, fmt.Errorf("%w: %v", ErrLocked, err)
			}
			return nil, err
		}
		locked = true
	}

	db := &Database{
		fs:       fs,
		store:    store,
		opts:     opts,
		log:      log,
		readOnly: readOnly,
		locked:   locked,
	}

	if !found {
		if err := store.Bootstrap(); err != nil {
			db.release()
			return nil, err
		}
		log.Info().Stringer("uuid", store.Metadata().UUID).Msg("database created")
	} else {
		meta := store.Metadata()
		log.Info().
			Stringer("uuid", meta.UUID).
			Uint64("revision", meta.Revision).
			Msg("database opened")
	}

	db.tree = btree.New(store, opts.KeysPerNode)
	return db, nil
}

// Get returns the value stored under key and whether it was present.
func (db *Database) Get(key []byte) ([]byte, bool, error) {
	if db.closed {
		return nil, false, ErrClosed
	}
	return db.tree.Get(normalizeKey(key))
}

// Contains reports whether key is present.
func (db *Database) Contains(key []byte) (bool, error) {
	_, found, err := db.Get(key)
	return found, err
}

// Put stores value under key, overwriting any existing value.
func (db *Database) Put(key, value []byte) error {
	if err := db.writable(); err != nil {
		return err
	}
	if err := db.tree.Put(normalizeKey(key), value); err != nil {
		return err
	}
	return db.noteModification()
}

// Remove deletes key and reports whether a value was removed.
func (db *Database) Remove(key []byte) (bool, error) {
	if err := db.writable(); err != nil {
		return false, err
	}
	removed, err := db.tree.Remove(normalizeKey(key))
	if err != nil {
		return false, err
	}
	if removed {
		if err := db.noteModification(); err != nil {
			return false, err
		}
	}
	return removed, nil
}

// Cursor iterates the whole key space in ascending order. Any
// subsequent mutation invalidates it.
func (db *Database) Cursor() (*Cursor, error) {
	if db.closed {
		return nil, ErrClosed
	}
	return db.tree.Cursor(), nil
}

// CursorRange iterates the given key range in ascending order.
func (db *Database) CursorRange(bounds Range) (*Cursor, error) {
	if db.closed {
		return nil, ErrClosed
	}
	return db.tree.CursorRange(bounds), nil
}

// Flush commits all pending mutations as one atomic revision.
func (db *Database) Flush() error {
	if db.closed {
		return ErrClosed
	}
	if db.readOnly {
		return nil
	}
	if err := db.store.Flush(); err != nil {
		return err
	}
	db.mods = 0
	db.publishMetrics()
	return nil
}

// Verify sweeps every reachable page, checking envelope validity,
// node invariants, and free-list accounting.
func (db *Database) Verify() error {
	if db.closed {
		return ErrClosed
	}
	reachable, err := db.tree.Verify()
	if err != nil {
		return err
	}
	return db.store.CheckAccounting(reachable)
}

// Info returns the current metadata summary.
func (db *Database) Info() Info {
	meta := db.store.Metadata()
	return Info{
		UUID:      meta.UUID,
		Revision:  meta.Revision,
		IDCounter: meta.IDCounter,
		FreeIDs:   len(meta.FreeIDs),
		RootID:    meta.RootID,
	}
}

// Counters returns cumulative page store statistics.
func (db *Database) Counters() page.Counters {
	return db.store.Counters()
}

// Close flushes pending mutations when automatic flushing is on, then
// releases the lock file on every exit path.
func (db *Database) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true

	var flushErr error
	if !db.readOnly && db.opts.AutomaticFlush && db.store.Modified() {
		flushErr = db.store.Flush()
	}
	db.publishMetrics()
	db.release()
	db.log.Info().Msg("database closed")
	return flushErr
}

// release frees the lock and codec without flushing.
func (db *Database) release() {
	if db.locked {
		if err := db.fs.Unlock(LockFileName); err != nil {
			db.log.Warn().Err(err).Msg("failed to release lock file")
		}
		db.locked = false
	}
	db.store.Close()
}

func (db *Database) writable() error {
	if db.closed {
		return ErrClosed
	}
	if db.readOnly {
		return ErrReadOnly
	}
	return nil
}

// noteModification applies the automatic flush policy after a
// successful mutation.
func (db *Database) noteModification() error {
	db.mods++
	if db.opts.AutomaticFlush && db.mods >= db.opts.AutomaticFlushThreshold {
		return db.Flush()
	}
	return nil
}

func (db *Database) publishMetrics() {
	if db.opts.Metrics {
		metrics.Default().Publish(db.store.Counters())
	}
}

// normalizeKey maps a nil key to the empty key, which is valid and
// sorts before every other key.
func normalizeKey(key []byte) []byte {
	if key == nil {
		return []byte{}
	}
	return key
}
