// ABOUTME: Page store: ID allocation, parity-slot files, write-back cache, atomic commit
// ABOUTME: Pages are written copy-on-write; a metadata rename commits a whole revision

package page

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nainya/grebedb/pkg/btree"
	"github.com/nainya/grebedb/pkg/vfs"
)

const (
	metaName     = "grebedb_meta.grebedb"
	metaBakName  = "grebedb_meta_bak.grebedb"
	metaPrevName = "grebedb_meta_prev.grebedb"
	metaTempName = "grebedb_meta_tmp.grebedb"
)

// MetadataFileNames lists the metadata filenames in load-preference
// order: current, backup, previous.
func MetadataFileNames() []string {
	return []string{metaName, metaBakName, metaPrevName}
}

// Counters are cumulative page store statistics.
type Counters struct {
	Reads       uint64
	Writes      uint64
	CacheHits   uint64
	CacheMisses uint64
	Evictions   uint64
	Flushes     uint64
}

// Config carries the page store knobs.
type Config struct {
	// CacheSize bounds the number of resident pages.
	CacheSize int
	// Compression selects the payload compression for writes.
	Compression CompressionLevel
	// FileSync enables fsync of page and metadata files during Flush.
	FileSync bool
	// Logger receives debug events; zerolog.Nop() silences them.
	Logger zerolog.Logger
}

// Store owns the page cache, the free list, and the metadata record.
// It is not safe for concurrent use.
type Store struct {
	fs       vfs.Vfs
	codec    *Codec
	log      zerolog.Logger
	fileSync bool

	meta     Metadata
	cache    *pageCache
	written  map[uint64]int      // uncommitted image slot per page ID
	freed    map[uint64]struct{} // freed since last flush, marker pending
	syncSet  map[string]struct{} // files written since last flush
	modified bool

	counters Counters
}

// NewStore creates a store over fs. Call LoadMetadata or Bootstrap
// before any page operation.
func NewStore(fs vfs.Vfs, cfg Config) (*Store, error) {
	codec, err := NewCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &Store{
		fs:       fs,
		codec:    codec,
		log:      cfg.Logger,
		fileSync: cfg.FileSync,
		cache:    newPageCache(cfg.CacheSize),
		written:  make(map[uint64]int),
		freed:    make(map[uint64]struct{}),
		syncSet:  make(map[string]struct{}),
	}, nil
}

// Close releases codec resources. It does not flush.
func (s *Store) Close() {
	s.codec.Close()
}

// Metadata returns a copy of the current metadata record.
func (s *Store) Metadata() Metadata {
	m := s.meta
	m.FreeIDs = append([]uint64(nil), s.meta.FreeIDs...)
	return m
}

// Counters returns a snapshot of the store statistics.
func (s *Store) Counters() Counters {
	return s.counters
}

// Modified reports whether there are uncommitted changes.
func (s *Store) Modified() bool {
	return s.modified
}

// LoadMetadata reads the committed metadata record, trying the
// current, backup, and previous files and keeping the one with the
// greatest valid revision. It returns false if none of them exist.
func (s *Store) LoadMetadata() (bool, error) {
	var best *Metadata
	var lastErr error
	found := false

	for _, name := range MetadataFileNames() {
		data, err := s.fs.ReadFile(name)
		if err != nil {
			if errors.Is(err, vfs.ErrNotFound) {
				continue
			}
			return false, err
		}
		found = true

		m := new(Metadata)
		if err := s.codec.Decode(data, m); err != nil {
			lastErr = err
			continue
		}
		if best == nil || m.Revision > best.Revision {
			best = m
		}
	}

	if best == nil {
		if found {
			return false, fmt.Errorf("%w: no readable metadata file: %v", ErrCorrupt, lastErr)
		}
		return false, nil
	}

	sort.Slice(best.FreeIDs, func(i, j int) bool { return best.FreeIDs[i] < best.FreeIDs[j] })
	s.meta = *best
	return true, nil
}

// Bootstrap initializes a fresh database and commits revision 0 so a
// crashed first session still reopens to an empty committed state.
func (s *Store) Bootstrap() error {
	s.meta = Metadata{
		UUID:      uuid.New(),
		Revision:  0,
		IDCounter: 1,
	}
	return s.commitMetadata(s.meta)
}

// Root returns the committed-or-pending root page ID, 0 if none.
func (s *Store) Root() uint64 {
	return s.meta.RootID
}

// SetRoot records the root page ID. It takes effect on the next Flush.
func (s *Store) SetRoot(id uint64) {
	if s.meta.RootID != id {
		s.meta.RootID = id
		s.modified = true
	}
}

// Allocate returns a page ID, preferring the highest freed ID so the
// counter's growth stays bounded under churn.
func (s *Store) Allocate() uint64 {
	s.modified = true
	if n := len(s.meta.FreeIDs); n > 0 {
		id := s.meta.FreeIDs[n-1]
		s.meta.FreeIDs = s.meta.FreeIDs[:n-1]
		delete(s.freed, id)
		return id
	}
	id := s.meta.IDCounter
	s.meta.IDCounter++
	return id
}

// Free marks a page deleted. The deletion marker is written on the
// next Flush; until then the committed image stays intact.
func (s *Store) Free(id uint64) error {
	idx := sort.Search(len(s.meta.FreeIDs), func(i int) bool { return s.meta.FreeIDs[i] >= id })
	if idx < len(s.meta.FreeIDs) && s.meta.FreeIDs[idx] == id {
		return fmt.Errorf("%w: page %d freed twice", ErrCorrupt, id)
	}

	s.cache.remove(id)
	s.freed[id] = struct{}{}
	s.modified = true

	s.meta.FreeIDs = append(s.meta.FreeIDs, 0)
	copy(s.meta.FreeIDs[idx+1:], s.meta.FreeIDs[idx:])
	s.meta.FreeIDs[idx] = id
	return nil
}

// Load returns the node under id, from cache or disk.
func (s *Store) Load(id uint64) (*btree.Node, error) {
	if rec, ok := s.cache.get(id); ok {
		s.counters.CacheHits++
		return rec.node, nil
	}
	s.counters.CacheMisses++

	if _, gone := s.freed[id]; gone {
		return nil, fmt.Errorf("%w: page %d is freed", ErrNotFound, id)
	}

	env, slot, err := s.readCurrent(id)
	if err != nil {
		return nil, err
	}
	if env.UUID != s.meta.UUID {
		return nil, fmt.Errorf("%w: page %d", ErrUUIDMismatch, id)
	}
	if env.ID != id {
		return nil, fmt.Errorf("%w: page %d claims id %d", ErrCorrupt, id, env.ID)
	}
	if env.Deleted || env.Content == nil {
		return nil, fmt.Errorf("%w: page %d is deleted", ErrNotFound, id)
	}

	if err := s.makeRoom(); err != nil {
		return nil, err
	}
	s.cache.insert(&cacheRecord{
		id:       id,
		node:     env.Content,
		slot:     slot,
		revision: env.Revision,
	})
	s.counters.Reads++
	return env.Content, nil
}

// Store replaces the node under id and marks it dirty in the cache.
func (s *Store) Store(id uint64, node *btree.Node) error {
	s.modified = true
	if rec, ok := s.cache.get(id); ok {
		rec.node = node
		rec.dirty = true
		return nil
	}

	if err := s.makeRoom(); err != nil {
		return err
	}
	s.cache.insert(&cacheRecord{
		id:    id,
		node:  node,
		dirty: true,
		slot:  slotUnknown,
	})
	return nil
}

// Flush commits every pending change as one new revision: dirty pages
// and deletion markers are written to their opposite parity slots,
// synced, and then the metadata rename makes the revision current.
func (s *Store) Flush() error {
	if !s.modified {
		return nil
	}
	start := time.Now()
	next := s.meta.Revision + 1

	var pages, markers int
	var flushErr error
	s.cache.each(func(rec *cacheRecord) {
		if flushErr != nil || !rec.dirty {
			return
		}
		if flushErr = s.writePage(rec.id, rec.node, false); flushErr != nil {
			return
		}
		rec.dirty = false
		rec.slot = s.written[rec.id]
		rec.revision = next
		pages++
	})
	if flushErr != nil {
		return flushErr
	}

	for id := range s.freed {
		if err := s.writePage(id, nil, true); err != nil {
			return err
		}
		markers++
	}

	if s.fileSync {
		for path := range s.syncSet {
			if err := s.fs.SyncFile(path); err != nil {
				return err
			}
		}
	}

	m := s.meta
	m.Revision = next
	if err := s.commitMetadata(m); err != nil {
		return err
	}

	s.meta.Revision = next
	s.written = make(map[uint64]int)
	s.freed = make(map[uint64]struct{})
	s.syncSet = make(map[string]struct{})
	s.modified = false
	s.counters.Flushes++

	s.log.Debug().
		Uint64("revision", next).
		Int("pages", pages).
		Int("deletion_markers", markers).
		Dur("elapsed", time.Since(start)).
		Msg("flush committed")
	return nil
}

// commitMetadata performs the three-file commit dance: current is
// demoted to previous, the new record is written via a temp name, and
// a backup copy follows.
func (s *Store) commitMetadata(m Metadata) error {
	data, err := s.codec.Encode(&m)
	if err != nil {
		return err
	}

	exists, err := s.fs.Exists(metaName)
	if err != nil {
		return err
	}
	if exists {
		if err := s.fs.Rename(metaName, metaPrevName); err != nil {
			return err
		}
	}

	if err := s.fs.WriteFile(metaTempName, data); err != nil {
		return err
	}
	if s.fileSync {
		if err := s.fs.SyncFile(metaTempName); err != nil {
			return err
		}
	}
	if err := s.fs.Rename(metaTempName, metaName); err != nil {
		return err
	}

	if err := s.fs.WriteFile(metaBakName, data); err != nil {
		return err
	}
	if s.fileSync {
		if err := s.fs.SyncFile(metaBakName); err != nil {
			return err
		}
		if err := s.fs.SyncAll(); err != nil {
			return err
		}
	}
	return nil
}

// makeRoom evicts the least recently used page when the cache is
// full, writing it back first if dirty.
func (s *Store) makeRoom() error {
	for s.cache.full() {
		rec := s.cache.oldest()
		if rec == nil {
			return nil
		}
		if rec.dirty {
			if err := s.writePage(rec.id, rec.node, false); err != nil {
				return err
			}
			s.log.Trace().Uint64("id", rec.id).Msg("evicted dirty page")
		}
		s.cache.remove(rec.id)
		s.counters.Evictions++
	}
	return nil
}

// writePage saves an image of id at the in-progress revision into the
// parity slot not holding the committed image.
func (s *Store) writePage(id uint64, node *btree.Node, deleted bool) error {
	slot, err := s.targetSlot(id)
	if err != nil {
		return err
	}

	env := Envelope{
		UUID:     s.meta.UUID,
		ID:       id,
		Revision: s.meta.Revision + 1,
		Deleted:  deleted,
		Content:  node,
	}
	data, err := s.codec.Encode(&env)
	if err != nil {
		return err
	}

	path := pagePath(id, slot)
	if err := s.fs.CreateDirAll(pageDir(id)); err != nil {
		return err
	}
	if err := s.fs.WriteFile(path, data); err != nil {
		return err
	}

	s.written[id] = slot
	s.syncSet[path] = struct{}{}
	s.counters.Writes++
	return nil
}

// targetSlot picks the slot for the next write of id: the slot of its
// own uncommitted image if one exists this pass, otherwise the slot
// opposite the committed image.
func (s *Store) targetSlot(id uint64) (int, error) {
	if slot, ok := s.written[id]; ok {
		return slot, nil
	}
	if rec, ok := s.cache.peek(id); ok && rec.slot >= 0 {
		return 1 - rec.slot, nil
	}

	slot, ok, err := s.probeCurrentSlot(id)
	if err != nil {
		return 0, err
	}
	if ok {
		return 1 - slot, nil
	}
	return int((s.meta.Revision + 1) % 2), nil
}

// readCurrent inspects both slots of id and returns the envelope with
// the highest acceptable revision along with its slot.
func (s *Store) readCurrent(id uint64) (*Envelope, int, error) {
	limit := s.meta.Revision
	if _, ok := s.written[id]; ok {
		limit++
	}

	var best *Envelope
	bestSlot := slotNone
	anyFile := false
	var lastErr error
	var tooNew bool

	for slot := 0; slot < 2; slot++ {
		data, err := s.fs.ReadFile(pagePath(id, slot))
		if err != nil {
			if errors.Is(err, vfs.ErrNotFound) {
				continue
			}
			return nil, 0, err
		}
		anyFile = true

		env := new(Envelope)
		if err := s.codec.Decode(data, env); err != nil {
			// A torn write in one slot is survivable; the other
			// slot holds the committed image
			lastErr = err
			continue
		}
		if env.Revision > limit {
			tooNew = true
			continue
		}
		if best == nil || env.Revision > best.Revision {
			best = env
			bestSlot = slot
		}
	}

	if best == nil {
		switch {
		case !anyFile:
			return nil, 0, fmt.Errorf("%w: page %d", ErrNotFound, id)
		case tooNew:
			return nil, 0, fmt.Errorf("%w: page %d", ErrStaleRevision, id)
		default:
			return nil, 0, fmt.Errorf("page %d: %w", id, lastErr)
		}
	}
	return best, bestSlot, nil
}

// probeCurrentSlot finds the slot holding the current image of id,
// if any slot holds a readable one.
func (s *Store) probeCurrentSlot(id uint64) (int, bool, error) {
	_, slot, err := s.readCurrent(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStaleRevision) || errors.Is(err, ErrCorrupt) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return slot, true, nil
}

// CheckAccounting verifies the free list against the reachable page
// set produced by a tree verification sweep.
func (s *Store) CheckAccounting(reachable map[uint64]struct{}) error {
	for _, id := range s.meta.FreeIDs {
		if _, ok := reachable[id]; ok {
			return fmt.Errorf("%w: page %d is both free and reachable", ErrCorrupt, id)
		}
		if id == 0 || id >= s.meta.IDCounter {
			return fmt.Errorf("%w: free list holds unallocated id %d", ErrCorrupt, id)
		}
	}
	for i := 1; i < len(s.meta.FreeIDs); i++ {
		if s.meta.FreeIDs[i-1] >= s.meta.FreeIDs[i] {
			return fmt.Errorf("%w: free list not strictly ascending", ErrCorrupt)
		}
	}
	for id := range reachable {
		if id == 0 || id >= s.meta.IDCounter {
			return fmt.Errorf("%w: reachable page %d was never allocated", ErrCorrupt, id)
		}
	}
	return nil
}

// pageHex is the zero-padded 16-character hexadecimal form of an ID.
func pageHex(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

// pageDir splits the first 14 hex digits of an ID into a 7-level
// directory path, keeping any single directory small.
func pageDir(id uint64) string {
	hex := pageHex(id)
	var sb strings.Builder
	for i := 0; i < 14; i += 2 {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(hex[i : i+2])
	}
	return sb.String()
}

// pagePath names the file for one parity slot of an ID.
func pagePath(id uint64, slot int) string {
	return pageDir(id) + "/grebedb_" + pageHex(id) + "_" + strconv.Itoa(slot) + ".grebedb"
}
