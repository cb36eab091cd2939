// ABOUTME: Bounded recency-ordered page cache
// ABOUTME: Front of the list is most recent; eviction takes from the back

package page

import (
	"container/list"

	"github.com/nainya/grebedb/pkg/btree"
)

const (
	// slotNone marks a record with no on-disk image yet.
	slotNone = -1
	// slotUnknown marks a record whose backing slot must be probed
	// from disk before the first write.
	slotUnknown = -2
)

// cacheRecord is one resident page.
type cacheRecord struct {
	id       uint64
	node     *btree.Node
	dirty    bool
	slot     int    // slot of the image backing this record
	revision uint64 // revision of that image
}

// pageCache maps page IDs to records in recency order.
type pageCache struct {
	capacity int
	records  map[uint64]*list.Element
	order    *list.List // front = most recently used
}

func newPageCache(capacity int) *pageCache {
	return &pageCache{
		capacity: capacity,
		records:  make(map[uint64]*list.Element),
		order:    list.New(),
	}
}

func (c *pageCache) len() int {
	return c.order.Len()
}

func (c *pageCache) full() bool {
	return c.order.Len() >= c.capacity
}

// get returns the record for id and marks it most recently used.
func (c *pageCache) get(id uint64) (*cacheRecord, bool) {
	elem, ok := c.records[id]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheRecord), true
}

// peek returns the record for id without touching recency order.
func (c *pageCache) peek(id uint64) (*cacheRecord, bool) {
	elem, ok := c.records[id]
	if !ok {
		return nil, false
	}
	return elem.Value.(*cacheRecord), true
}

// insert adds a record as most recently used. The caller evicts first
// when the cache is full.
func (c *pageCache) insert(rec *cacheRecord) {
	c.records[rec.id] = c.order.PushFront(rec)
}

// oldest returns the least recently used record without touching it.
func (c *pageCache) oldest() *cacheRecord {
	elem := c.order.Back()
	if elem == nil {
		return nil
	}
	return elem.Value.(*cacheRecord)
}

// remove drops the record for id if present.
func (c *pageCache) remove(id uint64) {
	if elem, ok := c.records[id]; ok {
		c.order.Remove(elem)
		delete(c.records, id)
	}
}

// each calls fn for every resident record in unspecified order.
func (c *pageCache) each(fn func(*cacheRecord)) {
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		fn(elem.Value.(*cacheRecord))
	}
}
