package ext4

import "sync"

// blockCache is a write-back cache keyed by a uint64 number. The
// filesystem keeps three instances, one per concern: dataBlockCache for file
// data and bitmapCache for allocation bitmaps, both keyed by physical block
// number, and inodeTableCache, which holds single inode records keyed by
// inode number rather than whole inode-table blocks. Each maps its key to
// (buffer, dirty-flag).
//
// get reads without marking dirty; getMut and put mark the entry dirty.
// flush persists a single dirty entry through writeBack and clears its flag;
// flushAll does the same for every dirty entry. There is no eviction policy:
// entries persist until invalidated or the filesystem is closed.
//
// writeBack is supplied by the caller at construction time rather than held
// as a reference to the journal or the backend directly, so a cache never
// needs to know whether a journal is active - it just calls the closure it
// was given. FileSystem decides, per cache, whether that closure commits
// through fs.journal or writes straight to fs.backend.
type blockCache struct {
	mu        sync.Mutex
	entries   map[uint64]*cacheEntry
	writeBack func(block uint64, data []byte) error
}

type cacheEntry struct {
	data  []byte
	dirty bool
}

// newBlockCache builds a cache with no write-back path; flush/flushAll are
// no-ops. Nothing in the package calls it; the filesystem builds its caches
// with newWriteBackCache.
func newBlockCache() *blockCache {
	return &blockCache{entries: make(map[uint64]*cacheEntry)}
}

// newWriteBackCache builds a cache whose dirty entries are persisted via
// writeBack on flush/flushAll.
func newWriteBackCache(writeBack func(block uint64, data []byte) error) *blockCache {
	return &blockCache{entries: make(map[uint64]*cacheEntry), writeBack: writeBack}
}

// get returns the cached bytes for block, calling fill and caching the
// result on a miss. The returned slice is a copy; callers may modify it
// freely without corrupting the cache. Does not mark the entry dirty.
func (c *blockCache) get(block uint64, fill func() ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	if e, ok := c.entries[block]; ok {
		out := make([]byte, len(e.data))
		copy(out, e.data)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	b, err := fill()
	if err != nil {
		return nil, err
	}

	cached := make([]byte, len(b))
	copy(cached, b)
	c.mu.Lock()
	c.entries[block] = &cacheEntry{data: cached}
	c.mu.Unlock()

	return b, nil
}

// getMut is like get, but marks the entry dirty since the caller intends to
// modify the returned bytes and persist them via flush.
func (c *blockCache) getMut(block uint64, fill func() ([]byte, error)) ([]byte, error) {
	b, err := c.get(block, fill)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if e, ok := c.entries[block]; ok {
		e.dirty = true
	}
	c.mu.Unlock()
	return b, nil
}

// put installs data as the cached content for block and marks it dirty, for
// callers that compute a new block's content outright rather than mutating
// a fetched copy.
func (c *blockCache) put(block uint64, data []byte) {
	cached := make([]byte, len(data))
	copy(cached, data)
	c.mu.Lock()
	c.entries[block] = &cacheEntry{data: cached, dirty: true}
	c.mu.Unlock()
}

// flush persists block through writeBack if it is dirty, then clears the
// dirty flag. A dirty entry may only be flushed through the journal when one
// is active; FileSystem arranges this by constructing the cache's writeBack
// closure to route through fs.journal.commit when appropriate.
func (c *blockCache) flush(block uint64) error {
	c.mu.Lock()
	e, ok := c.entries[block]
	if !ok || !e.dirty || c.writeBack == nil {
		c.mu.Unlock()
		return nil
	}
	data := make([]byte, len(e.data))
	copy(data, e.data)
	c.mu.Unlock()

	if err := c.writeBack(block, data); err != nil {
		return err
	}

	c.mu.Lock()
	if e, ok := c.entries[block]; ok {
		e.dirty = false
	}
	c.mu.Unlock()
	return nil
}

// flushAll flushes every dirty entry, stopping at the first error.
func (c *blockCache) flushAll() error {
	c.mu.Lock()
	dirty := make([]uint64, 0)
	for block, e := range c.entries {
		if e.dirty {
			dirty = append(dirty, block)
		}
	}
	c.mu.Unlock()

	for _, block := range dirty {
		if err := c.flush(block); err != nil {
			return err
		}
	}
	return nil
}

// invalidate drops any cached copy of block, forcing the next get to read
// through to the backend. A dirty entry is dropped without flushing;
// callers that need the write preserved must flush first.
func (c *blockCache) invalidate(block uint64) {
	c.mu.Lock()
	delete(c.entries, block)
	c.mu.Unlock()
}

// invalidateAll drops every cached entry, used on umount/truncate-wide
// operations where tracking individual block numbers isn't worth it.
func (c *blockCache) invalidateAll() {
	c.mu.Lock()
	c.entries = make(map[uint64]*cacheEntry)
	c.mu.Unlock()
}
