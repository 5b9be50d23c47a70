package kvengine

import (
	"sort"
	"sync"
)

// memoryDatabase is a process-local Database used by tests and by
// callers that don't need durability. A plain RWMutex allows one writer
// or many readers at a time: unlike bbolt, a read transaction waits
// while a writable one is open. Writes go straight into the shared
// maps, so Commit and Rollback only release the lock; Rollback does
// not undo writes.
type memoryDatabase struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

// OpenMemory returns a fresh in-memory Database.
func OpenMemory() Database {
	return &memoryDatabase{buckets: make(map[string]map[string][]byte)}
}

func (d *memoryDatabase) Begin(writable bool) (Tx, error) {
	if writable {
		d.mu.Lock()
	} else {
		d.mu.RLock()
	}
	return &memoryTx{db: d, writable: writable}, nil
}

func (d *memoryDatabase) Close() error { return nil }

type memoryTx struct {
	db       *memoryDatabase
	writable bool
	done     bool
}

func (t *memoryTx) Writable() bool { return t.writable }

func (t *memoryTx) Bucket(name string) Bucket {
	b, ok := t.db.buckets[name]
	if !ok {
		return nil
	}
	return &memoryBucket{tx: t, data: b}
}

func (t *memoryTx) CreateBucketIfNotExists(name string) (Bucket, error) {
	b, ok := t.db.buckets[name]
	if !ok {
		b = make(map[string][]byte)
		t.db.buckets[name] = b
	}
	return &memoryBucket{tx: t, data: b}, nil
}

func (t *memoryTx) Commit() error {
	t.unlock()
	return nil
}

func (t *memoryTx) Rollback() error {
	t.unlock()
	return nil
}

func (t *memoryTx) unlock() {
	if t.done {
		return
	}
	t.done = true
	if t.writable {
		t.db.mu.Unlock()
	} else {
		t.db.mu.RUnlock()
	}
}

type memoryBucket struct {
	tx   *memoryTx
	data map[string][]byte
}

func (b *memoryBucket) Get(key []byte) []byte {
	v, ok := b.data[string(key)]
	if !ok {
		return nil
	}
	return append([]byte(nil), v...)
}

func (b *memoryBucket) Put(key, value []byte) error {
	b.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (b *memoryBucket) Delete(key []byte) error {
	delete(b.data, string(key))
	return nil
}

func (b *memoryBucket) Cursor() Cursor {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &memoryCursor{bucket: b, keys: keys, pos: -1}
}

// memoryCursor snapshots the sorted key list at creation time, which
// satisfies the "reflects the store's read view at iteration time"
// requirement (spec.md §4.4) without needing a persistent ordered index.
type memoryCursor struct {
	bucket *memoryBucket
	keys   []string
	pos    int
}

func (c *memoryCursor) at(i int) (key, value []byte) {
	if i < 0 || i >= len(c.keys) {
		c.pos = len(c.keys)
		return nil, nil
	}
	c.pos = i
	k := c.keys[i]
	return []byte(k), c.bucket.Get([]byte(k))
}

func (c *memoryCursor) First() (key, value []byte) { return c.at(0) }

func (c *memoryCursor) Last() (key, value []byte) { return c.at(len(c.keys) - 1) }

func (c *memoryCursor) Seek(seek []byte) (key, value []byte) {
	i := sort.SearchStrings(c.keys, string(seek))
	return c.at(i)
}

func (c *memoryCursor) Next() (key, value []byte) { return c.at(c.pos + 1) }

func (c *memoryCursor) Prev() (key, value []byte) { return c.at(c.pos - 1) }
