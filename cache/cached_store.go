package cache

import (
	"entitydb/keycodec"
	"entitydb/kvengine"
	"entitydb/store"
)

// CachedStore wraps a store.Store[E] with a read-through
// AdaptiveReplacementCache in front of Get only — GetAll and
// GetWithFilter always scan the backing store directly, the same
// split the teacher's storage/binary/cached_repository.go makes
// between its cached point lookups and its uncached scans.
//
// Saves and removes go through CachedStore so the cache entry for the
// affected key is evicted immediately; a CachedStore used only for
// reads while writes happen through the underlying Store[E] directly
// will serve stale entries until their TTL expires.
type CachedStore[E any] struct {
	underlying *store.Store[E]
	arc        *AdaptiveReplacementCache
	storeName  string
}

// NewCachedStore wraps underlying with an ARC cache configured by config.
func NewCachedStore[E any](underlying *store.Store[E], storeName string, config ARCConfig) *CachedStore[E] {
	return &CachedStore[E]{
		underlying: underlying,
		arc:        NewAdaptiveReplacementCache(config),
		storeName:  storeName,
	}
}

func (c *CachedStore[E]) cacheKey(encodedKey []byte) string {
	return c.storeName + "\x00" + string(encodedKey)
}

// Get returns the cached record if present and unexpired, otherwise
// reads through to the underlying store and populates the cache.
func (c *CachedStore[E]) Get(bucket kvengine.Bucket, key keycodec.Key) (*E, error) {
	k, err := c.underlying.EncodeKey(key)
	if err != nil {
		return nil, err
	}
	if v, ok := c.arc.Get(c.cacheKey(k)); ok {
		return v.(*E), nil
	}
	e, err := c.underlying.GetBytes(bucket, k)
	if err != nil {
		return nil, err
	}
	c.arc.Set(c.cacheKey(k), e)
	return e, nil
}

// Save writes through to the underlying store and evicts any cached
// entry for key, so a subsequent Get observes the new value.
func (c *CachedStore[E]) Save(bucket kvengine.Bucket, key keycodec.Key, e *E) error {
	k, err := c.underlying.EncodeKey(key)
	if err != nil {
		return err
	}
	if err := c.underlying.SaveBytes(bucket, k, e); err != nil {
		return err
	}
	c.arc.removeKey(c.cacheKey(k))
	return nil
}

// Invalidate evicts encodedKey's cache entry without touching the
// underlying store. The deletion engine deletes records directly
// through kvengine, bypassing CachedStore, so Database.Remove calls
// this afterward (via the Invalidator interface below, since it holds
// no type parameter for the affected store) for every key the
// deletion actually removed.
func (c *CachedStore[E]) Invalidate(encodedKey []byte) {
	c.arc.removeKey(c.cacheKey(encodedKey))
}

// Close stops the cache's background cleanup goroutine.
func (c *CachedStore[E]) Close() { c.arc.Close() }

// Invalidator lets a caller evict a cache entry by its already-encoded
// key without knowing CachedStore's element type E, since callers
// working across many stores at once (Database.Remove after a
// relational cascade) can't carry a type parameter per store.
type Invalidator interface {
	Invalidate(encodedKey []byte)
}
