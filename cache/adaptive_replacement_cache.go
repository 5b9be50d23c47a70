// Package cache provides an Adaptive Replacement Cache (ARC) for
// CachedStore's point lookups.
//
// ARC dynamically balances recency against frequency instead of
// committing to one or the other the way plain LRU does, and is
// resistant to one-off scans evicting entries a workload actually
// reuses. It tracks four lists:
//
//	T1: entries seen once recently (recency)
//	T2: entries seen more than once (frequency)
//	B1: ghost entries recently evicted from T1 (recency history)
//	B2: ghost entries recently evicted from T2 (frequency history)
//
// A hit in a ghost list costs nothing but shifts the T1/T2 balance
// toward whichever behavior the miss pattern favored.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// arcEntry is one cached value plus its ARC bookkeeping.
type arcEntry struct {
	key       string
	value     interface{}
	timestamp time.Time
}

// arcList is one of T1/T2/B1/B2: a doubly-linked list in recency order
// plus a hash index for O(1) membership and removal.
type arcList struct {
	list    *list.List
	entries map[string]*list.Element
	maxSize int
}

func newARCList(maxSize int) *arcList {
	return &arcList{list: list.New(), entries: make(map[string]*list.Element), maxSize: maxSize}
}

// AdaptiveReplacementCache is a fixed-capacity cache of arbitrary
// values keyed by string, used by CachedStore to front a
// store.Store[E]'s point lookups.
type AdaptiveReplacementCache struct {
	mu sync.RWMutex

	t1, t2, b1, b2 *arcList

	c int // target resident size (|T1| + |T2|)
	p int // adaptation parameter: target size of T1 within c

	ttl          time.Duration
	adaptEnabled bool

	hits   int64
	misses int64

	stopCleanup     chan struct{}
	cleanupInterval time.Duration
}

// ARCConfig configures an AdaptiveReplacementCache.
type ARCConfig struct {
	MaxSize         int           // maximum resident entries (T1+T2)
	TTL             time.Duration // entry time-to-live; 0 disables expiry
	AdaptEnabled    bool          // adapt T1/T2 balance from ghost-list hits
	CleanupInterval time.Duration // background expired-entry sweep period; 0 disables it
}

// DefaultARCConfig returns a reasonable default configuration.
func DefaultARCConfig() ARCConfig {
	return ARCConfig{
		MaxSize:         10000,
		TTL:             time.Hour,
		AdaptEnabled:    true,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewAdaptiveReplacementCache creates a cache from config and, if
// config.CleanupInterval is positive, starts its background expiry
// sweep.
func NewAdaptiveReplacementCache(config ARCConfig) *AdaptiveReplacementCache {
	arc := &AdaptiveReplacementCache{
		c:               config.MaxSize,
		p:               config.MaxSize / 2,
		ttl:             config.TTL,
		adaptEnabled:    config.AdaptEnabled,
		stopCleanup:     make(chan struct{}),
		cleanupInterval: config.CleanupInterval,
	}
	arc.t1 = newARCList(config.MaxSize)
	arc.t2 = newARCList(config.MaxSize)
	arc.b1 = newARCList(config.MaxSize)
	arc.b2 = newARCList(config.MaxSize)

	if arc.cleanupInterval > 0 {
		go arc.cleanupLoop()
	}
	return arc
}

// Get returns the cached value for key and whether it was found and
// unexpired. A hit in T1 promotes the entry to T2; a hit in a ghost
// list (B1/B2) adapts the T1/T2 balance but still reports a miss,
// since the ghost list holds no value to return.
func (arc *AdaptiveReplacementCache) Get(key string) (interface{}, bool) {
	arc.mu.Lock()
	defer arc.mu.Unlock()

	if elem, found := arc.t1.entries[key]; found {
		entry := elem.Value.(*arcEntry)
		if arc.isExpired(entry) {
			arc.removeFromList(arc.t1, key)
			atomic.AddInt64(&arc.misses, 1)
			return nil, false
		}
		arc.removeFromList(arc.t1, key)
		arc.addToListFront(arc.t2, key, entry)
		atomic.AddInt64(&arc.hits, 1)
		return entry.value, true
	}

	if elem, found := arc.t2.entries[key]; found {
		entry := elem.Value.(*arcEntry)
		if arc.isExpired(entry) {
			arc.removeFromList(arc.t2, key)
			atomic.AddInt64(&arc.misses, 1)
			return nil, false
		}
		arc.t2.list.MoveToFront(elem)
		atomic.AddInt64(&arc.hits, 1)
		return entry.value, true
	}

	if arc.adaptEnabled {
		if _, found := arc.b1.entries[key]; found {
			arc.adaptForRecency()
			arc.removeFromList(arc.b1, key)
		} else if _, found := arc.b2.entries[key]; found {
			arc.adaptForFrequency()
			arc.removeFromList(arc.b2, key)
		}
	}

	atomic.AddInt64(&arc.misses, 1)
	return nil, false
}

// Set stores value under key, evicting an existing resident entry
// (T1/T2) according to the ARC replacement rule if the cache is full.
func (arc *AdaptiveReplacementCache) Set(key string, value interface{}) {
	arc.mu.Lock()
	defer arc.mu.Unlock()

	arc.removeKeyLocked(key)
	entry := &arcEntry{key: key, value: value, timestamp: time.Now()}
	arc.ensureSizeLimit()
	arc.addToListFront(arc.t1, key, entry)
}

// removeKey evicts key from every list, if present.
func (arc *AdaptiveReplacementCache) removeKey(key string) {
	arc.mu.Lock()
	defer arc.mu.Unlock()
	arc.removeKeyLocked(key)
}

func (arc *AdaptiveReplacementCache) removeKeyLocked(key string) {
	for _, l := range []*arcList{arc.t1, arc.t2, arc.b1, arc.b2} {
		if _, found := l.entries[key]; found {
			arc.removeFromList(l, key)
			return
		}
	}
}

// ensureSizeLimit evicts from T1 or T2 per the ARC rule until the
// combined resident size is back under the target c.
func (arc *AdaptiveReplacementCache) ensureSizeLimit() {
	for arc.t1.list.Len()+arc.t2.list.Len() >= arc.c {
		if arc.t1.list.Len() > arc.p {
			arc.evictFromT1()
		} else {
			arc.evictFromT2()
		}
	}
}

func (arc *AdaptiveReplacementCache) evictFromT1() {
	if arc.t1.list.Len() == 0 {
		return
	}
	entry := arc.t1.list.Back().Value.(*arcEntry)
	arc.removeFromList(arc.t1, entry.key)
	arc.addGhostEntry(arc.b1, entry.key)
}

func (arc *AdaptiveReplacementCache) evictFromT2() {
	if arc.t2.list.Len() == 0 {
		return
	}
	entry := arc.t2.list.Back().Value.(*arcEntry)
	arc.removeFromList(arc.t2, entry.key)
	arc.addGhostEntry(arc.b2, entry.key)
}

// addGhostEntry records key in a ghost list (no value, just recency
// history for adaptForRecency/adaptForFrequency).
func (arc *AdaptiveReplacementCache) addGhostEntry(l *arcList, key string) {
	for l.list.Len() >= l.maxSize {
		oldest := l.list.Back().Value.(*arcEntry)
		arc.removeFromList(l, oldest.key)
	}
	arc.addToListFront(l, key, &arcEntry{key: key, timestamp: time.Now()})
}

func (arc *AdaptiveReplacementCache) adaptForRecency() {
	delta := 1
	if arc.b1.list.Len() >= arc.b2.list.Len() && arc.b2.list.Len() > 0 {
		delta = arc.b1.list.Len() / arc.b2.list.Len()
	}
	arc.p = min(arc.c, arc.p+delta)
}

func (arc *AdaptiveReplacementCache) adaptForFrequency() {
	delta := 1
	if arc.b2.list.Len() >= arc.b1.list.Len() && arc.b1.list.Len() > 0 {
		delta = arc.b2.list.Len() / arc.b1.list.Len()
	}
	arc.p = max(0, arc.p-delta)
}

func (arc *AdaptiveReplacementCache) addToListFront(l *arcList, key string, entry *arcEntry) {
	l.entries[key] = l.list.PushFront(entry)
}

func (arc *AdaptiveReplacementCache) removeFromList(l *arcList, key string) {
	if elem, found := l.entries[key]; found {
		l.list.Remove(elem)
		delete(l.entries, key)
	}
}

func (arc *AdaptiveReplacementCache) isExpired(entry *arcEntry) bool {
	if arc.ttl <= 0 {
		return false
	}
	return time.Since(entry.timestamp) > arc.ttl
}

func (arc *AdaptiveReplacementCache) cleanupLoop() {
	ticker := time.NewTicker(arc.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			arc.cleanupExpired()
		case <-arc.stopCleanup:
			return
		}
	}
}

func (arc *AdaptiveReplacementCache) cleanupExpired() {
	arc.mu.Lock()
	defer arc.mu.Unlock()
	if arc.ttl <= 0 {
		return
	}
	now := time.Now()
	var expired []string
	for _, l := range []*arcList{arc.t1, arc.t2} {
		for key, elem := range l.entries {
			if now.Sub(elem.Value.(*arcEntry).timestamp) > arc.ttl {
				expired = append(expired, key)
			}
		}
	}
	for _, key := range expired {
		arc.removeKeyLocked(key)
	}
}

// Close stops the background expiry sweep.
func (arc *AdaptiveReplacementCache) Close() {
	close(arc.stopCleanup)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
