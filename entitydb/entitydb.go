// Package entitydb is the façade gluing kvengine, registry, store,
// relation, and deletion behind the language-neutral API surface
// spec.md §6 describes: one Database per opened backing file, with
// register/save/get/getAll/getWithFilter/remove/saveNext, plus the
// sibling, parent/child, and free-relation operations layered on top.
//
// Go has no type-parameterized methods, so the store-level generic
// operations are free functions parameterized by the record type
// (Save[E], Get[E], ...) taking *Database as their first argument,
// the same shape database/sql's generic helpers use.
package entitydb

import (
	"sync"

	"entitydb/cache"
	"entitydb/config"
	"entitydb/deletion"
	"entitydb/entity"
	"entitydb/integrity"
	"entitydb/keycodec"
	"entitydb/kvengine"
	"entitydb/logger"
	"entitydb/registry"
	"entitydb/relation"
	"entitydb/serialize"
	"entitydb/store"
)

// RegistryBucketName is the well-known sub-store holding one marker
// entry per registered storeName (spec.md §6).
const RegistryBucketName = "__registry"

// Database is an opened entity store: a backing kvengine.Database plus
// the registry and deletion engine that give registered stores their
// relational behavior.
type Database struct {
	kv       kvengine.Database
	reg      *registry.Registry
	deleter  *deletion.Engine
	codec    serialize.Codec

	cacheEnabled bool
	cacheConfig  cache.ARCConfig
	cachesMu     sync.Mutex
	caches       map[string]interface{}
}

// Open opens (creating if necessary) a bbolt-backed Database at path,
// using codec to (de)serialize records. Reads are not cached; use
// OpenWithCache for a cached Get path.
func Open(path string, codec serialize.Codec) (*Database, error) {
	kv, err := kvengine.OpenBolt(path)
	if err != nil {
		return nil, err
	}
	return newDatabase(kv, codec, false, cache.ARCConfig{}), nil
}

// OpenWithCache opens a bbolt-backed Database at path with Get[E]
// wrapped by a per-store AdaptiveReplacementCache (config.Config's
// CacheEnabled/CacheTTL/CacheMaxEntries drive cfg in practice).
func OpenWithCache(path string, codec serialize.Codec, cfg cache.ARCConfig) (*Database, error) {
	kv, err := kvengine.OpenBolt(path)
	if err != nil {
		return nil, err
	}
	return newDatabase(kv, codec, true, cfg), nil
}

// OpenMemory returns a process-local Database backed by an in-memory
// kvengine, useful for tests and callers that don't need durability.
func OpenMemory(codec serialize.Codec) *Database {
	return newDatabase(kvengine.OpenMemory(), codec, false, cache.ARCConfig{})
}

// OpenMemoryWithCache is OpenMemory with Get[E] wrapped by a per-store
// AdaptiveReplacementCache, for exercising the cached read path without
// a backing file.
func OpenMemoryWithCache(codec serialize.Codec, cfg cache.ARCConfig) *Database {
	return newDatabase(kvengine.OpenMemory(), codec, true, cfg)
}

// OpenFromConfig opens a bbolt-backed Database at cfg.DatabasePath(),
// honoring cfg's cache and integrity-monitor settings. If cfg enables
// the integrity monitor, the returned Monitor has already been
// started; the caller owns calling Stop() on it before closing db.
func OpenFromConfig(cfg *config.Config, codec serialize.Codec) (*Database, *integrity.Monitor, error) {
	var (
		db  *Database
		err error
	)
	if cfg.CacheEnabled {
		arcCfg := cache.ARCConfig{
			MaxSize:      cfg.CacheMaxEntries,
			TTL:          cfg.CacheTTL,
			AdaptEnabled: true,
		}
		db, err = OpenWithCache(cfg.DatabasePath(), codec, arcCfg)
	} else {
		db, err = Open(cfg.DatabasePath(), codec)
	}
	if err != nil {
		return nil, nil, err
	}

	var mon *integrity.Monitor
	if cfg.IntegrityMonitorEnabled {
		mon = integrity.New(db.kv, db.reg, db.codec, integrity.Config{
			Enabled:  true,
			Interval: cfg.IntegrityMonitorInterval,
		})
		mon.Start()
	}
	return db, mon, nil
}

func newDatabase(kv kvengine.Database, codec serialize.Codec, cacheEnabled bool, cacheConfig cache.ARCConfig) *Database {
	reg := registry.New()
	return &Database{
		kv:           kv,
		reg:          reg,
		deleter:      deletion.New(reg, codec),
		codec:        codec,
		cacheEnabled: cacheEnabled,
		cacheConfig:  cacheConfig,
		caches:       make(map[string]interface{}),
	}
}

// Close releases the backing kvengine resources, including any
// per-store cache cleanup goroutines.
func (db *Database) Close() error {
	db.cachesMu.Lock()
	for _, c := range db.caches {
		if closer, ok := c.(interface{ Close() }); ok {
			closer.Close()
		}
	}
	db.cachesMu.Unlock()
	return db.kv.Close()
}

// cachedStoreOf returns the CachedStore[E] for storeName, creating it
// on first use. Each store gets its own ARC instance since cache
// entries from one record type must never be mistaken for another's.
func cachedStoreOf[E any](db *Database, storeName string, underlying *store.Store[E]) *cache.CachedStore[E] {
	db.cachesMu.Lock()
	defer db.cachesMu.Unlock()
	if c, ok := db.caches[storeName]; ok {
		return c.(*cache.CachedStore[E])
	}
	c := cache.NewCachedStore[E](underlying, storeName, db.cacheConfig)
	db.caches[storeName] = c
	return c
}

// Register records d's descriptor under d.StoreName (spec.md §4.3) and
// writes its marker entry into the well-known registry bucket, idempotent
// on repeat calls with an identical descriptor (spec.md §6).
func (db *Database) Register(d entity.Descriptor) error {
	if err := db.reg.Register(d); err != nil {
		return err
	}
	tx, err := db.kv.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.CreateBucketIfNotExists(d.StoreName); err != nil {
		return err
	}
	regBucket, err := tx.CreateBucketIfNotExists(RegistryBucketName)
	if err != nil {
		return err
	}
	if err := regBucket.Put([]byte(d.StoreName), []byte{1}); err != nil {
		return err
	}
	logger.Debug("entitydb: registered store %q", d.StoreName)
	return tx.Commit()
}

// StoreNames returns every registered store name.
func (db *Database) StoreNames() []string { return db.reg.StoreNames() }

func storeOf[E any](db *Database, storeName string) (*store.Store[E], entity.Descriptor, error) {
	d, err := db.reg.Descriptor(storeName)
	if err != nil {
		return nil, entity.Descriptor{}, err
	}
	return store.New[E](d.KeySpec, db.codec), d, nil
}

// Save writes e under key in storeName (spec.md §4.4 save). When
// caching is enabled for db, the store's cache entry for key is
// evicted through CachedStore.Save so a subsequent Get observes the
// new value.
func Save[E any](db *Database, storeName string, key keycodec.Key, e *E) error {
	s, _, err := storeOf[E](db, storeName)
	if err != nil {
		return err
	}
	tx, err := db.kv.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	bucket, err := tx.CreateBucketIfNotExists(storeName)
	if err != nil {
		return err
	}
	if db.cacheEnabled {
		if err := cachedStoreOf[E](db, storeName, s).Save(bucket, key, e); err != nil {
			return err
		}
	} else if err := s.Save(bucket, key, e); err != nil {
		return err
	}
	return tx.Commit()
}

// Get reads the record at key in storeName, or store.ErrNotFound if
// absent (spec.md §4.4 get). When caching is enabled for db, this
// reads through a per-store AdaptiveReplacementCache.
func Get[E any](db *Database, storeName string, key keycodec.Key) (*E, error) {
	s, _, err := storeOf[E](db, storeName)
	if err != nil {
		return nil, err
	}
	tx, err := db.kv.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	bucket := tx.Bucket(storeName)
	if bucket == nil {
		return nil, store.ErrNotFound
	}
	if db.cacheEnabled {
		return cachedStoreOf[E](db, storeName, s).Get(bucket, key)
	}
	return s.Get(bucket, key)
}

// GetAll returns every record in storeName, in key order (spec.md §4.4 getAll).
func GetAll[E any](db *Database, storeName string) ([]*E, error) {
	s, _, err := storeOf[E](db, storeName)
	if err != nil {
		return nil, err
	}
	tx, err := db.kv.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	bucket := tx.Bucket(storeName)
	if bucket == nil {
		return nil, nil
	}
	return s.GetAll(bucket)
}

// GetWithFilter returns every record in storeName for which pred holds
// (spec.md §4.4 getWithFilter).
func GetWithFilter[E any](db *Database, storeName string, pred func(*E) bool) ([]*E, error) {
	s, _, err := storeOf[E](db, storeName)
	if err != nil {
		return nil, err
	}
	tx, err := db.kv.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	bucket := tx.Bucket(storeName)
	if bucket == nil {
		return nil, nil
	}
	return s.GetWithFilter(bucket, pred)
}

// Remove invokes the deletion engine on (storeName, key) (spec.md §4.4
// remove, §4.6). When caching is enabled for db, every record the
// deletion engine actually removed — including ones deleted only as a
// sibling/child/free-relation cascade side effect — has its cache
// entry evicted, so a subsequent cached Get never serves a deleted
// record (spec.md §P5).
func (db *Database) Remove(storeName string, key keycodec.Key) error {
	d, err := db.reg.Descriptor(storeName)
	if err != nil {
		return err
	}
	k, err := keycodec.Encode(d.KeySpec, key)
	if err != nil {
		return err
	}
	tx, err := db.kv.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	removed, err := db.deleter.Remove(tx, storeName, k)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if db.cacheEnabled {
		db.invalidateCaches(removed)
	}
	return nil
}

// invalidateCaches evicts the cache entry for every deleted record, for
// whichever of the affected stores already have a cache (stores never
// read through Get[E] have none to invalidate).
func (db *Database) invalidateCaches(removed []deletion.Deleted) {
	db.cachesMu.Lock()
	defer db.cachesMu.Unlock()
	for _, r := range removed {
		c, ok := db.caches[r.Store]
		if !ok {
			continue
		}
		if inv, ok := c.(cache.Invalidator); ok {
			inv.Invalidate(r.Key)
		}
	}
}

// SaveNext allocates the next u32 key in storeName and saves e under
// it, returning the allocated key (spec.md §4.4 saveNext, §4.7).
func SaveNext[E any](db *Database, storeName string, e *E) (keycodec.Value, error) {
	s, _, err := storeOf[E](db, storeName)
	if err != nil {
		return keycodec.Value{}, err
	}
	tx, err := db.kv.Begin(true)
	if err != nil {
		return keycodec.Value{}, err
	}
	defer tx.Rollback()
	bucket, err := tx.CreateBucketIfNotExists(storeName)
	if err != nil {
		return keycodec.Value{}, err
	}
	v, err := s.SaveNext(bucket, e)
	if err != nil {
		return keycodec.Value{}, err
	}
	return v, tx.Commit()
}

// SaveSibling writes e into siblingStore under the same encoded key as
// self (spec.md §6 saveSibling). The two stores must declare each
// other as siblings (spec.md §I2); this is not checked here, matching
// how save() never checks relational declarations either.
func SaveSibling[E any](db *Database, siblingStore string, selfStoreName string, selfKey keycodec.Key, e *E) error {
	return Save[E](db, siblingStore, selfKey, e)
}

// GetSibling reads the record in siblingStore sharing self's key
// (spec.md §6 getSibling<T>).
func GetSibling[E any](db *Database, siblingStore string, selfKey keycodec.Key) (*E, error) {
	return Get[E](db, siblingStore, selfKey)
}

// SaveChild allocates the next auto-increment child key under parent
// in childStore and saves e under it (spec.md §6 saveChild, §4.7).
func SaveChild[E any](db *Database, childStore string, parent keycodec.Value, e *E) (keycodec.Key, error) {
	s, _, err := storeOf[E](db, childStore)
	if err != nil {
		return keycodec.Key{}, err
	}
	tx, err := db.kv.Begin(true)
	if err != nil {
		return keycodec.Key{}, err
	}
	defer tx.Rollback()
	bucket, err := tx.CreateBucketIfNotExists(childStore)
	if err != nil {
		return keycodec.Key{}, err
	}
	k, err := s.SaveChild(bucket, parent, e)
	if err != nil {
		return keycodec.Key{}, err
	}
	return k, tx.Commit()
}

// GetChildren returns every record in childStore under the parent
// range [lo, hi) (spec.md §6 getChildren<T>, §4.1).
func GetChildren[E any](db *Database, childStore string, parentSpec keycodec.Spec, parent keycodec.Value) ([]*E, error) {
	s, _, err := storeOf[E](db, childStore)
	if err != nil {
		return nil, err
	}
	tx, err := db.kv.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	bucket := tx.Bucket(childStore)
	if bucket == nil {
		return nil, nil
	}
	lo, hi, err := keycodec.ChildRange(parentSpec, parent)
	if err != nil {
		return nil, err
	}
	var out []*E
	c := bucket.Cursor()
	for k, v := c.Seek(lo); k != nil; k, v = c.Next() {
		if hi != nil && bytesCompare(k, hi) >= 0 {
			break
		}
		var e E
		if err := db.codec.Unmarshal(v, &e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, nil
}

func bytesCompare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

// CreateRelation writes a free relation between a and b (spec.md §4.5,
// §6 createRelation).
func (db *Database) CreateRelation(aStore string, aKey keycodec.Key, bStore string, bKey keycodec.Key, behA, behB entity.DeletionBehavior, name string) error {
	aSpec, err := db.reg.Descriptor(aStore)
	if err != nil {
		return err
	}
	bSpec, err := db.reg.Descriptor(bStore)
	if err != nil {
		return err
	}
	ak, err := keycodec.Encode(aSpec.KeySpec, aKey)
	if err != nil {
		return err
	}
	bk, err := keycodec.Encode(bSpec.KeySpec, bKey)
	if err != nil {
		return err
	}
	tx, err := db.kv.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	bucket, err := tx.CreateBucketIfNotExists(relation.BucketName)
	if err != nil {
		return err
	}
	a := relation.Endpoint{Store: aStore, Key: ak}
	b := relation.Endpoint{Store: bStore, Key: bk}
	if err := relation.CreateRelation(bucket, db.codec, a, b, behA, behB, name); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveRelation removes every directed edge between a and b, all
// names (spec.md §4.5, §6 removeRelation).
func (db *Database) RemoveRelation(aStore string, aKey keycodec.Key, bStore string, bKey keycodec.Key) error {
	aSpec, err := db.reg.Descriptor(aStore)
	if err != nil {
		return err
	}
	bSpec, err := db.reg.Descriptor(bStore)
	if err != nil {
		return err
	}
	ak, err := keycodec.Encode(aSpec.KeySpec, aKey)
	if err != nil {
		return err
	}
	bk, err := keycodec.Encode(bSpec.KeySpec, bKey)
	if err != nil {
		return err
	}
	tx, err := db.kv.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	bucket := tx.Bucket(relation.BucketName)
	if bucket == nil {
		return nil
	}
	a := relation.Endpoint{Store: aStore, Key: ak}
	b := relation.Endpoint{Store: bStore, Key: bk}
	if err := relation.RemoveRelation(bucket, db.codec, a, b); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveRelationWithKey removes every directed edge between (aStore,
// aKey) and (targetStore, targetKey) without requiring the caller to
// already have loaded the target record (spec.md §6
// removeRelationWithKey<T>).
func (db *Database) RemoveRelationWithKey(aStore string, aKey keycodec.Key, targetStore string, targetKey keycodec.Key) error {
	return db.RemoveRelation(aStore, aKey, targetStore, targetKey)
}

// GetRelated returns every record in targetStore reachable from
// (aStore, aKey) via a free relation, optionally filtered by name
// (spec.md §6 getRelated<T>/getRelatedWithName<T>).
func GetRelated[E any](db *Database, aStore string, aKey keycodec.Key, targetStore string, name *string) ([]*E, error) {
	aSpec, err := db.reg.Descriptor(aStore)
	if err != nil {
		return nil, err
	}
	ak, err := keycodec.Encode(aSpec.KeySpec, aKey)
	if err != nil {
		return nil, err
	}
	s, _, err := storeOf[E](db, targetStore)
	if err != nil {
		return nil, err
	}
	tx, err := db.kv.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	relBucket := tx.Bucket(relation.BucketName)
	if relBucket == nil {
		return nil, nil
	}
	keys, err := relation.Related(relBucket, db.codec, relation.Endpoint{Store: aStore, Key: ak}, targetStore, name)
	if err != nil {
		return nil, err
	}
	targetBucket := tx.Bucket(targetStore)
	if targetBucket == nil {
		return nil, nil
	}
	var out []*E
	for _, k := range keys {
		e, err := s.GetBytes(targetBucket, k)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// GetSingleRelated returns the first related record in scan order, or
// store.ErrNotFound if there is none (spec.md §6 getSingleRelated<T>/
// getSingleRelatedWithName<T>).
func GetSingleRelated[E any](db *Database, aStore string, aKey keycodec.Key, targetStore string, name *string) (*E, error) {
	all, err := GetRelated[E](db, aStore, aKey, targetStore, name)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, store.ErrNotFound
	}
	return all[0], nil
}
