// Package deletion implements the relational-integrity deletion engine
// (spec.md §4.6): removing one entity walks its declared sibling,
// child, and free-relation edges, applying each edge's DeletionBehavior
// (Cascade, Error, BreakLink).
//
// Deletion runs in two passes over the same walk. Pre-flight is
// read-only: it walks every edge exactly as execution will, and aborts
// with IntegrityViolation the instant it finds an Error-behavior edge
// whose far side still exists, before anything has been mutated
// (spec.md §7, §P7 "no partial deletes"). Execution then performs the
// same walk for real: free-relation edges first, then children, then
// siblings, and only then the entity's own record — edges are always
// cleared before the endpoints they connect vanish, and siblings
// before self (spec.md §4.6).
//
// Both passes track a per-call (store, key) visited set so a cycle of
// Cascade edges terminates instead of recursing forever.
package deletion

import (
	"entitydb/entity"
	"entitydb/keycodec"
	"entitydb/kvengine"
	"entitydb/registry"
	"entitydb/relation"
	"entitydb/serialize"
)

// Engine walks and applies the relational delete protocol for every
// store registered with reg.
type Engine struct {
	reg   *registry.Registry
	codec serialize.Codec
}

// New returns an Engine backed by reg, decoding free-relation edge
// records with codec.
func New(reg *registry.Registry, codec serialize.Codec) *Engine {
	return &Engine{reg: reg, codec: codec}
}

type visitKey struct {
	store string
	key   string
}

// Deleted identifies one record actually removed by a Remove call, so
// a caller that layers a read cache on top of this engine (see
// entitydb.Database.Remove) knows exactly which cache entries to
// evict, including ones removed only as a cascade side effect.
type Deleted struct {
	Store string
	Key   []byte
}

// Remove deletes the record at (storeName, key) and everything its
// declared edges require, or leaves all state untouched and returns an
// *entity.IntegrityViolation if any Error-behavior edge is blocked. On
// success it returns every (store, key) pair actually deleted.
func (e *Engine) Remove(tx kvengine.Tx, storeName string, key []byte) ([]Deleted, error) {
	preflightVisited := make(map[visitKey]bool)
	if err := e.preflight(tx, storeName, key, preflightVisited); err != nil {
		return nil, err
	}
	executeVisited := make(map[visitKey]bool)
	var deleted []Deleted
	if err := e.execute(tx, storeName, key, executeVisited, &deleted); err != nil {
		return nil, err
	}
	return deleted, nil
}

func (e *Engine) preflight(tx kvengine.Tx, storeName string, key []byte, visited map[visitKey]bool) error {
	vk := visitKey{storeName, string(key)}
	if visited[vk] {
		return nil
	}
	visited[vk] = true

	d, err := e.reg.Descriptor(storeName)
	if err != nil {
		return err
	}
	bucket := tx.Bucket(storeName)
	if bucket == nil || bucket.Get(key) == nil {
		return nil
	}

	for _, sib := range d.Siblings {
		sibBucket := tx.Bucket(sib.StoreName)
		if sibBucket == nil || sibBucket.Get(key) == nil {
			continue
		}
		// A sibling already in the being-deleted set is on its way out
		// regardless of its own declared behavior, so it can't block
		// this deletion (spec.md §8 S3's asymmetric Cascade/Error pair
		// relies on this: the side walking in via Cascade must not then
		// have its own Error edge trip on the very entity that pulled it
		// in).
		if visited[visitKey{sib.StoreName, string(key)}] {
			continue
		}
		switch sib.Behavior {
		case entity.Error:
			return &entity.IntegrityViolation{BlockingStore: sib.StoreName, BlockingKey: key}
		case entity.Cascade:
			if err := e.preflight(tx, sib.StoreName, key, visited); err != nil {
				return err
			}
		}
	}

	for _, child := range d.Children {
		childKeys, err := e.childKeys(tx, d, child, key)
		if err != nil {
			return err
		}
		for _, ck := range childKeys {
			switch child.Behavior {
			case entity.Error:
				return &entity.IntegrityViolation{BlockingStore: child.StoreName, BlockingKey: ck}
			case entity.Cascade:
				if err := e.preflight(tx, child.StoreName, ck, visited); err != nil {
					return err
				}
			}
		}
	}

	edges, err := e.outgoing(tx, storeName, key)
	if err != nil {
		return err
	}
	for _, edge := range edges {
		targetBucket := tx.Bucket(edge.Target.Store)
		if targetBucket == nil || targetBucket.Get(edge.Target.Key) == nil {
			continue
		}
		// Same being-deleted guard as siblings, above: a target already
		// in visited is being removed by this same Remove call and
		// can't block it.
		if visited[visitKey{edge.Target.Store, string(edge.Target.Key)}] {
			continue
		}
		switch edge.Behavior {
		case entity.Error:
			return &entity.IntegrityViolation{BlockingStore: edge.Target.Store, BlockingKey: edge.Target.Key}
		case entity.Cascade:
			if err := e.preflight(tx, edge.Target.Store, edge.Target.Key, visited); err != nil {
				return err
			}
		}
	}

	return nil
}

func (e *Engine) execute(tx kvengine.Tx, storeName string, key []byte, visited map[visitKey]bool, deleted *[]Deleted) error {
	vk := visitKey{storeName, string(key)}
	if visited[vk] {
		return nil
	}
	visited[vk] = true

	d, err := e.reg.Descriptor(storeName)
	if err != nil {
		return err
	}
	bucket := tx.Bucket(storeName)
	if bucket == nil || bucket.Get(key) == nil {
		return nil
	}

	if err := e.clearFreeRelations(tx, storeName, key, visited, deleted); err != nil {
		return err
	}

	for _, child := range d.Children {
		childKeys, err := e.childKeys(tx, d, child, key)
		if err != nil {
			return err
		}
		for _, ck := range childKeys {
			if child.Behavior == entity.Cascade {
				if err := e.execute(tx, child.StoreName, ck, visited, deleted); err != nil {
					return err
				}
			}
			// BreakLink and Error (already ruled out by pre-flight)
			// leave the child record untouched.
		}
	}

	for _, sib := range d.Siblings {
		sibBucket := tx.Bucket(sib.StoreName)
		if sibBucket == nil || sibBucket.Get(key) == nil {
			continue
		}
		if sib.Behavior == entity.Cascade {
			if err := e.execute(tx, sib.StoreName, key, visited, deleted); err != nil {
				return err
			}
		}
	}

	if err := bucket.Delete(key); err != nil {
		return err
	}
	*deleted = append(*deleted, Deleted{Store: storeName, Key: append([]byte(nil), key...)})
	return nil
}

// clearFreeRelations walks every edge leaving (storeName, key),
// applying Cascade (delete the far endpoint, then drop the edge) or
// BreakLink (drop only the edge) before anything else in this store's
// deletion proceeds, so edges never outlive either endpoint.
func (e *Engine) clearFreeRelations(tx kvengine.Tx, storeName string, key []byte, visited map[visitKey]bool, deleted *[]Deleted) error {
	edges, err := e.outgoing(tx, storeName, key)
	if err != nil {
		return err
	}
	freeBucket := tx.Bucket(relation.BucketName)
	if freeBucket == nil {
		return nil
	}
	source := relation.Endpoint{Store: storeName, Key: key}
	for _, edge := range edges {
		if edge.Behavior == entity.Cascade {
			if err := e.execute(tx, edge.Target.Store, edge.Target.Key, visited, deleted); err != nil {
				return err
			}
		}
		if err := relation.RemoveEdgePair(freeBucket, source, edge.Target, edge.Name); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) outgoing(tx kvengine.Tx, storeName string, key []byte) ([]relation.Edge, error) {
	freeBucket := tx.Bucket(relation.BucketName)
	if freeBucket == nil {
		return nil, nil
	}
	return relation.Outgoing(freeBucket, e.codec, relation.Endpoint{Store: storeName, Key: key})
}

// childKeys returns every existing child key under storeName's record
// key, for the declared child edge child.
func (e *Engine) childKeys(tx kvengine.Tx, d entity.Descriptor, child entity.ChildEdge, key []byte) ([][]byte, error) {
	childBucket := tx.Bucket(child.StoreName)
	if childBucket == nil {
		return nil, nil
	}
	parentKey, err := keycodec.Decode(d.KeySpec, key)
	if err != nil {
		return nil, err
	}
	lo, hi, err := keycodec.ChildRange(d.KeySpec, parentKey.Values[0])
	if err != nil {
		return nil, err
	}
	var keys [][]byte
	c := childBucket.Cursor()
	for k, _ := c.Seek(lo); k != nil; k, _ = c.Next() {
		if hi != nil && compareBytes(k, hi) >= 0 {
			break
		}
		keys = append(keys, append([]byte(nil), k...))
	}
	return keys, nil
}

func compareBytes(a, b []byte) int {
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
