// Package relation implements the free-relation index (spec.md §4.5):
// a hidden auxiliary store holding one record per directed edge,
// supporting named M:N links between arbitrary registered entities.
//
// Each logical link is stored as two directed edge records — forward
// and reverse — so that from either endpoint's perspective a single
// prefix scan finds every outgoing edge without having to search the
// whole index (spec.md §I4).
package relation

import (
	"encoding/binary"

	"entitydb/entity"
	"entitydb/kvengine"
	"entitydb/serialize"
)

// BucketName is the well-known name of the hidden free-relation
// sub-store (spec.md §6).
const BucketName = "__free_relations"

// Endpoint names one side of a relation: a registered store and an
// encoded key within it.
type Endpoint struct {
	Store string
	Key   []byte
}

// Edge is one directed edge as seen from its source: if the source is
// deleted, Behavior says what happens to this edge (and, for Cascade,
// to Target).
type Edge struct {
	Target   Endpoint
	Name     string
	Behavior entity.DeletionBehavior
}

// edgeValue is the msgpack-encoded record value.
type edgeValue struct {
	TargetStore string
	TargetKey   []byte
	Name        string
	Behavior    int
}

// lenPrefixed appends a 4-byte big-endian length prefix followed by b.
func lenPrefixed(dst []byte, b []byte) []byte {
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(b)))
	dst = append(dst, lb[:]...)
	return append(dst, b...)
}

// edgeKeyPrefix builds the scan prefix for every edge whose source is
// (sourceStore, sourceKey) and whose target store is targetStore.
// Matches spec.md §4.5's key concatenation order: left store, left
// key, right store, right key, name.
func edgeKeyPrefix(sourceStore string, sourceKey []byte, targetStore string) []byte {
	var b []byte
	b = lenPrefixed(b, []byte(sourceStore))
	b = lenPrefixed(b, sourceKey)
	b = lenPrefixed(b, []byte(targetStore))
	return b
}

// edgeKeySourcePrefix builds the scan prefix for every edge whose
// source is (sourceStore, sourceKey), regardless of target store —
// used by the deletion engine to walk every outgoing free relation.
func edgeKeySourcePrefix(sourceStore string, sourceKey []byte) []byte {
	var b []byte
	b = lenPrefixed(b, []byte(sourceStore))
	b = lenPrefixed(b, sourceKey)
	return b
}

func edgeKey(source, target Endpoint, name string) []byte {
	b := edgeKeyPrefix(source.Store, source.Key, target.Store)
	b = lenPrefixed(b, target.Key)
	b = lenPrefixed(b, []byte(name))
	return b
}

// prefixUpperBound returns the smallest byte slice strictly greater
// than every string sharing the given prefix, or nil if there is none
// (prefix is all 0xFF), meaning "scan to the end of the bucket".
func prefixUpperBound(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

func putEdge(bucket kvengine.Bucket, codec serialize.Codec, source, target Endpoint, name string, beh entity.DeletionBehavior) error {
	val, err := codec.Marshal(edgeValue{
		TargetStore: target.Store,
		TargetKey:   target.Key,
		Name:        name,
		Behavior:    int(beh),
	})
	if err != nil {
		return err
	}
	return bucket.Put(edgeKey(source, target, name), val)
}

// CreateRelation writes both directed edge records for a link between
// a and b, with a's outgoing behavior behA (applied when a is
// deleted) and b's outgoing behavior behB (applied when b is
// deleted). If an edge with the same (source, target, name) triple
// already exists it is replaced (spec.md §4.5).
func CreateRelation(bucket kvengine.Bucket, codec serialize.Codec, a, b Endpoint, behA, behB entity.DeletionBehavior, name string) error {
	if err := putEdge(bucket, codec, a, b, name, behA); err != nil {
		return err
	}
	return putEdge(bucket, codec, b, a, name, behB)
}

// RemoveRelation removes every directed edge record between a and b
// (both directions, all names) — spec.md §4.5, §6 removeRelation.
func RemoveRelation(bucket kvengine.Bucket, codec serialize.Codec, a, b Endpoint) error {
	if err := removeDirected(bucket, codec, a, b); err != nil {
		return err
	}
	return removeDirected(bucket, codec, b, a)
}

func removeDirected(bucket kvengine.Bucket, codec serialize.Codec, source, target Endpoint) error {
	prefix := edgeKeyPrefix(source.Store, source.Key, target.Store)
	keys, err := scanKeysWithTargetKey(bucket, prefix, target.Key)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// scanKeysWithTargetKey walks every key under prefix and returns those
// whose recorded TargetKey equals targetKey.
func scanKeysWithTargetKey(bucket kvengine.Bucket, prefix []byte, targetKey []byte) ([][]byte, error) {
	var matched [][]byte
	err := scanPrefix(bucket, prefix, func(k, v []byte) error {
		var ev edgeValue
		// Edge values are decoded with the package-level codec
		// (msgpack unless SetCodec replaced it), not with a codec
		// passed by the caller, so it must be the codec the bucket
		// was written with (spec.md §6's single-codec-per-database
		// assumption).
		if err := decodeEdgeValue(v, &ev); err != nil {
			return err
		}
		if bytesEqual(ev.TargetKey, targetKey) {
			matched = append(matched, append([]byte(nil), k...))
		}
		return nil
	})
	return matched, err
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// decodeEdgeValue decodes with whatever defaultCodec holds at call
// time; see SetCodec.
var decodeEdgeValue = func(data []byte, v interface{}) error {
	return defaultCodec.Unmarshal(data, v)
}

var defaultCodec serialize.Codec = serialize.MsgpackCodec{}

// SetCodec overrides the codec RemoveRelation uses to decode edge
// values; RemoveRelation does not use its own codec argument for this.
// Entity stores should call this once with the same codec passed to
// CreateRelation/Outgoing/Related.
func SetCodec(c serialize.Codec) {
	defaultCodec = c
}

// scanPrefix calls fn for every key in bucket sharing prefix, in key
// order, stopping at the first error.
func scanPrefix(bucket kvengine.Bucket, prefix []byte, fn func(k, v []byte) error) error {
	hi := prefixUpperBound(prefix)
	c := bucket.Cursor()
	for k, v := c.Seek(prefix); k != nil; k, v = c.Next() {
		if !hasPrefix(k, prefix) {
			break
		}
		if hi != nil && bytesCompare(k, hi) >= 0 {
			break
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
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

// Outgoing returns every directed edge leaving source, across all
// target stores and names — used by the deletion engine to walk the
// free relations reachable from a deletion target (spec.md §4.6).
func Outgoing(bucket kvengine.Bucket, codec serialize.Codec, source Endpoint) ([]Edge, error) {
	prefix := edgeKeySourcePrefix(source.Store, source.Key)
	var edges []Edge
	err := scanPrefix(bucket, prefix, func(k, v []byte) error {
		var ev edgeValue
		if err := codec.Unmarshal(v, &ev); err != nil {
			return err
		}
		edges = append(edges, Edge{
			Target:   Endpoint{Store: ev.TargetStore, Key: ev.TargetKey},
			Name:     ev.Name,
			Behavior: entity.DeletionBehavior(ev.Behavior),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// Related returns the target keys of every edge leaving source headed
// to targetStore, optionally filtered to a single relation name
// (spec.md §4.5 getRelated / getRelatedWithName).
func Related(bucket kvengine.Bucket, codec serialize.Codec, source Endpoint, targetStore string, name *string) ([][]byte, error) {
	prefix := edgeKeyPrefix(source.Store, source.Key, targetStore)
	var keys [][]byte
	err := scanPrefix(bucket, prefix, func(k, v []byte) error {
		var ev edgeValue
		if err := codec.Unmarshal(v, &ev); err != nil {
			return err
		}
		if name != nil && ev.Name != *name {
			return nil
		}
		keys = append(keys, ev.TargetKey)
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Keys are returned in scan order: by length-prefixed target key,
	// then by relation name.
	return keys, nil
}

// RemoveEdgePair removes both directed copies of the specific edge
// named by (source, target, name) — used by the deletion engine so a
// BreakLink or completed Cascade only clears the edge it walked, not
// every edge between the same pair of stores.
func RemoveEdgePair(bucket kvengine.Bucket, source, target Endpoint, name string) error {
	if err := bucket.Delete(edgeKey(source, target, name)); err != nil {
		return err
	}
	return bucket.Delete(edgeKey(target, source, name))
}
