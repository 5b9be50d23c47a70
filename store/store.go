// Package store implements the entity store operations (spec.md §4.4):
// save, get, getAll, getWithFilter and remove, generic over the record
// type each registered entity store holds.
//
// Store[E] is deliberately stateless beyond its KeySpec and Codec:
// every method takes the kvengine.Bucket to operate on, so callers
// control the transaction lifetime the way they do with a raw bbolt
// bucket. The entitydb façade package is what opens transactions and
// hands Store[E] its bucket.
package store

import (
	"errors"

	"entitydb/keycodec"
	"entitydb/kvengine"
	"entitydb/serialize"
)

// ErrNotFound is returned by Get when no record exists at the given key.
var ErrNotFound = errors.New("store: key not found")

// Store is the generic entity store over record type E. It is cheap to
// build; the entitydb façade builds a fresh one from the registered
// Descriptor on each call.
type Store[E any] struct {
	codec   serialize.Codec
	keySpec keycodec.Spec
}

// New returns a Store[E] bound to keySpec (the registered Descriptor's
// KeySpec) and codec.
func New[E any](keySpec keycodec.Spec, codec serialize.Codec) *Store[E] {
	return &Store[E]{keySpec: keySpec, codec: codec}
}

// KeySpec returns the key spec this store encodes keys under.
func (s *Store[E]) KeySpec() keycodec.Spec { return s.keySpec }

// EncodeKey encodes a typed key under this store's KeySpec.
func (s *Store[E]) EncodeKey(key keycodec.Key) ([]byte, error) {
	return keycodec.Encode(s.keySpec, key)
}

// Save writes e under key, replacing any existing record there
// (spec.md §4.4 save).
func (s *Store[E]) Save(bucket kvengine.Bucket, key keycodec.Key, e *E) error {
	k, err := s.EncodeKey(key)
	if err != nil {
		return err
	}
	return s.SaveBytes(bucket, k, e)
}

// SaveBytes writes e under an already-encoded key. Used by Save and by
// callers that compute the key bytes themselves (cache.CachedStore.Save).
func (s *Store[E]) SaveBytes(bucket kvengine.Bucket, k []byte, e *E) error {
	v, err := s.codec.Marshal(e)
	if err != nil {
		return err
	}
	return bucket.Put(k, v)
}

// Get reads the record at key, or ErrNotFound if absent (spec.md §4.4 get).
func (s *Store[E]) Get(bucket kvengine.Bucket, key keycodec.Key) (*E, error) {
	k, err := s.EncodeKey(key)
	if err != nil {
		return nil, err
	}
	return s.GetBytes(bucket, k)
}

// GetBytes reads the record at an already-encoded key.
func (s *Store[E]) GetBytes(bucket kvengine.Bucket, k []byte) (*E, error) {
	raw := bucket.Get(k)
	if raw == nil {
		return nil, ErrNotFound
	}
	var e E
	if err := s.codec.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetAll returns every record in the store, in key order (spec.md §4.4 getAll).
func (s *Store[E]) GetAll(bucket kvengine.Bucket) ([]*E, error) {
	var out []*E
	c := bucket.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var e E
		if err := s.codec.Unmarshal(v, &e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, nil
}

// GetWithFilter returns every record for which pred reports true
// (spec.md §4.4 getWithFilter). It is a full scan plus an in-process
// predicate, same as the teacher's query helpers — no secondary index
// backs arbitrary predicates.
func (s *Store[E]) GetWithFilter(bucket kvengine.Bucket, pred func(*E) bool) ([]*E, error) {
	all, err := s.GetAll(bucket)
	if err != nil {
		return nil, err
	}
	var out []*E
	for _, e := range all {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Delete removes the record at key. No error if it was already absent
// (spec.md §4.4 remove's leaf store-level primitive; relational
// cascading lives in package deletion, not here).
func (s *Store[E]) Delete(bucket kvengine.Bucket, key keycodec.Key) error {
	k, err := s.EncodeKey(key)
	if err != nil {
		return err
	}
	return bucket.Delete(k)
}

// DeleteBytes removes the record at an already-encoded key.
func (s *Store[E]) DeleteBytes(bucket kvengine.Bucket, k []byte) error {
	return bucket.Delete(k)
}
