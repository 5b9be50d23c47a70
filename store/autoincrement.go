package store

import (
	"encoding/binary"

	"entitydb/keycodec"
	"entitydb/kvengine"
)

// SaveNext assigns e the next auto-increment key — one past the
// bucket's highest existing u32 key, or 0 if empty — and saves it
// (spec.md §4.7, top-level auto-increment). The store's KeySpec must
// be a single u32 component.
func (s *Store[E]) SaveNext(bucket kvengine.Bucket, e *E) (keycodec.Value, error) {
	next, err := nextU32(bucket, s.keySpec, nil, nil)
	if err != nil {
		return keycodec.Value{}, err
	}
	v := keycodec.U32(next)
	if err := s.Save(bucket, keycodec.Single(v), e); err != nil {
		return keycodec.Value{}, err
	}
	return v, nil
}

// SaveChild assigns e the next auto-increment key scoped to parent —
// one past the highest existing (parent, u32) key sharing parent, or
// (parent, 0) if parent has no children yet (spec.md §4.7,
// parent/child auto-increment). The store's KeySpec must be
// keycodec.ChildSpec(parent's kind).
func (s *Store[E]) SaveChild(bucket kvengine.Bucket, parent keycodec.Value, e *E) (keycodec.Key, error) {
	lo, hi, err := keycodec.ChildRange(keycodec.Spec{Components: s.keySpec.Components[:1]}, parent)
	if err != nil {
		return keycodec.Key{}, err
	}
	next, err := nextU32(bucket, s.keySpec, lo, hi)
	if err != nil {
		return keycodec.Key{}, err
	}
	key := keycodec.Pair(parent, keycodec.U32(next))
	if err := s.Save(bucket, key, e); err != nil {
		return keycodec.Key{}, err
	}
	return key, nil
}

// nextU32 finds the u32 trailing component of the highest existing key
// under [lo, hi) — or, when lo is nil, the highest key in the whole
// bucket — and returns one past it, or 0 if no such key exists.
//
// The [lo, hi) case uses Seek(hi) followed by a single Prev() to land
// on the highest key below hi in one step, the same pattern bbolt's
// own documentation recommends for bounded reverse lookups, instead of
// a full forward scan of the parent's existing children.
func nextU32(bucket kvengine.Bucket, spec keycodec.Spec, lo, hi []byte) (uint32, error) {
	c := bucket.Cursor()
	var k []byte
	switch {
	case lo == nil:
		k, _ = c.Last()
	case hi == nil:
		k, _ = c.Last()
	default:
		var seekKey []byte
		seekKey, _ = c.Seek(hi)
		if seekKey == nil {
			k, _ = c.Last()
		} else {
			k, _ = c.Prev()
		}
	}
	if k == nil || (lo != nil && !hasPrefix(k, lo)) {
		return 0, nil
	}
	if lo == nil {
		decoded, err := keycodec.Decode(spec, k)
		if err != nil {
			return 0, err
		}
		return decoded.Values[0].AsU32() + 1, nil
	}
	suffix := k[len(lo):]
	if len(suffix) != 4 {
		return 0, &keycodec.DecodeError{Reason: "child key suffix is not a u32"}
	}
	return binary.BigEndian.Uint32(suffix) + 1, nil
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
