// Package keycodec turns typed entity keys into byte sequences whose
// lexicographic order matches the declared type's natural order, so the
// backing key-value engine's ordered prefix scans can be relied on.
//
// Fixed-width numeric components are encoded big-endian, with signed
// values bias-flipped so negatives sort below non-negatives. Variable
// length components (string, bytes) are encoded verbatim when they are
// the entire key, and length-prefixed when they are one half of a
// 2-tuple, so concatenation stays unambiguous.
package keycodec

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies one of the primitive component types a KeySpec may be
// built from.
type Kind int

const (
	KindU32 Kind = iota
	KindI32
	KindU64
	KindI64
	KindString
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindU32:
		return "u32"
	case KindI32:
		return "i32"
	case KindU64:
		return "u64"
	case KindI64:
		return "i64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// fixedWidth returns the encoded width of a fixed-width kind, or 0 for
// variable-length kinds.
func (k Kind) fixedWidth() int {
	switch k {
	case KindU32, KindI32:
		return 4
	case KindU64, KindI64:
		return 8
	default:
		return 0
	}
}

func (k Kind) isVariableLength() bool {
	return k == KindString || k == KindBytes
}

// lengthPrefixWidth is the width of the length prefix used for a
// variable-length component when it appears as one half of a 2-tuple.
const lengthPrefixWidth = 4

// Spec declares the shape of an entity's key: either a single component
// or a 2-tuple of components (the only two arities the core supports;
// a 2-tuple is how parent/child keys (§I3) are expressed).
type Spec struct {
	Components []Kind
}

// U32Spec, I32Spec, U64Spec, I64Spec, StringSpec and BytesSpec are the
// single-component specs.
var (
	U32Spec    = Spec{Components: []Kind{KindU32}}
	I32Spec    = Spec{Components: []Kind{KindI32}}
	U64Spec    = Spec{Components: []Kind{KindU64}}
	I64Spec    = Spec{Components: []Kind{KindI64}}
	StringSpec = Spec{Components: []Kind{KindString}}
	BytesSpec  = Spec{Components: []Kind{KindBytes}}
)

// Tuple builds a 2-component Spec, used for child key specs: the first
// component is the parent's Spec component, the second is u32 (§I3).
func Tuple(a, b Kind) Spec {
	return Spec{Components: []Kind{a, b}}
}

// ChildSpec returns the key spec for entities that are children of a
// parent whose own key is a single component of kind parent.
func ChildSpec(parent Kind) Spec {
	return Tuple(parent, KindU32)
}

func (s Spec) arity() int { return len(s.Components) }

// Value is a typed key value: exactly one populated field per
// Components[i], matched by position. Values should be built with the
// U32/I32/U64/I64/String/Bytes constructors below rather than by
// populating fields by hand.
type Value struct {
	kind  Kind
	u32   uint32
	i32   int32
	u64   uint64
	i64   int64
	str   string
	bytes []byte
}

func U32(v uint32) Value    { return Value{kind: KindU32, u32: v} }
func I32(v int32) Value     { return Value{kind: KindI32, i32: v} }
func U64(v uint64) Value    { return Value{kind: KindU64, u64: v} }
func I64(v int64) Value     { return Value{kind: KindI64, i64: v} }
func String(v string) Value { return Value{kind: KindString, str: v} }
func Bytes(v []byte) Value  { return Value{kind: KindBytes, bytes: append([]byte(nil), v...)} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsU32() uint32   { return v.u32 }
func (v Value) AsI32() int32    { return v.i32 }
func (v Value) AsU64() uint64   { return v.u64 }
func (v Value) AsI64() int64    { return v.i64 }
func (v Value) AsString() string { return v.str }
func (v Value) AsBytes() []byte  { return v.bytes }

// Key is a fully-typed key value: one Value per component declared in
// a Spec, in order. A 2-tuple key has exactly two Values.
type Key struct {
	Values []Value
}

func Single(v Value) Key { return Key{Values: []Value{v}} }

func Pair(a, b Value) Key { return Key{Values: []Value{a, b}} }

// KeyCodecError variants, returned by Encode/Decode on malformed input.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return fmt.Sprintf("keycodec: decode error: %s", e.Reason) }

type KeyTypeMismatch struct {
	Expected Spec
	Got      []Kind
}

func (e *KeyTypeMismatch) Error() string {
	return fmt.Sprintf("keycodec: key type mismatch: expected %v, got %v", e.Expected.Components, e.Got)
}

func kinds(vs []Value) []Kind {
	out := make([]Kind, len(vs))
	for i, v := range vs {
		out[i] = v.kind
	}
	return out
}

func specMatches(s Spec, vs []Value) bool {
	if len(s.Components) != len(vs) {
		return false
	}
	for i, k := range s.Components {
		if vs[i].kind != k {
			return false
		}
	}
	return true
}

// Encode turns a typed Key into its ordered byte representation under
// the declared Spec. Returns KeyTypeMismatch if the key's component
// kinds don't match the spec.
func Encode(spec Spec, key Key) ([]byte, error) {
	if !specMatches(spec, key.Values) {
		return nil, &KeyTypeMismatch{Expected: spec, Got: kinds(key.Values)}
	}

	standalone := len(key.Values) == 1
	var out []byte
	for _, v := range key.Values {
		enc, err := encodeComponent(v, standalone)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}

func encodeComponent(v Value, standalone bool) ([]byte, error) {
	switch v.kind {
	case KindU32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, v.u32)
		return b, nil
	case KindI32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, flipSignBit32(uint32(v.i32)))
		return b, nil
	case KindU64:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, v.u64)
		return b, nil
	case KindI64:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, flipSignBit64(uint64(v.i64)))
		return b, nil
	case KindString:
		return encodeVariable([]byte(v.str), standalone), nil
	case KindBytes:
		return encodeVariable(v.bytes, standalone), nil
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown kind %v", v.kind)}
	}
}

func encodeVariable(b []byte, standalone bool) []byte {
	if standalone {
		return append([]byte(nil), b...)
	}
	out := make([]byte, lengthPrefixWidth+len(b))
	binary.BigEndian.PutUint32(out[:lengthPrefixWidth], uint32(len(b)))
	copy(out[lengthPrefixWidth:], b)
	return out
}

// flipSignBit32/64 map signed ints to an unsigned encoding that
// preserves order: flipping the sign bit makes the most negative value
// encode as 0x00... and the most positive as 0xFF..., matching
// unsigned big-endian ordering.
func flipSignBit32(u uint32) uint32 { return u ^ (1 << 31) }
func flipSignBit64(u uint64) uint64 { return u ^ (1 << 63) }

// Decode parses an encoded key back into its typed Key under the
// declared Spec. Returns DecodeError if b doesn't match the spec's
// declared component widths.
func Decode(spec Spec, b []byte) (Key, error) {
	standalone := len(spec.Components) == 1
	var values []Value
	rest := b
	for i, k := range spec.Components {
		last := i == len(spec.Components)-1
		v, tail, err := decodeComponent(k, rest, standalone && last)
		if err != nil {
			return Key{}, err
		}
		values = append(values, v)
		rest = tail
	}
	if len(rest) != 0 {
		return Key{}, &DecodeError{Reason: "trailing bytes after declared components"}
	}
	return Key{Values: values}, nil
}

func decodeComponent(k Kind, b []byte, standalone bool) (Value, []byte, error) {
	switch k {
	case KindU32:
		if len(b) < 4 {
			return Value{}, nil, &DecodeError{Reason: "u32 component truncated"}
		}
		return U32(binary.BigEndian.Uint32(b[:4])), b[4:], nil
	case KindI32:
		if len(b) < 4 {
			return Value{}, nil, &DecodeError{Reason: "i32 component truncated"}
		}
		u := binary.BigEndian.Uint32(b[:4])
		return I32(int32(flipSignBit32(u))), b[4:], nil
	case KindU64:
		if len(b) < 8 {
			return Value{}, nil, &DecodeError{Reason: "u64 component truncated"}
		}
		return U64(binary.BigEndian.Uint64(b[:8])), b[8:], nil
	case KindI64:
		if len(b) < 8 {
			return Value{}, nil, &DecodeError{Reason: "i64 component truncated"}
		}
		u := binary.BigEndian.Uint64(b[:8])
		return I64(int64(flipSignBit64(u))), b[8:], nil
	case KindString, KindBytes:
		var raw []byte
		var tail []byte
		if standalone {
			raw = b
			tail = nil
		} else {
			if len(b) < lengthPrefixWidth {
				return Value{}, nil, &DecodeError{Reason: "length prefix truncated"}
			}
			n := binary.BigEndian.Uint32(b[:lengthPrefixWidth])
			if uint32(len(b)-lengthPrefixWidth) < n {
				return Value{}, nil, &DecodeError{Reason: "variable-length component truncated"}
			}
			raw = b[lengthPrefixWidth : lengthPrefixWidth+int(n)]
			tail = b[lengthPrefixWidth+int(n):]
		}
		if k == KindString {
			return String(string(raw)), tail, nil
		}
		return Bytes(raw), tail, nil
	default:
		return Value{}, nil, &DecodeError{Reason: fmt.Sprintf("unknown kind %v", k)}
	}
}

// ChildRange returns the half-open byte range [lo, hi) bounding every
// encoded 2-tuple key (parent, u32) sharing the given parent value,
// under ChildSpec(parent.Kind()). Because the parent component is
// encoded with a fixed or length-prefixed width and the u32 suffix
// varies, the prefix formed by encoding just the parent component
// bounds exactly this set (§4.1, §P3).
func ChildRange(parentSpec Spec, parent Value) (lo, hi []byte, err error) {
	if !specMatches(parentSpec, []Value{parent}) {
		return nil, nil, &KeyTypeMismatch{Expected: parentSpec, Got: []Kind{parent.kind}}
	}
	prefix, err := encodeComponent(parent, false)
	if err != nil {
		return nil, nil, err
	}
	lo = append([]byte(nil), prefix...)
	hi = prefixUpperBound(prefix)
	return lo, hi, nil
}

// prefixUpperBound returns the smallest byte string that is strictly
// greater than every string with the given prefix: increment the last
// byte that isn't already 0xFF, dropping any trailing 0xFF bytes first.
// If prefix is all 0xFF, there is no finite upper bound and nil is
// returned, meaning "scan to the end of the store".
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
