package keycodec

import (
	"bytes"
	"testing"
)

func TestRoundTripSingleComponents(t *testing.T) {
	cases := []struct {
		spec Spec
		val  Value
	}{
		{U32Spec, U32(0)},
		{U32Spec, U32(4294967295)},
		{I32Spec, I32(-1)},
		{I32Spec, I32(1<<31 - 1)},
		{I32Spec, I32(-(1 << 31))},
		{U64Spec, U64(1 << 40)},
		{I64Spec, I64(-12345)},
		{StringSpec, String("hello world")},
		{StringSpec, String("")},
		{BytesSpec, Bytes([]byte{0x00, 0xFF, 0x01})},
	}
	for _, c := range cases {
		enc, err := Encode(c.spec, Single(c.val))
		if err != nil {
			t.Fatalf("Encode(%v) error: %v", c.val, err)
		}
		dec, err := Decode(c.spec, enc)
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		if len(dec.Values) != 1 || !valuesEqual(dec.Values[0], c.val) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", dec.Values, c.val)
		}
	}
}

func TestRoundTripTuples(t *testing.T) {
	spec := Tuple(KindString, KindU32)
	key := Pair(String("alice"), U32(7))
	enc, err := Encode(spec, key)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	dec, err := Decode(spec, enc)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if !valuesEqual(dec.Values[0], key.Values[0]) || !valuesEqual(dec.Values[1], key.Values[1]) {
		t.Fatalf("tuple round trip mismatch: got %+v", dec.Values)
	}
}

func valuesEqual(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindU32:
		return a.u32 == b.u32
	case KindI32:
		return a.i32 == b.i32
	case KindU64:
		return a.u64 == b.u64
	case KindI64:
		return a.i64 == b.i64
	case KindString:
		return a.str == b.str
	case KindBytes:
		return bytes.Equal(a.bytes, b.bytes)
	}
	return false
}

func TestOrderU32(t *testing.T) {
	a, _ := Encode(U32Spec, Single(U32(1)))
	b, _ := Encode(U32Spec, Single(U32(2)))
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("expected encode(1) < encode(2), got %v >= %v", a, b)
	}
}

func TestOrderSignedIncludesNegatives(t *testing.T) {
	values := []int32{-1000, -1, 0, 1, 1000}
	var encs [][]byte
	for _, v := range values {
		e, err := Encode(I32Spec, Single(I32(v)))
		if err != nil {
			t.Fatalf("Encode error: %v", err)
		}
		encs = append(encs, e)
	}
	for i := 1; i < len(encs); i++ {
		if bytes.Compare(encs[i-1], encs[i]) >= 0 {
			t.Fatalf("expected encode(%d) < encode(%d), got %v >= %v", values[i-1], values[i], encs[i-1], encs[i])
		}
	}
}

func TestOrderI64Negatives(t *testing.T) {
	lo, _ := Encode(I64Spec, Single(I64(-1)))
	hi, _ := Encode(I64Spec, Single(I64(0)))
	if bytes.Compare(lo, hi) >= 0 {
		t.Fatalf("expected encode(-1) < encode(0)")
	}
}

func TestKeyTypeMismatch(t *testing.T) {
	_, err := Encode(U32Spec, Single(String("nope")))
	if err == nil {
		t.Fatalf("expected KeyTypeMismatch error")
	}
	var mismatch *KeyTypeMismatch
	if !errorsAs(err, &mismatch) {
		t.Fatalf("expected *KeyTypeMismatch, got %T", err)
	}
}

func TestDecodeErrorOnTruncated(t *testing.T) {
	_, err := Decode(U32Spec, []byte{0x00, 0x01})
	if err == nil {
		t.Fatalf("expected DecodeError on truncated input")
	}
}

func TestChildRangeContainment(t *testing.T) {
	childSpec := ChildSpec(KindString)
	parent := String("alice")
	lo, hi, err := ChildRange(StringSpec, parent)
	if err != nil {
		t.Fatalf("ChildRange error: %v", err)
	}

	for i := uint32(0); i < 5; i++ {
		enc, err := Encode(childSpec, Pair(parent, U32(i)))
		if err != nil {
			t.Fatalf("Encode child key error: %v", err)
		}
		if bytes.Compare(enc, lo) < 0 || (hi != nil && bytes.Compare(enc, hi) >= 0) {
			t.Fatalf("child key %v not in range [%v, %v)", enc, lo, hi)
		}
	}

	otherParent := String("bob")
	enc, err := Encode(childSpec, Pair(otherParent, U32(0)))
	if err != nil {
		t.Fatalf("Encode other-parent child key error: %v", err)
	}
	if bytes.Compare(enc, lo) >= 0 && (hi == nil || bytes.Compare(enc, hi) < 0) {
		t.Fatalf("key for different parent %v unexpectedly falls in range [%v, %v)", enc, lo, hi)
	}
}

// errorsAs is a tiny local wrapper to avoid importing errors in every
// call site above; behaves like errors.As.
func errorsAs(err error, target interface{}) bool {
	switch t := target.(type) {
	case **KeyTypeMismatch:
		if v, ok := err.(*KeyTypeMismatch); ok {
			*t = v
			return true
		}
	}
	return false
}
